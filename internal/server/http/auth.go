package http

import (
	"errors"
	"strings"
	"time"

	"chessduel/internal/server/core"
	"chessduel/internal/server/service"
	"chessduel/internal/server/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RegisterRequest creates an account. The username doubles as the lobby
// handle, so it is restricted to letters, digits and underscores.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,handle"`
	Email    string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Password string `json:"password" validate:"required,password"`
}

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=255"` // username or email
	Password   string `json:"password" validate:"required,max=128"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type UserResponse struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func authError(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(core.ErrorResponse{Error: msg, Code: code})
}

// RegisterHandler creates an account and signs it in
func (h *HTTPHandler) RegisterHandler(c *fiber.Ctx) error {
	req, err := validatedBody[RegisterRequest](c)
	if err != nil {
		return err
	}

	// Names and emails are stored lowercase so lookups are case-insensitive
	user, err := h.svc.CreateUser(strings.ToLower(req.Username), strings.ToLower(req.Email), req.Password)
	switch {
	case errors.Is(err, storage.ErrUserExists):
		return authError(c, fiber.StatusConflict, core.ErrInvalidRequest, "username or email already taken")
	case errors.Is(err, service.ErrStorageDisabled):
		return authError(c, fiber.StatusServiceUnavailable, core.ErrInternalError, "accounts are disabled on this server")
	case err != nil:
		h.log.Error("failed to create user", zap.String("username", req.Username), zap.Error(err))
		return authError(c, fiber.StatusInternalServerError, core.ErrInternalError, "failed to create user")
	}

	return h.signIn(c, fiber.StatusCreated, user)
}

// LoginHandler exchanges credentials for a token. Unknown users and wrong
// passwords get the same answer.
func (h *HTTPHandler) LoginHandler(c *fiber.Ctx) error {
	req, err := validatedBody[LoginRequest](c)
	if err != nil {
		return err
	}

	user, err := h.svc.AuthenticateUser(strings.ToLower(req.Identifier), req.Password)
	if err != nil {
		return authError(c, fiber.StatusUnauthorized, core.ErrUnauthorized, "invalid credentials")
	}

	if err := h.svc.UpdateLastLogin(user.UserID); err != nil {
		h.log.Warn("failed to update last login", zap.String("user", user.UserID), zap.Error(err))
	}
	return h.signIn(c, fiber.StatusOK, user)
}

// signIn opens a login for user, replacing any earlier one, and returns its token
func (h *HTTPHandler) signIn(c *fiber.Ctx, status int, user *service.User) error {
	token, expiresAt, err := h.svc.GenerateUserToken(user.UserID)
	if err != nil {
		h.log.Error("failed to issue token", zap.String("user", user.UserID), zap.Error(err))
		return authError(c, fiber.StatusInternalServerError, core.ErrInternalError, "failed to generate token")
	}

	return c.Status(status).JSON(AuthResponse{
		Token:     token,
		UserID:    user.UserID,
		Username:  user.Username,
		Email:     user.Email,
		ExpiresAt: expiresAt,
	})
}

func (h *HTTPHandler) GetCurrentUserHandler(c *fiber.Ctx) error {
	id := userID(c)
	if id == "" {
		return authError(c, fiber.StatusUnauthorized, core.ErrUnauthorized, "unauthorized")
	}

	user, err := h.svc.GetUserByID(id)
	if err != nil {
		return authError(c, fiber.StatusNotFound, core.ErrInvalidRequest, "user not found")
	}

	return c.JSON(UserResponse{
		UserID:    user.UserID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

// LogoutHandler revokes the login behind the presented token
func (h *HTTPHandler) LogoutHandler(c *fiber.Ctx) error {
	sid, _ := c.Locals("sid").(string)
	if sid == "" {
		return c.SendStatus(fiber.StatusNoContent)
	}

	if err := h.svc.Logout(sid); err != nil && !errors.Is(err, service.ErrStorageDisabled) {
		h.log.Warn("logout failed", zap.String("sid", sid), zap.Error(err))
		return authError(c, fiber.StatusInternalServerError, core.ErrInternalError, "failed to revoke login")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
