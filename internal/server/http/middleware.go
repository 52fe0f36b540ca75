package http

import (
	"strings"

	"chessduel/internal/server/core"
	"chessduel/internal/server/service"

	"github.com/gofiber/fiber/v2"
)

// Identifier validates a bearer token and returns its identity claims
type Identifier func(token string) (*service.Claims, error)

// AuthRequired enforces token authentication for protected endpoints
func AuthRequired(identify Identifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c.Get("Authorization"))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
				Error: "missing authorization token",
				Code:  core.ErrUnauthorized,
			})
		}

		claims, err := identify(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
				Error: "invalid or expired token",
				Code:  core.ErrUnauthorized,
			})
		}

		setIdentity(c, claims)
		return c.Next()
	}
}

// OptionalAuth validates the token if present but allows anonymous access
func OptionalAuth(identify Identifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c.Get("Authorization"))
		if token == "" {
			return c.Next()
		}

		if claims, err := identify(token); err == nil {
			setIdentity(c, claims)
		}
		// Continue regardless of token validity
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, claims *service.Claims) {
	c.Locals("userID", claims.UserID)
	c.Locals("username", claims.Username)
	c.Locals("sid", claims.SessionID)
}

// extractBearerToken extracts the token from an Authorization header
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
