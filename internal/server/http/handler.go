package http

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"chessduel/internal/server/core"
	"chessduel/internal/server/processor"
	"chessduel/internal/server/realtime"
	"chessduel/internal/server/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

const rateLimitRate = 10 // req/sec

// HTTPHandler handles HTTP requests and routes them to the processor
type HTTPHandler struct {
	proc *processor.Processor
	svc  *service.Service
	hub  *realtime.Hub
	log  *zap.Logger
}

func NewHTTPHandler(proc *processor.Processor, svc *service.Service, hub *realtime.Hub, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{proc: proc, svc: svc, hub: hub, log: log}
}

func NewFiberApp(proc *processor.Processor, svc *service.Service, hub *realtime.Hub, log *zap.Logger, devMode bool) *fiber.App {
	h := NewHTTPHandler(proc, svc, hub, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	})

	// Global middleware (order matters)
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check (no rate limit)
	app.Get("/health", h.Health)

	// Lobby socket, token passed as ?token=
	app.Use("/ws", h.lobbyUpgrade)
	app.Get("/ws", websocket.New(h.Lobby))

	api := app.Group("/api/v1")

	auth := api.Group("/auth")

	// Register: 5 req/min per IP
	auth.Post("/register", limiter.New(limiter.Config{
		Max:        5,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: "5 registrations per minute allowed",
			})
		},
	}), bind[RegisterRequest](), h.RegisterHandler)

	// Login: 10 req/min per IP
	auth.Post("/login", limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: "10 login attempts per minute allowed",
			})
		},
	}), bind[LoginRequest](), h.LoginHandler)

	identify := svc.Identify

	auth.Get("/me", AuthRequired(identify), h.GetCurrentUserHandler)
	auth.Post("/logout", AuthRequired(identify), h.LogoutHandler)

	maxReq := rateLimitRate
	if devMode {
		maxReq = rateLimitRate * 2
	}
	api.Use(limiter.New(limiter.Config{
		Max:        maxReq,
		Expiration: 1 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			if xff := c.Get("X-Forwarded-For"); xff != "" {
				if idx := strings.Index(xff, ","); idx != -1 {
					return strings.TrimSpace(xff[:idx])
				}
				return xff
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: fmt.Sprintf("%d requests per second allowed", maxReq),
			})
		},
	}))

	api.Use(contentTypeValidator)

	api.Get("/users/online", AuthRequired(identify), h.OnlineUsers)

	// Stateless move request
	api.Post("/moves", bind[core.BrokerRequest](), h.BrokerMove)

	sessions := api.Group("/sessions", OptionalAuth(identify))
	sessions.Post("/", bind[core.CreateSessionRequest](), h.CreateSession)
	sessions.Get("/:sessionId", h.GetSession)
	sessions.Put("/:sessionId/config", bind[core.ConfigureSessionRequest](), h.ConfigureSession)
	sessions.Delete("/:sessionId", h.DeleteSession)
	sessions.Post("/:sessionId/moves", bind[core.MoveRequest](), h.MakeMove)
	sessions.Post("/:sessionId/next", h.OpponentMove)
	sessions.Post("/:sessionId/hint", h.Hint)
	sessions.Get("/:sessionId/evaluation", h.Evaluate)
	sessions.Post("/:sessionId/undo", bind[core.UndoRequest](), h.UndoMove)
	sessions.Get("/:sessionId/board", h.GetBoard)

	return app
}

// contentTypeValidator ensures POST and PUT requests have application/json
func contentTypeValidator(c *fiber.Ctx) error {
	method := c.Method()
	if method == fiber.MethodPost || method == fiber.MethodPut {
		contentType := c.Get("Content-Type")
		if contentType != "application/json" && contentType != "" {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(core.ErrorResponse{
				Error:   "unsupported media type",
				Code:    core.ErrInvalidContent,
				Details: "Content-Type must be application/json",
			})
		}
	}
	return c.Next()
}

// customErrorHandler provides consistent error responses
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	response := core.ErrorResponse{
		Error: "internal server error",
		Code:  core.ErrInternalError,
	}

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		response.Error = e.Message

		switch code {
		case fiber.StatusNotFound, fiber.StatusBadRequest, fiber.StatusUpgradeRequired:
			response.Code = core.ErrInvalidRequest
		case fiber.StatusUnauthorized:
			response.Code = core.ErrUnauthorized
		case fiber.StatusTooManyRequests:
			response.Code = core.ErrRateLimitExceeded
		}
	}

	return c.Status(code).JSON(response)
}

// statusFor maps processor and broker error codes to HTTP status
func statusFor(code string) int {
	switch code {
	case core.ErrSessionNotFound:
		return fiber.StatusNotFound
	case core.ErrForbidden:
		return fiber.StatusForbidden
	case core.ErrUnauthorized:
		return fiber.StatusUnauthorized
	case core.ErrSessionBusy, core.ErrGameOver, string(core.FailNoOpponentSelected):
		return fiber.StatusConflict
	case core.ErrInternalError:
		return fiber.StatusInternalServerError
	case core.ErrResourceLimit,
		string(core.FailEngineUnavailable),
		string(core.FailRemoteServiceUnavailable):
		return fiber.StatusServiceUnavailable
	case string(core.FailRemoteServiceError),
		string(core.FailInvalidRemoteMove),
		string(core.FailEngineSuggestedIllegalMove):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusBadRequest
	}
}

// respond writes a processor response, 202 when the opponent is still thinking
func respond(c *fiber.Ctx, resp processor.ProcessorResponse, okStatus int) error {
	if !resp.Success {
		return c.Status(statusFor(resp.Error.Code)).JSON(resp.Error)
	}
	if resp.Pending && okStatus == fiber.StatusOK {
		okStatus = fiber.StatusAccepted
	}
	if resp.Data == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(okStatus).JSON(resp.Data)
}

// validatedBody returns the request body parsed and checked by bind
func validatedBody[T any](c *fiber.Ctx) (T, error) {
	var zero T
	if validated, ok := c.Locals("validated").(bool); !ok || !validated {
		return zero, fiber.NewError(fiber.StatusInternalServerError, "validation bypass detected")
	}
	body, ok := c.Locals("validatedBody").(*T)
	if !ok || body == nil {
		return zero, fiber.NewError(fiber.StatusInternalServerError, "validation data missing")
	}
	return *body, nil
}

// sessionID extracts and checks the session ID path parameter
func sessionID(c *fiber.Ctx) (string, error) {
	id := c.Params("sessionId")
	if !isValidUUID(id) {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid session ID format: must be a valid UUID")
	}
	return id, nil
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}

// Health check endpoint with storage status
func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "healthy",
		"time":     time.Now().Unix(),
		"storage":  h.svc.GetStorageHealth(),
		"sessions": h.svc.SessionCount(),
	})
}

// BrokerMove answers a single move request on an arbitrary position
func (h *HTTPHandler) BrokerMove(c *fiber.Ctx) error {
	req, err := validatedBody[core.BrokerRequest](c)
	if err != nil {
		return err
	}

	resp := h.proc.Execute(c.Context(), processor.NewBrokerMoveCommand(req))
	if !resp.Success {
		status := statusFor(resp.Error.Code)
		if resp.Data != nil {
			return c.Status(status).JSON(resp.Data)
		}
		return c.Status(status).JSON(resp.Error)
	}
	return c.JSON(resp.Data)
}

func (h *HTTPHandler) CreateSession(c *fiber.Ctx) error {
	req, err := validatedBody[core.CreateSessionRequest](c)
	if err != nil {
		return err
	}
	resp := h.proc.Execute(c.Context(), processor.NewCreateSessionCommand(userID(c), req))
	return respond(c, resp, fiber.StatusCreated)
}

func (h *HTTPHandler) ConfigureSession(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	req, err := validatedBody[core.ConfigureSessionRequest](c)
	if err != nil {
		return err
	}
	resp := h.proc.Execute(c.Context(), processor.NewConfigureSessionCommand(userID(c), id, req))
	return respond(c, resp, fiber.StatusOK)
}

// GetSession returns session state. With wait=true and moveCount=n it
// long-polls until the session moves past n moves or changes state.
func (h *HTTPHandler) GetSession(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	if c.Query("wait", "false") != "true" {
		return h.sendSession(c, id)
	}

	moveCount, err := strconv.Atoi(c.Query("moveCount", "-1"))
	if err != nil {
		moveCount = -1
	}

	ctx := c.Context()
	notify, err := h.svc.RegisterWait(ctx, id, moveCount)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(core.ErrorResponse{
			Error: "session not found",
			Code:  core.ErrSessionNotFound,
		})
	}

	select {
	case <-notify:
		return h.sendSession(c, id)
	case <-ctx.Done():
		return nil
	}
}

func (h *HTTPHandler) sendSession(c *fiber.Ctx, id string) error {
	resp := h.proc.Execute(c.Context(), processor.NewGetSessionCommand(userID(c), id))
	if !resp.Success {
		return c.Status(statusFor(resp.Error.Code)).JSON(resp.Error)
	}
	return c.JSON(resp.Data)
}

func (h *HTTPHandler) DeleteSession(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	resp := h.proc.Execute(c.Context(), processor.NewDeleteSessionCommand(userID(c), id))
	return respond(c, resp, fiber.StatusNoContent)
}

// MakeMove submits the player's move; the opponent's reply arrives asynchronously
func (h *HTTPHandler) MakeMove(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	req, err := validatedBody[core.MoveRequest](c)
	if err != nil {
		return err
	}
	resp := h.proc.Execute(c.Context(), processor.NewMakeMoveCommand(userID(c), id, req))
	return respond(c, resp, fiber.StatusOK)
}

// OpponentMove asks the opponent to move now
func (h *HTTPHandler) OpponentMove(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	resp := h.proc.Execute(c.Context(), processor.NewOpponentMoveCommand(userID(c), id))
	return respond(c, resp, fiber.StatusOK)
}

func (h *HTTPHandler) Hint(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	resp := h.proc.Execute(c.Context(), processor.NewHintCommand(userID(c), id))
	return respond(c, resp, fiber.StatusOK)
}

func (h *HTTPHandler) Evaluate(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	resp := h.proc.Execute(c.Context(), processor.NewEvaluateCommand(userID(c), id))
	return respond(c, resp, fiber.StatusOK)
}

func (h *HTTPHandler) UndoMove(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	req, err := validatedBody[core.UndoRequest](c)
	if err != nil {
		return err
	}
	resp := h.proc.Execute(c.Context(), processor.NewUndoMoveCommand(userID(c), id, req))
	return respond(c, resp, fiber.StatusOK)
}

// GetBoard returns ASCII representation of the board
func (h *HTTPHandler) GetBoard(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	resp := h.proc.Execute(c.Context(), processor.NewGetBoardCommand(userID(c), id))
	return respond(c, resp, fiber.StatusOK)
}

// OnlineUsers lists the users present in the lobby
func (h *HTTPHandler) OnlineUsers(c *fiber.Ctx) error {
	users, err := h.hub.Online(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(core.ErrorResponse{
			Error: "lobby unavailable",
			Code:  core.ErrInternalError,
		})
	}
	return c.JSON(realtime.OnlineUsers{Users: users})
}
