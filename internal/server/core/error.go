package core

// Error codes
const (
	ErrSessionNotFound   = "SESSION_NOT_FOUND"
	ErrInvalidMove       = "INVALID_MOVE"
	ErrInvalidDepth      = "INVALID_DEPTH"
	ErrSessionBusy       = "SESSION_BUSY"
	ErrGameOver          = "GAME_OVER"
	ErrRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrInvalidContent    = "INVALID_CONTENT_TYPE"
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrInvalidFEN        = "INVALID_FEN"
	ErrInternalError     = "INTERNAL_ERROR"
	ErrResourceLimit     = "RESOURCE_LIMIT"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
)

// ErrorResponse is the JSON error body returned by every API endpoint
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
