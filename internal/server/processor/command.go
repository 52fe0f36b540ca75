package processor

import (
	"chessduel/internal/server/core"
)

// CommandType defines the type of command being executed
type CommandType int

const (
	CmdCreateSession CommandType = iota
	CmdConfigureSession
	CmdGetSession
	CmdDeleteSession
	CmdMakeMove
	CmdOpponentMove
	CmdHint
	CmdEvaluate
	CmdUndoMove
	CmdGetBoard
	CmdBrokerMove
)

// Command is a unified structure for all processor operations
type Command struct {
	Type      CommandType
	UserID    string
	SessionID string // For session-specific commands
	Args      any    // Command-specific arguments
}

// ProcessorResponse wraps the response with metadata
type ProcessorResponse struct {
	Success bool                `json:"success"`
	Pending bool                `json:"pending,omitempty"` // Opponent is still thinking
	Data    any                 `json:"data,omitempty"`
	Error   *core.ErrorResponse `json:"error,omitempty"`
}

func NewCreateSessionCommand(userID string, req core.CreateSessionRequest) Command {
	return Command{Type: CmdCreateSession, UserID: userID, Args: req}
}

func NewConfigureSessionCommand(userID, sessionID string, req core.ConfigureSessionRequest) Command {
	return Command{Type: CmdConfigureSession, UserID: userID, SessionID: sessionID, Args: req}
}

func NewGetSessionCommand(userID, sessionID string) Command {
	return Command{Type: CmdGetSession, UserID: userID, SessionID: sessionID}
}

func NewDeleteSessionCommand(userID, sessionID string) Command {
	return Command{Type: CmdDeleteSession, UserID: userID, SessionID: sessionID}
}

func NewMakeMoveCommand(userID, sessionID string, req core.MoveRequest) Command {
	return Command{Type: CmdMakeMove, UserID: userID, SessionID: sessionID, Args: req}
}

func NewOpponentMoveCommand(userID, sessionID string) Command {
	return Command{Type: CmdOpponentMove, UserID: userID, SessionID: sessionID}
}

func NewHintCommand(userID, sessionID string) Command {
	return Command{Type: CmdHint, UserID: userID, SessionID: sessionID}
}

func NewEvaluateCommand(userID, sessionID string) Command {
	return Command{Type: CmdEvaluate, UserID: userID, SessionID: sessionID}
}

func NewUndoMoveCommand(userID, sessionID string, req core.UndoRequest) Command {
	return Command{Type: CmdUndoMove, UserID: userID, SessionID: sessionID, Args: req}
}

func NewGetBoardCommand(userID, sessionID string) Command {
	return Command{Type: CmdGetBoard, UserID: userID, SessionID: sessionID}
}

func NewBrokerMoveCommand(req core.BrokerRequest) Command {
	return Command{Type: CmdBrokerMove, Args: req}
}
