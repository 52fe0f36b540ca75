package core

import (
	"fmt"
	"regexp"
	"strings"
)

var squarePattern = regexp.MustCompile(`^[a-h][1-8]$`)

// IsSquare reports whether s names a board square such as "e4"
func IsSquare(s string) bool {
	return squarePattern.MatchString(s)
}

// Move is a move in coordinate form
type Move struct {
	From      string `json:"from" validate:"required,len=2"`
	To        string `json:"to" validate:"required,len=2"`
	Promotion string `json:"promotion,omitempty" validate:"omitempty,oneof=q r b n"`
}

// WellFormed checks the square names and promotion piece, not legality
func (m Move) WellFormed() bool {
	if !IsSquare(m.From) || !IsSquare(m.To) {
		return false
	}
	switch m.Promotion {
	case "", "q", "r", "b", "n":
		return true
	default:
		return false
	}
}

// String returns the move in UCI notation, e.g. "e7e8q"
func (m Move) String() string {
	return m.From + m.To + m.Promotion
}

// ParseMove parses a UCI move string into a Move
func ParseMove(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 4 || len(s) > 5 {
		return Move{}, fmt.Errorf("invalid move %q: expected 4 or 5 characters", s)
	}
	m := Move{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		m.Promotion = s[4:5]
	}
	if !m.WellFormed() {
		return Move{}, fmt.Errorf("invalid move %q", s)
	}
	return m, nil
}

// FailureKind classifies why a move request failed
type FailureKind string

const (
	FailNoOpponentSelected         FailureKind = "NO_OPPONENT_SELECTED"
	FailUnknownOpponentKind        FailureKind = "UNKNOWN_OPPONENT_KIND"
	FailInvalidPosition            FailureKind = "INVALID_POSITION"
	FailEngineSuggestedIllegalMove FailureKind = "ENGINE_SUGGESTED_ILLEGAL_MOVE"
	FailEngineUnavailable          FailureKind = "ENGINE_UNAVAILABLE"
	FailInvalidRemoteMove          FailureKind = "INVALID_REMOTE_MOVE"
	FailRemoteServiceUnavailable   FailureKind = "REMOTE_SERVICE_UNAVAILABLE"
	FailRemoteServiceError         FailureKind = "REMOTE_SERVICE_ERROR"
)

// Outcome is the result of a move request. It is one of Success, GameOver or Failure.
type Outcome interface {
	outcome()
}

// Success carries the opponent's move applied to the requested position.
// Evaluation is in pawns and positive values favor White.
type Success struct {
	Move       Move
	SAN        string
	FEN        string  // Position after the move
	Evaluation float64 // Pawns, White positive
	MateIn     int     // Non-zero when the engine reports a forced mate, White positive
	Result     string  // Set when the move ends the game
}

// GameOver reports that the position admits no further moves
type GameOver struct {
	Result string
	Method string
}

// Failure reports a request that could not produce a move
type Failure struct {
	Kind    FailureKind
	Message string
}

func (Success) outcome()  {}
func (GameOver) outcome() {}
func (Failure) outcome()  {}

func (f Failure) Error() string {
	if f.Message == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Fail builds a Failure with a formatted message
func Fail(kind FailureKind, format string, args ...any) Failure {
	return Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Evaluation is a position score without a move
type Evaluation struct {
	Pawns  float64 `json:"evaluation"`
	MateIn int     `json:"mateIn,omitempty"`
	Depth  int     `json:"depth"`
}
