package game

import (
	"fmt"
	"time"

	"chessduel/internal/server/core"
	"chessduel/internal/server/rules"
)

var ErrInvalidDepth = fmt.Errorf("search depth must be between 1 and %d", core.MaxSearchDepth)

const (
	ByPlayer   = "player"
	ByOpponent = "opponent"
)

// Snapshot is the position after one move. Evaluation is in pawns, positive
// for White, and is never rewritten when moves are undone.
type Snapshot struct {
	FEN        string     `json:"fen"`
	Move       string     `json:"move"` // UCI, empty for the initial position
	SAN        string     `json:"san,omitempty"`
	By         string     `json:"by,omitempty"`
	Turn       core.Color `json:"turn"`
	Evaluation float64    `json:"evaluation"`
	MateIn     int        `json:"mateIn,omitempty"`
}

// Session is one game against a broker-backed opponent. It carries the
// opponent selection and search depth that every move request uses.
// A Session is not safe for concurrent use; the service serializes access.
type Session struct {
	id          string
	owner       string
	playerColor core.Color
	opponent    core.OpponentKind
	search      core.SearchConfig
	snapshots   []Snapshot
	state       core.State
	result      string
	method      string
	failure     string
	createdAt   time.Time
}

// New starts a session from fen, which must already be a valid position
func New(id, owner, fen string, playerColor core.Color, opponent core.OpponentKind, depth int) (*Session, error) {
	turn, err := rules.SideToMove(fen)
	if err != nil {
		return nil, err
	}
	if playerColor != core.ColorBlack {
		playerColor = core.ColorWhite
	}

	s := &Session{
		id:          id,
		owner:       owner,
		playerColor: playerColor,
		opponent:    opponent,
		search:      core.SearchConfig{Depth: core.DefaultSearchDepth},
		snapshots:   []Snapshot{{FEN: fen, Turn: turn}},
		state:       core.StateOngoing,
		createdAt:   time.Now().UTC(),
	}
	if depth != 0 {
		if err := s.SetDepth(depth); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Owner() string               { return s.owner }
func (s *Session) PlayerColor() core.Color     { return s.playerColor }
func (s *Session) Opponent() core.OpponentKind { return s.opponent }
func (s *Session) Depth() int                  { return s.search.Depth }
func (s *Session) CreatedAt() time.Time        { return s.createdAt }

// SetOpponent selects the opponent backend for subsequent moves
func (s *Session) SetOpponent(kind core.OpponentKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown opponent kind %q", string(kind))
	}
	s.opponent = kind
	return nil
}

// SetDepth updates the search depth. Values outside 1..MaxSearchDepth are
// rejected and the previous depth is kept.
func (s *Session) SetDepth(depth int) error {
	if depth < 1 || depth > core.MaxSearchDepth {
		return fmt.Errorf("%w, got %d", ErrInvalidDepth, depth)
	}
	s.search.Depth = depth
	return nil
}

// Current returns the latest snapshot
func (s *Session) Current() Snapshot {
	return s.snapshots[len(s.snapshots)-1]
}

func (s *Session) CurrentFEN() string {
	return s.Current().FEN
}

func (s *Session) Turn() core.Color {
	return s.Current().Turn
}

// PlayerToMove reports whether the human side is to move
func (s *Session) PlayerToMove() bool {
	return s.Turn() == s.playerColor
}

// AddSnapshot records a move applied to the current position
func (s *Session) AddSnapshot(snap Snapshot) {
	s.snapshots = append(s.snapshots, snap)
	s.failure = ""
}

// SetEvaluation replaces the score of the current position
func (s *Session) SetEvaluation(pawns float64, mateIn int) {
	cur := &s.snapshots[len(s.snapshots)-1]
	cur.Evaluation = pawns
	cur.MateIn = mateIn
}

// UndoMoves removes the last count moves and reopens the game
func (s *Session) UndoMoves(count int) error {
	if count < 1 {
		return fmt.Errorf("invalid undo count: %d", count)
	}

	available := len(s.snapshots) - 1
	if available < count {
		return fmt.Errorf("cannot undo %d moves: only %d moves available", count, available)
	}

	s.snapshots = s.snapshots[:len(s.snapshots)-count]
	s.state = core.StateOngoing
	s.result = ""
	s.method = ""
	s.failure = ""
	return nil
}

// Moves lists the played moves in UCI notation
func (s *Session) Moves() []string {
	moves := make([]string, 0, len(s.snapshots)-1)
	for _, snap := range s.snapshots[1:] {
		moves = append(moves, snap.Move)
	}
	return moves
}

func (s *Session) MoveCount() int {
	return len(s.snapshots) - 1
}

// LastMove returns the snapshot of the most recent move, if any
func (s *Session) LastMove() (Snapshot, bool) {
	if len(s.snapshots) < 2 {
		return Snapshot{}, false
	}
	return s.Current(), true
}

func (s *Session) State() core.State {
	return s.state
}

func (s *Session) SetState(state core.State) {
	s.state = state
}

// Finish marks the game as over with a result such as "1-0"
func (s *Session) Finish(result, method string) {
	s.state = core.StateFromResult(result)
	s.result = result
	s.method = method
}

func (s *Session) Result() (string, string) {
	return s.result, s.method
}

// Stick records an opponent failure; the game waits for an undo or a new opponent
func (s *Session) Stick(reason string) {
	s.state = core.StateStuck
	s.failure = reason
}

// Unstick clears a recorded opponent failure so the game can continue
func (s *Session) Unstick() {
	if s.state == core.StateStuck {
		s.state = core.StateOngoing
	}
	s.failure = ""
}

func (s *Session) Failure() string {
	return s.failure
}
