package core

type State int

const (
	StateOngoing State = iota
	StatePending       // Opponent is calculating a move
	StateStuck         // Opponent failed and the session needs an undo or a new opponent
	StateWhiteWins
	StateBlackWins
	StateDraw
	StateFinished // Game over with a result the server cannot attribute
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStuck:
		return "stuck"
	case StateWhiteWins:
		return "white wins"
	case StateBlackWins:
		return "black wins"
	case StateDraw:
		return "draw"
	case StateFinished:
		return "finished"
	case StateOngoing:
		return "ongoing"
	default:
		return "unknown"
	}
}

// IsOver reports whether the state is terminal
func (s State) IsOver() bool {
	return s == StateWhiteWins || s == StateBlackWins || s == StateDraw || s == StateFinished
}

// StateFromResult maps a game-over result to a terminal state
func StateFromResult(result string) State {
	switch result {
	case "1-0":
		return StateWhiteWins
	case "0-1":
		return StateBlackWins
	case "1/2-1/2":
		return StateDraw
	default:
		return StateFinished
	}
}
