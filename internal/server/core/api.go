package core

// Request types

type CreateSessionRequest struct {
	Opponent    OpponentKind `json:"opponent,omitempty" validate:"omitempty,oneof=localEngine remoteService"`
	Depth       int          `json:"depth,omitempty"`
	FEN         string       `json:"fen,omitempty" validate:"omitempty,max=100"`
	PlayerColor string       `json:"playerColor,omitempty" validate:"omitempty,oneof=w b"`
}

// ConfigureSessionRequest changes the opponent or search depth of a running session.
// Absent fields are left untouched.
type ConfigureSessionRequest struct {
	Opponent *OpponentKind `json:"opponent,omitempty" validate:"omitempty,oneof=localEngine remoteService"`
	Depth    *int          `json:"depth,omitempty"`
}

type MoveRequest struct {
	From      string `json:"from" validate:"required,len=2"`
	To        string `json:"to" validate:"required,len=2"`
	Promotion string `json:"promotion,omitempty" validate:"omitempty,oneof=q r b n"`
}

func (r MoveRequest) Move() Move {
	return Move{From: r.From, To: r.To, Promotion: r.Promotion}
}

// UndoRequest reverts Count moves, one when omitted
type UndoRequest struct {
	Count int `json:"count,omitempty" validate:"omitempty,min=1,max=300"`
}

// BrokerRequest asks for a single opponent move on an arbitrary position
type BrokerRequest struct {
	Position     string       `json:"position" validate:"required,max=100"`
	OpponentKind OpponentKind `json:"opponentKind"`
	Depth        int          `json:"depth,omitempty" validate:"omitempty,min=1,max=30"`
}

// Response types

// BrokerResponse renders an Outcome. Exactly one of Move, GameOver or Error
// is set; Result accompanies a Move that ends the game.
type BrokerResponse struct {
	Move       *Move         `json:"move,omitempty"`
	SAN        string        `json:"san,omitempty"`
	FEN        string        `json:"fen,omitempty"`
	Evaluation *float64      `json:"evaluation,omitempty"`
	MateIn     int           `json:"mateIn,omitempty"`
	Result     string        `json:"result,omitempty"`
	GameOver   *GameOverInfo `json:"gameOver,omitempty"`
	Error      string        `json:"error,omitempty"`
	Code       string        `json:"code,omitempty"`
}

type GameOverInfo struct {
	Result string `json:"result"`
	Method string `json:"method,omitempty"`
}

// NewBrokerResponse converts an outcome to its wire form
func NewBrokerResponse(o Outcome) BrokerResponse {
	switch v := o.(type) {
	case Success:
		move := v.Move
		eval := v.Evaluation
		return BrokerResponse{
			Move:       &move,
			SAN:        v.SAN,
			FEN:        v.FEN,
			Evaluation: &eval,
			MateIn:     v.MateIn,
			Result:     v.Result,
		}
	case GameOver:
		return BrokerResponse{GameOver: &GameOverInfo{Result: v.Result, Method: v.Method}}
	case Failure:
		return BrokerResponse{Error: v.Error(), Code: string(v.Kind)}
	default:
		return BrokerResponse{Error: "unknown outcome", Code: ErrInternalError}
	}
}

type SessionResponse struct {
	SessionID   string    `json:"sessionId"`
	FEN         string    `json:"fen"`
	Turn        string    `json:"turn"`  // "w" or "b"
	State       string    `json:"state"` // "ongoing", "white wins", etc
	Result      string    `json:"result,omitempty"`
	Opponent    string    `json:"opponent"`
	Depth       int       `json:"depth"`
	PlayerColor string    `json:"playerColor"`
	Moves       []string  `json:"moves"`
	Evaluation  float64   `json:"evaluation"`
	LastMove    *MoveInfo `json:"lastMove,omitempty"`
	Failure     string    `json:"failure,omitempty"`
}

type MoveInfo struct {
	Move       string  `json:"move"`
	SAN        string  `json:"san,omitempty"`
	By         string  `json:"by"` // "player" or "opponent"
	Evaluation float64 `json:"evaluation"`
	MateIn     int     `json:"mateIn,omitempty"`
}

type HintResponse struct {
	Move       Move    `json:"move"`
	SAN        string  `json:"san"`
	Evaluation float64 `json:"evaluation"`
	MateIn     int     `json:"mateIn,omitempty"`
}

type BoardResponse struct {
	FEN   string `json:"fen"`
	Board string `json:"board"` // ASCII representation
}
