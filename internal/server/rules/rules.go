// Package rules wraps the chess rules library for move validation, notation
// conversion and terminal-position detection. Every call is stateless: a
// position is loaded from FEN, inspected or advanced, and discarded.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"chessduel/internal/server/core"

	"github.com/notnil/chess"
)

const (
	StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
)

var (
	ErrInvalidFEN  = errors.New("invalid FEN")
	ErrIllegalMove = errors.New("illegal move")
)

// Applied describes a move applied to a position
type Applied struct {
	Move   core.Move
	SAN    string
	FEN    string // Position after the move
	Result string // "1-0", "0-1", "1/2-1/2" when the move ends the game
	Method string
}

// Terminal describes a finished position
type Terminal struct {
	Result string
	Method string
}

func load(fen string) (*chess.Game, error) {
	opt, err := chess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return chess.NewGame(opt), nil
}

// ValidateFEN checks that fen decodes to a position
func ValidateFEN(fen string) error {
	_, err := load(fen)
	return err
}

// Normalize returns the canonical FEN of a position
func Normalize(fen string) (string, error) {
	g, err := load(fen)
	if err != nil {
		return "", err
	}
	return g.Position().String(), nil
}

// SideToMove returns the color to move in fen
func SideToMove(fen string) (core.Color, error) {
	g, err := load(fen)
	if err != nil {
		return 0, err
	}
	return toColor(g.Position().Turn()), nil
}

// ApplyMove validates m against fen and returns the resulting position
func ApplyMove(fen string, m core.Move) (*Applied, error) {
	if !m.WellFormed() {
		return nil, fmt.Errorf("%w: malformed move %q", ErrIllegalMove, m.String())
	}

	g, err := load(fen)
	if err != nil {
		return nil, err
	}

	pos := g.Position()
	uci := m.String()
	enc := chess.UCINotation{}
	var legal *chess.Move
	for _, candidate := range pos.ValidMoves() {
		if enc.Encode(pos, candidate) == uci {
			legal = candidate
			break
		}
	}
	if legal == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrIllegalMove, uci, pos.String())
	}

	return apply(g, legal)
}

// ApplyUCI parses a coordinate move string and applies it to fen
func ApplyUCI(fen, move string) (*Applied, error) {
	m, err := core.ParseMove(move)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return ApplyMove(fen, m)
}

// ApplySAN converts an algebraic move to coordinates by applying it to fen
func ApplySAN(fen, san string) (*Applied, error) {
	g, err := load(fen)
	if err != nil {
		return nil, err
	}

	pos := g.Position()
	decoded, err := chess.AlgebraicNotation{}.Decode(pos, strings.TrimSpace(san))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrIllegalMove, san, err)
	}

	// Decode resolves the text against the legal move list, re-find to carry tags
	enc := chess.UCINotation{}
	uci := enc.Encode(pos, decoded)
	for _, candidate := range pos.ValidMoves() {
		if enc.Encode(pos, candidate) == uci {
			return apply(g, candidate)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrIllegalMove, san)
}

func apply(g *chess.Game, m *chess.Move) (*Applied, error) {
	pos := g.Position()
	uci := chess.UCINotation{}.Encode(pos, m)
	san := chess.AlgebraicNotation{}.Encode(pos, m)

	coord, err := core.ParseMove(uci)
	if err != nil {
		return nil, err
	}

	if err := g.Move(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	applied := &Applied{
		Move: coord,
		SAN:  san,
		FEN:  g.Position().String(),
	}
	if t, over := terminal(g); over {
		applied.Result = t.Result
		applied.Method = t.Method
	}
	return applied, nil
}

// Status reports whether fen is a finished position
func Status(fen string) (Terminal, bool, error) {
	g, err := load(fen)
	if err != nil {
		return Terminal{}, false, err
	}
	t, over := terminal(g)
	return t, over, nil
}

func terminal(g *chess.Game) (Terminal, bool) {
	pos := g.Position()
	switch pos.Status() {
	case chess.Checkmate:
		// The side to move is mated
		if pos.Turn() == chess.White {
			return Terminal{Result: "0-1", Method: methodName(chess.Checkmate)}, true
		}
		return Terminal{Result: "1-0", Method: methodName(chess.Checkmate)}, true
	case chess.Stalemate:
		return Terminal{Result: "1/2-1/2", Method: methodName(chess.Stalemate)}, true
	}

	if g.Outcome() != chess.NoOutcome {
		return Terminal{Result: string(g.Outcome()), Method: methodName(g.Method())}, true
	}
	return Terminal{}, false
}

// LegalMoves lists the coordinate moves available in fen
func LegalMoves(fen string) ([]core.Move, error) {
	g, err := load(fen)
	if err != nil {
		return nil, err
	}
	pos := g.Position()
	valid := pos.ValidMoves()
	moves := make([]core.Move, 0, len(valid))
	for _, m := range valid {
		coord, err := core.ParseMove(chess.UCINotation{}.Encode(pos, m))
		if err != nil {
			continue
		}
		moves = append(moves, coord)
	}
	return moves, nil
}

// Board returns a text drawing of the position
func Board(fen string) (string, error) {
	g, err := load(fen)
	if err != nil {
		return "", err
	}
	return g.Position().Board().Draw(), nil
}

func toColor(c chess.Color) core.Color {
	if c == chess.Black {
		return core.ColorBlack
	}
	return core.ColorWhite
}

func methodName(m chess.Method) string {
	switch m {
	case chess.Checkmate:
		return "checkmate"
	case chess.Resignation:
		return "resignation"
	case chess.DrawOffer:
		return "draw offer"
	case chess.Stalemate:
		return "stalemate"
	case chess.ThreefoldRepetition:
		return "threefold repetition"
	case chess.FivefoldRepetition:
		return "fivefold repetition"
	case chess.FiftyMoveRule:
		return "fifty move rule"
	case chess.SeventyFiveMoveRule:
		return "seventy-five move rule"
	case chess.InsufficientMaterial:
		return "insufficient material"
	default:
		return ""
	}
}
