package display

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// RenderFEN draws the position with colored pieces, from Black's side when
// flip is set
func RenderFEN(fen string, flip bool) (string, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return "", err
	}
	squares := chess.NewGame(opt).Position().Board().SquareMap()

	files := "  a b c d e f g h"
	if flip {
		files = "  h g f e d c b a"
	}

	var b strings.Builder
	b.WriteString(Cyan + files + Reset + "\n")
	for row := 0; row < 8; row++ {
		rank := 7 - row
		if flip {
			rank = row
		}
		fmt.Fprintf(&b, "%s%d%s ", Cyan, rank+1, Reset)
		for col := 0; col < 8; col++ {
			file := col
			if flip {
				file = 7 - col
			}
			sq := chess.NewSquare(chess.File(file), chess.Rank(rank))
			b.WriteString(pieceCell(squares[sq]))
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s%d%s\n", Cyan, rank+1, Reset)
	}
	b.WriteString(Cyan + files + Reset + "\n")
	return b.String(), nil
}

func pieceCell(p chess.Piece) string {
	if p == chess.NoPiece {
		return "."
	}
	letter := pieceLetter(p.Type())
	if p.Color() == chess.White {
		return Blue + strings.ToUpper(letter) + Reset
	}
	return Red + letter + Reset
}

func pieceLetter(t chess.PieceType) string {
	switch t {
	case chess.King:
		return "k"
	case chess.Queen:
		return "q"
	case chess.Rook:
		return "r"
	case chess.Bishop:
		return "b"
	case chess.Knight:
		return "n"
	default:
		return "p"
	}
}

// ColorForTurn returns colored turn indicator
func ColorForTurn(turn string) string {
	if turn == "w" {
		return Blue + "White" + Reset
	}
	return Red + "Black" + Reset
}

// FormatMoves numbers a UCI move list in pairs; startBlack shifts the first
// move to Black's half
func FormatMoves(moves []string, startBlack bool) string {
	var b strings.Builder
	ply := 0
	if startBlack {
		ply = 1
	}
	for i, m := range moves {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch {
		case ply%2 == 0:
			fmt.Fprintf(&b, "%d.%s", ply/2+1, m)
		case i == 0:
			fmt.Fprintf(&b, "%d...%s", ply/2+1, m)
		default:
			b.WriteString(m)
		}
		ply++
	}
	return b.String()
}

// FormatEval renders a White-positive score
func FormatEval(pawns float64, mateIn int) string {
	if mateIn != 0 {
		return fmt.Sprintf("#%d", mateIn)
	}
	return fmt.Sprintf("%+.2f", pawns)
}
