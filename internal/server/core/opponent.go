package core

import (
	"encoding/json"
	"fmt"
)

// OpponentKind selects the backend that answers a session's moves.
// The zero value means no opponent has been selected yet.
type OpponentKind string

const (
	OpponentNone          OpponentKind = ""
	OpponentLocalEngine   OpponentKind = "localEngine"
	OpponentRemoteService OpponentKind = "remoteService"
)

// Valid reports whether k names a known backend
func (k OpponentKind) Valid() bool {
	return k == OpponentLocalEngine || k == OpponentRemoteService
}

func (k OpponentKind) String() string {
	if k == OpponentNone {
		return "none"
	}
	return string(k)
}

// SearchConfig holds the engine search parameters of a session
type SearchConfig struct {
	Depth int `json:"depth"`
}

const (
	DefaultSearchDepth = 10
	MaxSearchDepth     = 30
)

// Color is the side to move
type Color byte

const (
	ColorWhite Color = iota + 1
	ColorBlack
)

func (c Color) String() string {
	switch c {
	case ColorWhite:
		return "w"
	case ColorBlack:
		return "b"
	default:
		return "-"
	}
}

func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "w", "white":
		*c = ColorWhite
	case "b", "black":
		*c = ColorBlack
	default:
		return fmt.Errorf("invalid color %q", s)
	}
	return nil
}

func OppositeColor(c Color) Color {
	if c == ColorWhite {
		return ColorBlack
	}
	return ColorWhite
}
