package core

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseMove(t *testing.T) {
	tests := []struct {
		in      string
		want    Move
		wantErr bool
	}{
		{in: "e2e4", want: Move{From: "e2", To: "e4"}},
		{in: " E7E8Q ", want: Move{From: "e7", To: "e8", Promotion: "q"}},
		{in: "a7a8n", want: Move{From: "a7", To: "a8", Promotion: "n"}},
		{in: "e2", wantErr: true},
		{in: "e2e4e5", wantErr: true},
		{in: "i2e4", wantErr: true},
		{in: "e0e1", wantErr: true},
		{in: "e7e8k", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMove(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMove(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMove(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	if s := (Move{From: "e7", To: "e8", Promotion: "q"}).String(); s != "e7e8q" {
		t.Errorf("String() = %q", s)
	}
}

func TestNewBrokerResponse(t *testing.T) {
	eval := -0.5
	tests := []struct {
		name string
		in   Outcome
		want BrokerResponse
	}{
		{
			name: "success",
			in:   Success{Move: Move{From: "e7", To: "e5"}, SAN: "e5", FEN: "after", Evaluation: -0.5},
			want: BrokerResponse{Move: &Move{From: "e7", To: "e5"}, SAN: "e5", FEN: "after", Evaluation: &eval},
		},
		{
			name: "mating move",
			in:   Success{Move: Move{From: "d8", To: "h4"}, SAN: "Qh4#", FEN: "after", Evaluation: -0.5, MateIn: -1, Result: "0-1"},
			want: BrokerResponse{
				Move: &Move{From: "d8", To: "h4"}, SAN: "Qh4#", FEN: "after", Evaluation: &eval, MateIn: -1,
				Result: "0-1",
			},
		},
		{
			name: "game over",
			in:   GameOver{Result: "1/2-1/2", Method: "stalemate"},
			want: BrokerResponse{GameOver: &GameOverInfo{Result: "1/2-1/2", Method: "stalemate"}},
		},
		{
			name: "failure",
			in:   Fail(FailEngineUnavailable, "engine %s exited", "stockfish"),
			want: BrokerResponse{Error: "ENGINE_UNAVAILABLE: engine stockfish exited", Code: "ENGINE_UNAVAILABLE"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewBrokerResponse(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			shapes := 0
			for _, set := range []bool{got.Move != nil, got.GameOver != nil, got.Error != ""} {
				if set {
					shapes++
				}
			}
			if shapes != 1 {
				t.Errorf("%d of move, gameOver, error set; want exactly one", shapes)
			}
		})
	}
}

func TestColorJSON(t *testing.T) {
	var c Color
	if err := json.Unmarshal([]byte(`"black"`), &c); err != nil || c != ColorBlack {
		t.Fatalf("c = %v err = %v", c, err)
	}
	if err := json.Unmarshal([]byte(`"red"`), &c); err == nil {
		t.Error("invalid color accepted")
	}
	data, _ := json.Marshal(ColorWhite)
	if string(data) != `"w"` {
		t.Errorf("marshal = %s", data)
	}
	if OppositeColor(ColorWhite) != ColorBlack {
		t.Error("opposite of white")
	}
}

func TestStateFromResult(t *testing.T) {
	cases := map[string]State{
		"1-0":     StateWhiteWins,
		"0-1":     StateBlackWins,
		"1/2-1/2": StateDraw,
		"*":       StateFinished,
	}
	for result, want := range cases {
		if got := StateFromResult(result); got != want || !got.IsOver() {
			t.Errorf("StateFromResult(%q) = %v", result, got)
		}
	}
	if StatePending.IsOver() || StateStuck.IsOver() {
		t.Error("non-terminal state reported over")
	}
}
