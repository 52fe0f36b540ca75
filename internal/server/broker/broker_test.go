package broker

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"chessduel/internal/server/core"
	"chessduel/internal/server/engine"
	"chessduel/internal/server/remote"
	"chessduel/internal/server/rules"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

const (
	afterE4FEN   = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	foolsMateFEN = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
)

type search struct {
	fen   string
	depth int
}

// fakeEvaluator returns canned results per position, or def for unknown ones
type fakeEvaluator struct {
	mu       sync.Mutex
	results  map[string]*engine.SearchResult
	def      *engine.SearchResult
	err      error
	searches []search
}

func (f *fakeEvaluator) Search(_ context.Context, fen string, depth int) (*engine.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, search{fen, depth})
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[fen]; ok {
		return r, nil
	}
	if f.def != nil {
		return f.def, nil
	}
	return &engine.SearchResult{BestMove: "(none)"}, nil
}

type fakeRemote struct {
	reply    *remote.MoveReply
	err      error
	notified []string
	inits    int
}

func (f *fakeRemote) GetMove(context.Context, string) (*remote.MoveReply, error) {
	return f.reply, f.err
}

func (f *fakeRemote) NotifyMove(_ context.Context, move string) error {
	f.notified = append(f.notified, move)
	return nil
}

func (f *fakeRemote) Init(context.Context) error {
	f.inits++
	return nil
}

func failureKind(t *testing.T, o core.Outcome) core.FailureKind {
	t.Helper()
	f, ok := o.(core.Failure)
	if !ok {
		t.Fatalf("outcome = %#v, want Failure", o)
	}
	return f.Kind
}

func TestGetNextMoveRejections(t *testing.T) {
	b := New(&fakeEvaluator{}, nil, zaptest.NewLogger(t))

	tests := []struct {
		name string
		req  Request
		want core.FailureKind
	}{
		{"no opponent", Request{Position: rules.StartingFEN}, core.FailNoOpponentSelected},
		{"unknown kind", Request{Position: rules.StartingFEN, Opponent: "human"}, core.FailUnknownOpponentKind},
		{"bad position", Request{Position: "8/8/8", Opponent: core.OpponentLocalEngine}, core.FailInvalidPosition},
		{"remote not configured", Request{Position: rules.StartingFEN, Opponent: core.OpponentRemoteService}, core.FailRemoteServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failureKind(t, b.GetNextMove(context.Background(), tt.req)); got != tt.want {
				t.Errorf("kind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNoOpponentCheckedBeforePosition(t *testing.T) {
	b := New(&fakeEvaluator{}, nil, zaptest.NewLogger(t))
	got := failureKind(t, b.GetNextMove(context.Background(), Request{Position: "garbage"}))
	if got != core.FailNoOpponentSelected {
		t.Errorf("kind = %s, want %s", got, core.FailNoOpponentSelected)
	}
}

func TestLocalEngineMoveFromStart(t *testing.T) {
	eval := &fakeEvaluator{def: &engine.SearchResult{BestMove: "e2e4", Score: 20, HasScore: true, Depth: 1}}
	b := New(eval, nil, zaptest.NewLogger(t))

	out := b.GetNextMove(context.Background(), Request{
		Position: rules.StartingFEN,
		Opponent: core.OpponentLocalEngine,
		Depth:    1,
	})
	s, ok := out.(core.Success)
	if !ok {
		t.Fatalf("outcome = %#v, want Success", out)
	}
	if !core.IsSquare(s.Move.From) || !core.IsSquare(s.Move.To) {
		t.Errorf("move %v has malformed squares", s.Move)
	}
	if math.IsNaN(s.Evaluation) || math.IsInf(s.Evaluation, 0) {
		t.Errorf("evaluation %v is not finite", s.Evaluation)
	}
	if s.Evaluation != 0.2 {
		t.Errorf("evaluation = %v, want 0.2", s.Evaluation)
	}
	if s.SAN != "e4" {
		t.Errorf("SAN = %q, want e4", s.SAN)
	}
	// The returned move is legal in the requested position
	if _, err := rules.ApplyMove(rules.StartingFEN, s.Move); err != nil {
		t.Errorf("returned move rejected by rules: %v", err)
	}
	if diff := cmp.Diff([]search{{rules.StartingFEN, 1}}, eval.searches, cmp.AllowUnexported(search{})); diff != "" {
		t.Errorf("searches mismatch (-want +got):\n%s", diff)
	}
}

func TestLocalEngineEvaluationFavorsWhite(t *testing.T) {
	// Black to move, engine reports +30 for Black
	eval := &fakeEvaluator{def: &engine.SearchResult{BestMove: "e7e5", Score: 30, HasScore: true, IsMate: false}}
	b := New(eval, nil, zaptest.NewLogger(t))

	out := b.GetNextMove(context.Background(), Request{Position: afterE4FEN, Opponent: core.OpponentLocalEngine, Depth: 4})
	s, ok := out.(core.Success)
	if !ok {
		t.Fatalf("outcome = %#v, want Success", out)
	}
	if s.Evaluation != -0.3 {
		t.Errorf("evaluation = %v, want -0.3", s.Evaluation)
	}
}

func TestLocalEngineMissingScore(t *testing.T) {
	eval := &fakeEvaluator{def: &engine.SearchResult{BestMove: "g1f3"}}
	b := New(eval, nil, zaptest.NewLogger(t))

	s, ok := b.GetNextMove(context.Background(), Request{Position: rules.StartingFEN, Opponent: core.OpponentLocalEngine}).(core.Success)
	if !ok {
		t.Fatal("want Success when the score is missing")
	}
	if s.Evaluation != 0 {
		t.Errorf("evaluation = %v, want 0", s.Evaluation)
	}
	if eval.searches[0].depth != core.DefaultSearchDepth {
		t.Errorf("depth = %d, want default %d", eval.searches[0].depth, core.DefaultSearchDepth)
	}
}

func TestLocalEngineFailures(t *testing.T) {
	tests := []struct {
		name string
		eval *fakeEvaluator
		want core.FailureKind
	}{
		{"illegal suggestion", &fakeEvaluator{def: &engine.SearchResult{BestMove: "e2e5"}}, core.FailEngineSuggestedIllegalMove},
		{"no move in live position", &fakeEvaluator{def: &engine.SearchResult{BestMove: "(none)"}}, core.FailEngineSuggestedIllegalMove},
		{"engine down", &fakeEvaluator{err: engine.ErrEngineUnresponsive}, core.FailEngineUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.eval, nil, zaptest.NewLogger(t))
			out := b.GetNextMove(context.Background(), Request{Position: rules.StartingFEN, Opponent: core.OpponentLocalEngine})
			if got := failureKind(t, out); got != tt.want {
				t.Errorf("kind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTerminalPositionIsGameOver(t *testing.T) {
	eval := &fakeEvaluator{}
	b := New(eval, &fakeRemote{}, zaptest.NewLogger(t))

	for _, kind := range []core.OpponentKind{core.OpponentLocalEngine, core.OpponentRemoteService} {
		out := b.GetNextMove(context.Background(), Request{Position: foolsMateFEN, Opponent: kind})
		g, ok := out.(core.GameOver)
		if !ok {
			t.Fatalf("%s: outcome = %#v, want GameOver", kind, out)
		}
		if g.Result != "0-1" || g.Method != "checkmate" {
			t.Errorf("%s: got %+v", kind, g)
		}
	}
	if len(eval.searches) != 0 {
		t.Errorf("engine searched a finished position %d times", len(eval.searches))
	}
}

func TestRemoteOpponent(t *testing.T) {
	afterE5, err := rules.ApplySAN(afterE4FEN, "e5")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		remote  *fakeRemote
		eval    *fakeEvaluator
		want    core.Outcome
		wantErr core.FailureKind
	}{
		{
			name:   "ok is converted and scored",
			remote: &fakeRemote{reply: &remote.MoveReply{Status: remote.StatusOK, Move: "e5", NewFEN: afterE5.FEN}},
			eval: &fakeEvaluator{results: map[string]*engine.SearchResult{
				afterE5.FEN: {BestMove: "g1f3", Score: 10, HasScore: true, Depth: 3},
			}},
			want: core.Success{Move: core.Move{From: "e7", To: "e5"}, SAN: "e5", FEN: afterE5.FEN, Evaluation: 0.1},
		},
		{
			name:   "scoring failure degrades to zero",
			remote: &fakeRemote{reply: &remote.MoveReply{Status: remote.StatusOK, Move: "e5"}},
			eval:   &fakeEvaluator{err: errors.New("engine gone")},
			want:   core.Success{Move: core.Move{From: "e7", To: "e5"}, SAN: "e5", FEN: afterE5.FEN},
		},
		{
			name:   "game over is not a failure",
			remote: &fakeRemote{reply: &remote.MoveReply{Status: remote.StatusGameOver, Result: "1/2-1/2"}},
			eval:   &fakeEvaluator{},
			want:   core.GameOver{Result: "1/2-1/2"},
		},
		{
			name:    "service error",
			remote:  &fakeRemote{reply: &remote.MoveReply{Status: remote.StatusError, Message: "no move"}},
			eval:    &fakeEvaluator{},
			wantErr: core.FailRemoteServiceError,
		},
		{
			name:    "illegal SAN",
			remote:  &fakeRemote{reply: &remote.MoveReply{Status: remote.StatusOK, Move: "Qh5"}},
			eval:    &fakeEvaluator{},
			wantErr: core.FailInvalidRemoteMove,
		},
		{
			name:    "transport failure",
			remote:  &fakeRemote{err: remote.ErrUnavailable},
			eval:    &fakeEvaluator{},
			wantErr: core.FailRemoteServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.eval, tt.remote, zaptest.NewLogger(t))
			out := b.GetNextMove(context.Background(), Request{Position: afterE4FEN, Opponent: core.OpponentRemoteService, Depth: 3})
			if tt.wantErr != "" {
				if got := failureKind(t, out); got != tt.wantErr {
					t.Errorf("kind = %s, want %s", got, tt.wantErr)
				}
				return
			}
			if diff := cmp.Diff(tt.want, out); diff != "" {
				t.Errorf("outcome mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSuggestMoveUsesLocalEngine(t *testing.T) {
	eval := &fakeEvaluator{def: &engine.SearchResult{BestMove: "d2d4", Score: 15, HasScore: true}}
	rem := &fakeRemote{err: errors.New("must not be called")}
	b := New(eval, rem, zaptest.NewLogger(t))

	s, ok := b.SuggestMove(context.Background(), rules.StartingFEN, 2).(core.Success)
	if !ok {
		t.Fatal("want Success")
	}
	if s.Move.String() != "d2d4" {
		t.Errorf("move = %s, want d2d4", s.Move)
	}
}

func TestEvaluateOnly(t *testing.T) {
	eval := &fakeEvaluator{def: &engine.SearchResult{BestMove: "e7e5", Score: 100000 - 2, HasScore: true, IsMate: true, MateIn: 2, Depth: 6}}
	b := New(eval, nil, zaptest.NewLogger(t))

	got, err := b.EvaluateOnly(context.Background(), afterE4FEN, 6)
	if err != nil {
		t.Fatalf("EvaluateOnly: %v", err)
	}
	// Black mates in two, so White's view is negative
	if got.MateIn != -2 || got.Pawns >= 0 || got.Depth != 6 {
		t.Errorf("got %+v", got)
	}

	_, err = b.EvaluateOnly(context.Background(), "nope", 6)
	var f core.Failure
	if !errors.As(err, &f) || f.Kind != core.FailInvalidPosition {
		t.Errorf("err = %v, want INVALID_POSITION failure", err)
	}
}

func TestNewGameAndObserveMoveReachRemote(t *testing.T) {
	rem := &fakeRemote{}
	b := New(&fakeEvaluator{}, rem, zaptest.NewLogger(t))

	if err := b.NewGame(context.Background(), core.OpponentRemoteService); err != nil {
		t.Fatal(err)
	}
	if err := b.ObserveMove(context.Background(), core.OpponentRemoteService, "e4"); err != nil {
		t.Fatal(err)
	}
	if err := b.ObserveMove(context.Background(), core.OpponentLocalEngine, "d4"); err != nil {
		t.Fatal(err)
	}
	if rem.inits != 1 || len(rem.notified) != 1 || rem.notified[0] != "e4" {
		t.Errorf("remote saw inits=%d notified=%v", rem.inits, rem.notified)
	}
}
