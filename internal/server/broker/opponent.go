package broker

import (
	"context"
	"errors"

	"chessduel/internal/server/core"
	"chessduel/internal/server/engine"
	"chessduel/internal/server/remote"
	"chessduel/internal/server/rules"

	"go.uber.org/zap"
)

// Evaluator runs fixed-depth engine searches. *engine.Pool satisfies it.
type Evaluator interface {
	Search(ctx context.Context, fen string, depth int) (*engine.SearchResult, error)
}

// RemoteService is the external move generator. *remote.Client satisfies it.
type RemoteService interface {
	GetMove(ctx context.Context, fen string) (*remote.MoveReply, error)
	NotifyMove(ctx context.Context, move string) error
	Init(ctx context.Context) error
}

// Opponent produces moves for one opponent kind
type Opponent interface {
	RequestMove(ctx context.Context, fen string, depth int) core.Outcome
	NewGame(ctx context.Context) error
	ObserveMove(ctx context.Context, san string) error
}

// LocalEngine answers moves with the UCI engine pool
type LocalEngine struct {
	eval Evaluator
	log  *zap.Logger
}

func NewLocalEngine(eval Evaluator, log *zap.Logger) *LocalEngine {
	return &LocalEngine{eval: eval, log: log}
}

// RequestMove searches fen and applies the engine's best move to it
func (e *LocalEngine) RequestMove(ctx context.Context, fen string, depth int) core.Outcome {
	res, err := e.eval.Search(ctx, fen, depth)
	if err != nil {
		return core.Fail(core.FailEngineUnavailable, "%v", err)
	}

	if res.BestMove == "" || res.BestMove == "(none)" || res.BestMove == "0000" {
		if t, over, _ := rules.Status(fen); over {
			return core.GameOver{Result: t.Result, Method: t.Method}
		}
		return core.Fail(core.FailEngineSuggestedIllegalMove, "engine returned no move for a playable position")
	}

	applied, err := rules.ApplyUCI(fen, res.BestMove)
	if err != nil {
		e.log.Error("engine suggested illegal move",
			zap.String("fen", fen),
			zap.String("move", res.BestMove),
			zap.Error(err))
		return core.Fail(core.FailEngineSuggestedIllegalMove, "%s in %s", res.BestMove, fen)
	}

	pawns, mateIn := e.score(fen, res)
	return core.Success{
		Move:       applied.Move,
		SAN:        applied.SAN,
		FEN:        applied.FEN,
		Evaluation: pawns,
		MateIn:     mateIn,
		Result:     applied.Result,
	}
}

// Evaluate scores fen without playing a move
func (e *LocalEngine) Evaluate(ctx context.Context, fen string, depth int) (core.Evaluation, error) {
	res, err := e.eval.Search(ctx, fen, depth)
	if err != nil {
		return core.Evaluation{}, core.Fail(core.FailEngineUnavailable, "%v", err)
	}
	pawns, mateIn := e.score(fen, res)
	return core.Evaluation{Pawns: pawns, MateIn: mateIn, Depth: res.Depth}, nil
}

func (e *LocalEngine) score(fen string, res *engine.SearchResult) (float64, int) {
	if !res.HasScore {
		e.log.Debug("evaluation unavailable, using 0", zap.String("fen", fen))
		return 0, 0
	}
	side, err := rules.SideToMove(fen)
	if err != nil {
		return 0, 0
	}
	return whitePositive(res, side)
}

// NewGame is a no-op: the position is resent before every search
func (e *LocalEngine) NewGame(context.Context) error { return nil }

func (e *LocalEngine) ObserveMove(context.Context, string) error { return nil }

// whitePositive converts a side-to-move relative score into pawns from
// White's point of view
func whitePositive(res *engine.SearchResult, side core.Color) (float64, int) {
	pawns := float64(res.Score) / 100
	mateIn := res.MateIn
	if side == core.ColorBlack {
		pawns, mateIn = -pawns, -mateIn
	}
	return pawns, mateIn
}

// RemoteOpponent asks the remote service for moves and scores them locally
type RemoteOpponent struct {
	svc    RemoteService
	scorer *LocalEngine // may be nil
	log    *zap.Logger
}

func NewRemoteOpponent(svc RemoteService, scorer *LocalEngine, log *zap.Logger) *RemoteOpponent {
	return &RemoteOpponent{svc: svc, scorer: scorer, log: log}
}

// RequestMove fetches the service's move for fen. The service does not
// score positions, so the resulting position is evaluated by the local
// engine at depth; a failed evaluation degrades to 0.
func (r *RemoteOpponent) RequestMove(ctx context.Context, fen string, depth int) core.Outcome {
	reply, err := r.svc.GetMove(ctx, fen)
	if err != nil {
		return core.Fail(core.FailRemoteServiceUnavailable, "%v", err)
	}

	switch reply.Status {
	case remote.StatusGameOver:
		return core.GameOver{Result: reply.Result}
	case remote.StatusError:
		return core.Fail(core.FailRemoteServiceError, "%s", reply.Message)
	}

	applied, err := rules.ApplySAN(fen, reply.Move)
	if err != nil {
		r.log.Warn("remote service sent unusable move",
			zap.String("fen", fen),
			zap.String("move", reply.Move),
			zap.Error(err))
		return core.Fail(core.FailInvalidRemoteMove, "%q in %s", reply.Move, fen)
	}
	if reply.NewFEN != "" {
		if normalized, err := rules.Normalize(reply.NewFEN); err != nil || normalized != applied.FEN {
			r.log.Debug("remote position differs from applied move",
				zap.String("remote", reply.NewFEN),
				zap.String("applied", applied.FEN))
		}
	}

	success := core.Success{
		Move:   applied.Move,
		SAN:    applied.SAN,
		FEN:    applied.FEN,
		Result: applied.Result,
	}
	if r.scorer != nil {
		if eval, err := r.scorer.Evaluate(ctx, applied.FEN, depth); err == nil {
			success.Evaluation = eval.Pawns
			success.MateIn = eval.MateIn
		} else if !errors.Is(ctx.Err(), context.Canceled) {
			r.log.Debug("scoring remote move failed, using 0", zap.Error(err))
		}
	}
	return success
}

func (r *RemoteOpponent) NewGame(ctx context.Context) error {
	return r.svc.Init(ctx)
}

func (r *RemoteOpponent) ObserveMove(ctx context.Context, san string) error {
	return r.svc.NotifyMove(ctx, san)
}
