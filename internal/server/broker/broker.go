// Package broker routes move requests to the opponent backend selected by a
// game session and folds every backend's result into a core.Outcome.
package broker

import (
	"context"

	"chessduel/internal/server/core"
	"chessduel/internal/server/rules"

	"go.uber.org/zap"
)

// Request asks for the opponent's move in Position
type Request struct {
	Position string
	Opponent core.OpponentKind
	Depth    int
}

type Broker struct {
	local     *LocalEngine
	opponents map[core.OpponentKind]Opponent
	log       *zap.Logger
}

// New builds a broker over the engine evaluator. svc may be nil when no
// remote service is configured.
func New(eval Evaluator, svc RemoteService, log *zap.Logger) *Broker {
	local := NewLocalEngine(eval, log.Named("engine"))
	b := &Broker{
		local: local,
		opponents: map[core.OpponentKind]Opponent{
			core.OpponentLocalEngine: local,
		},
		log: log,
	}
	if svc != nil {
		b.opponents[core.OpponentRemoteService] = NewRemoteOpponent(svc, local, log.Named("remote"))
	}
	return b
}

// GetNextMove dispatches req to its opponent backend
func (b *Broker) GetNextMove(ctx context.Context, req Request) core.Outcome {
	if req.Opponent == core.OpponentNone {
		return core.Fail(core.FailNoOpponentSelected, "select an opponent before requesting a move")
	}
	if !req.Opponent.Valid() {
		return core.Fail(core.FailUnknownOpponentKind, "unknown opponent kind %q", string(req.Opponent))
	}

	if outcome := b.checkPosition(req.Position); outcome != nil {
		return outcome
	}

	opp, ok := b.opponents[req.Opponent]
	if !ok {
		return core.Fail(core.FailRemoteServiceUnavailable, "%s is not configured", req.Opponent)
	}

	outcome := opp.RequestMove(ctx, req.Position, depthOrDefault(req.Depth))
	b.logOutcome(req, outcome)
	return outcome
}

// SuggestMove asks the local engine for a move regardless of the session's opponent
func (b *Broker) SuggestMove(ctx context.Context, fen string, depth int) core.Outcome {
	if outcome := b.checkPosition(fen); outcome != nil {
		return outcome
	}
	return b.local.RequestMove(ctx, fen, depthOrDefault(depth))
}

// EvaluateOnly scores fen with the local engine. Errors are core.Failure values.
func (b *Broker) EvaluateOnly(ctx context.Context, fen string, depth int) (core.Evaluation, error) {
	if err := rules.ValidateFEN(fen); err != nil {
		return core.Evaluation{}, core.Fail(core.FailInvalidPosition, "%v", err)
	}
	return b.local.Evaluate(ctx, fen, depthOrDefault(depth))
}

// NewGame resets opponents that keep their own game state
func (b *Broker) NewGame(ctx context.Context, kind core.OpponentKind) error {
	opp, ok := b.opponents[kind]
	if !ok {
		return nil
	}
	return opp.NewGame(ctx)
}

// ObserveMove tells the opponent about a move it did not make
func (b *Broker) ObserveMove(ctx context.Context, kind core.OpponentKind, san string) error {
	opp, ok := b.opponents[kind]
	if !ok {
		return nil
	}
	return opp.ObserveMove(ctx, san)
}

// checkPosition returns a non-nil outcome when fen cannot be played from
func (b *Broker) checkPosition(fen string) core.Outcome {
	t, over, err := rules.Status(fen)
	if err != nil {
		return core.Fail(core.FailInvalidPosition, "%v", err)
	}
	if over {
		return core.GameOver{Result: t.Result, Method: t.Method}
	}
	return nil
}

func (b *Broker) logOutcome(req Request, outcome core.Outcome) {
	switch o := outcome.(type) {
	case core.Success:
		b.log.Debug("opponent moved",
			zap.Stringer("opponent", req.Opponent),
			zap.String("move", o.Move.String()),
			zap.Float64("evaluation", o.Evaluation))
	case core.GameOver:
		b.log.Info("opponent reports game over",
			zap.Stringer("opponent", req.Opponent),
			zap.String("result", o.Result))
	case core.Failure:
		b.log.Warn("opponent failed",
			zap.Stringer("opponent", req.Opponent),
			zap.String("kind", string(o.Kind)),
			zap.String("message", o.Message))
	}
}

func depthOrDefault(depth int) int {
	if depth < 1 {
		return core.DefaultSearchDepth
	}
	return depth
}
