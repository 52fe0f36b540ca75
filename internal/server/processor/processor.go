package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"chessduel/internal/server/broker"
	"chessduel/internal/server/core"
	"chessduel/internal/server/game"
	"chessduel/internal/server/rules"
	"chessduel/internal/server/service"
	"chessduel/internal/server/storage"

	"go.uber.org/zap"
)

// backendTimeout bounds the synchronous calls made to opponents outside a move search
const backendTimeout = 5 * time.Second

// MoveBroker is the part of the broker the processor drives
type MoveBroker interface {
	GetNextMove(ctx context.Context, req broker.Request) core.Outcome
	SuggestMove(ctx context.Context, fen string, depth int) core.Outcome
	EvaluateOnly(ctx context.Context, fen string, depth int) (core.Evaluation, error)
	NewGame(ctx context.Context, kind core.OpponentKind) error
	ObserveMove(ctx context.Context, kind core.OpponentKind, san string) error
}

// Processor handles command execution and coordinates between the session
// service and the move broker
type Processor struct {
	svc    *service.Service
	broker MoveBroker
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// commandError carries an API error code out of a session update
type commandError struct {
	code    string
	message string
}

func (e *commandError) Error() string { return e.message }

func fail(code, format string, args ...any) error {
	return &commandError{code: code, message: fmt.Sprintf(format, args...)}
}

func New(svc *service.Service, b MoveBroker, log *zap.Logger) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		svc:    svc,
		broker: b,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Processor) Execute(ctx context.Context, cmd Command) ProcessorResponse {
	switch cmd.Type {
	case CmdCreateSession:
		return p.handleCreateSession(ctx, cmd)
	case CmdConfigureSession:
		return p.handleConfigureSession(ctx, cmd)
	case CmdGetSession:
		return p.handleGetSession(cmd)
	case CmdDeleteSession:
		return p.handleDeleteSession(cmd)
	case CmdMakeMove:
		return p.handleMakeMove(cmd)
	case CmdOpponentMove:
		return p.handleOpponentMove(cmd)
	case CmdHint:
		return p.handleHint(ctx, cmd)
	case CmdEvaluate:
		return p.handleEvaluate(ctx, cmd)
	case CmdUndoMove:
		return p.handleUndoMove(cmd)
	case CmdGetBoard:
		return p.handleGetBoard(cmd)
	case CmdBrokerMove:
		return p.handleBrokerMove(ctx, cmd)
	default:
		return p.errorResponse("unknown command", core.ErrInvalidRequest)
	}
}

// isFENSafe rejects control characters that could inject engine commands
func isFENSafe(fen string) bool {
	for _, r := range fen {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// handleCreateSession starts a session and asks the opponent to open when it moves first
func (p *Processor) handleCreateSession(ctx context.Context, cmd Command) ProcessorResponse {
	args, ok := cmd.Args.(core.CreateSessionRequest)
	if !ok {
		return p.errorResponse("invalid arguments", core.ErrInvalidRequest)
	}

	initialFEN := rules.StartingFEN
	if args.FEN != "" {
		if !isFENSafe(args.FEN) {
			return p.errorResponse("invalid FEN characters", core.ErrInvalidFEN)
		}
		normalized, err := rules.Normalize(args.FEN)
		if err != nil {
			return p.errorResponse(err.Error(), core.ErrInvalidFEN)
		}
		initialFEN = normalized
	}

	color := core.ColorWhite
	if args.PlayerColor == "b" {
		color = core.ColorBlack
	}

	sess, err := p.svc.CreateSession(cmd.UserID, initialFEN, color, args.Opponent, args.Depth)
	switch {
	case errors.Is(err, service.ErrSessionLimit):
		return p.errorResponse(err.Error(), core.ErrResourceLimit)
	case errors.Is(err, game.ErrInvalidDepth):
		return p.errorResponse(err.Error(), core.ErrInvalidDepth)
	case err != nil:
		return p.errorResponse(fmt.Sprintf("failed to create session: %v", err), core.ErrInternalError)
	}
	id := sess.ID()

	if args.Opponent != core.OpponentNone {
		p.resetOpponent(ctx, args.Opponent)
	}

	var resp core.SessionResponse
	var pending bool
	err = p.svc.Update(id, func(s *game.Session) error {
		// A finished starting position never reaches the opponent
		if t, over, _ := rules.Status(s.CurrentFEN()); over {
			s.Finish(t.Result, t.Method)
			p.recordResult(id, t.Result)
		} else if !s.PlayerToMove() && s.Opponent() != core.OpponentNone {
			p.startOpponentMove(s, "")
			pending = true
		}
		resp = buildSessionResponse(s)
		return nil
	})
	if err != nil {
		return p.fromError(err)
	}

	return ProcessorResponse{Success: true, Pending: pending, Data: resp}
}

// handleConfigureSession changes the opponent or search depth
func (p *Processor) handleConfigureSession(ctx context.Context, cmd Command) ProcessorResponse {
	args, ok := cmd.Args.(core.ConfigureSessionRequest)
	if !ok {
		return p.errorResponse("invalid arguments", core.ErrInvalidRequest)
	}

	var resp core.SessionResponse
	var changedTo core.OpponentKind
	err := p.svc.Update(cmd.SessionID, func(s *game.Session) error {
		if err := authorize(s, cmd.UserID); err != nil {
			return err
		}
		if s.State() == core.StatePending {
			return fail(core.ErrSessionBusy, "cannot reconfigure while the opponent is thinking")
		}

		// Validate both fields before touching either
		if args.Depth != nil && (*args.Depth < 1 || *args.Depth > core.MaxSearchDepth) {
			return fail(core.ErrInvalidDepth, "%v, got %d", game.ErrInvalidDepth, *args.Depth)
		}
		if args.Opponent != nil && !args.Opponent.Valid() {
			return fail(core.ErrInvalidRequest, "unknown opponent kind %q", string(*args.Opponent))
		}

		if args.Depth != nil {
			if err := s.SetDepth(*args.Depth); err != nil {
				return fail(core.ErrInvalidDepth, "%v", err)
			}
		}
		if args.Opponent != nil && *args.Opponent != s.Opponent() {
			if err := s.SetOpponent(*args.Opponent); err != nil {
				return fail(core.ErrInvalidRequest, "%v", err)
			}
			changedTo = *args.Opponent
			// A new opponent gets a fresh attempt at the move the old one failed
			s.Unstick()
		}

		if store := p.svc.Store(); store != nil {
			store.UpdateGameConfig(s.ID(), string(s.Opponent()), s.Depth())
		}
		resp = buildSessionResponse(s)
		return nil
	})
	if err != nil {
		return p.fromError(err)
	}

	if changedTo != core.OpponentNone {
		p.resetOpponent(ctx, changedTo)
	}

	return ProcessorResponse{Success: true, Data: resp}
}

func (p *Processor) handleGetSession(cmd Command) ProcessorResponse {
	var resp core.SessionResponse
	err := p.svc.View(cmd.SessionID, func(s *game.Session) error {
		if err := authorize(s, cmd.UserID); err != nil {
			return err
		}
		resp = buildSessionResponse(s)
		return nil
	})
	if err != nil {
		return p.fromError(err)
	}
	return ProcessorResponse{Success: true, Pending: resp.State == core.StatePending.String(), Data: resp}
}

func (p *Processor) handleDeleteSession(cmd Command) ProcessorResponse {
	err := p.svc.View(cmd.SessionID, func(s *game.Session) error {
		return authorize(s, cmd.UserID)
	})
	if err != nil {
		return p.fromError(err)
	}

	if err := p.svc.DeleteSession(cmd.SessionID); err != nil {
		return p.fromError(err)
	}
	return ProcessorResponse{Success: true}
}

// handleMakeMove validates and applies the player's move, then hands the
// turn to the opponent
func (p *Processor) handleMakeMove(cmd Command) ProcessorResponse {
	args, ok := cmd.Args.(core.MoveRequest)
	if !ok {
		return p.errorResponse("invalid arguments", core.ErrInvalidRequest)
	}
	move := args.Move()
	move.From = strings.ToLower(move.From)
	move.To = strings.ToLower(move.To)
	if !move.WellFormed() {
		return p.errorResponse("invalid move format", core.ErrInvalidMove)
	}

	var resp core.SessionResponse
	var pending bool
	err := p.svc.Update(cmd.SessionID, func(s *game.Session) error {
		if err := authorize(s, cmd.UserID); err != nil {
			return err
		}
		if err := checkPlayable(s); err != nil {
			return err
		}
		if !s.PlayerToMove() {
			return fail(core.ErrInvalidMove, "not the player's turn")
		}

		prev := s.Current()
		applied, err := rules.ApplyMove(prev.FEN, move)
		if err != nil {
			return fail(core.ErrInvalidMove, "illegal move %s", move.String())
		}

		// The player's move keeps the last known score until the opponent reports
		snap := game.Snapshot{
			FEN:        applied.FEN,
			Move:       applied.Move.String(),
			SAN:        applied.SAN,
			By:         game.ByPlayer,
			Turn:       core.OppositeColor(prev.Turn),
			Evaluation: prev.Evaluation,
			MateIn:     prev.MateIn,
		}
		s.AddSnapshot(snap)
		p.recordMove(s, snap)

		switch {
		case applied.Result != "":
			s.Finish(applied.Result, applied.Method)
			p.recordResult(s.ID(), applied.Result)
		case s.Opponent() != core.OpponentNone:
			p.startOpponentMove(s, applied.SAN)
			pending = true
		default:
			s.SetState(core.StateOngoing)
		}

		resp = buildSessionResponse(s)
		return nil
	})
	if err != nil {
		return p.fromError(err)
	}

	return ProcessorResponse{Success: true, Pending: pending, Data: resp}
}

// handleOpponentMove asks the opponent to move when it is its turn, for
// example after the opponent was changed or a failed request is retried
func (p *Processor) handleOpponentMove(cmd Command) ProcessorResponse {
	var resp core.SessionResponse
	err := p.svc.Update(cmd.SessionID, func(s *game.Session) error {
		if err := authorize(s, cmd.UserID); err != nil {
			return err
		}
		if err := checkPlayable(s); err != nil {
			return err
		}
		if s.PlayerToMove() {
			return fail(core.ErrInvalidMove, "it is the player's turn")
		}
		if s.Opponent() == core.OpponentNone {
			f := core.Fail(core.FailNoOpponentSelected, "select an opponent before requesting a move")
			return fail(string(f.Kind), "%s", f.Message)
		}

		p.startOpponentMove(s, "")
		resp = buildSessionResponse(s)
		return nil
	})
	if err != nil {
		return p.fromError(err)
	}

	return ProcessorResponse{Success: true, Pending: true, Data: resp}
}

// handleHint suggests a move for the side to move using the local engine
func (p *Processor) handleHint(ctx context.Context, cmd Command) ProcessorResponse {
	var fen string
	var depth int
	err := p.svc.View(cmd.SessionID, func(s *game.Session) error {
		if err := authorize(s, cmd.UserID); err != nil {
			return err
		}
		fen, depth = s.CurrentFEN(), s.Depth()
		return nil
	})
	if err != nil {
		return p.fromError(err)
	}

	switch o := p.broker.SuggestMove(ctx, fen, depth).(type) {
	case core.Success:
		return ProcessorResponse{
			Success: true,
			Data: core.HintResponse{
				Move:       o.Move,
				SAN:        o.SAN,
				Evaluation: o.Evaluation,
				MateIn:     o.MateIn,
			},
		}
	case core.GameOver:
		return p.errorResponse(fmt.Sprintf("game is over: %s", o.Result), core.ErrGameOver)
	case core.Failure:
		return p.errorResponse(o.Error(), string(o.Kind))
	default:
		return p.errorResponse("unexpected outcome", core.ErrInternalError)
	}
}

// handleEvaluate scores the current position and stores the score on it
func (p *Processor) handleEvaluate(ctx context.Context, cmd Command) ProcessorResponse {
	var fen string
	var depth int
	err := p.svc.View(cmd.SessionID, func(s *game.Session) error {
		if err := authorize(s, cmd.UserID); err != nil {
			return err
		}
		fen, depth = s.CurrentFEN(), s.Depth()
		return nil
	})
	if err != nil {
		return p.fromError(err)
	}

	eval, err := p.broker.EvaluateOnly(ctx, fen, depth)
	if err != nil {
		return p.fromError(err)
	}

	// The position may have moved on while the engine was searching
	_ = p.svc.Update(cmd.SessionID, func(s *game.Session) error {
		if s.CurrentFEN() == fen {
			s.SetEvaluation(eval.Pawns, eval.MateIn)
		}
		return nil
	})

	return ProcessorResponse{Success: true, Data: eval}
}

// handleUndoMove reverts moves; evaluations of the remaining positions are kept as recorded
func (p *Processor) handleUndoMove(cmd Command) ProcessorResponse {
	args := core.UndoRequest{Count: 1}
	if req, ok := cmd.Args.(core.UndoRequest); ok && req.Count > 0 {
		args = req
	}

	var resp core.SessionResponse
	err := p.svc.Update(cmd.SessionID, func(s *game.Session) error {
		if err := authorize(s, cmd.UserID); err != nil {
			return err
		}
		if s.State() == core.StatePending {
			return fail(core.ErrSessionBusy, "cannot undo while the opponent is thinking")
		}
		if err := s.UndoMoves(args.Count); err != nil {
			return fail(core.ErrInvalidRequest, "%v", err)
		}

		if store := p.svc.Store(); store != nil {
			store.DeleteUndoneMoves(s.ID(), s.MoveCount())
			store.RecordResult(s.ID(), "")
		}
		resp = buildSessionResponse(s)
		return nil
	})
	if err != nil {
		return p.fromError(err)
	}

	return ProcessorResponse{Success: true, Data: resp}
}

func (p *Processor) handleGetBoard(cmd Command) ProcessorResponse {
	var fen string
	err := p.svc.View(cmd.SessionID, func(s *game.Session) error {
		if err := authorize(s, cmd.UserID); err != nil {
			return err
		}
		fen = s.CurrentFEN()
		return nil
	})
	if err != nil {
		return p.fromError(err)
	}

	drawing, err := rules.Board(fen)
	if err != nil {
		return p.errorResponse("error parsing FEN", core.ErrInvalidFEN)
	}

	return ProcessorResponse{
		Success: true,
		Data:    core.BoardResponse{FEN: fen, Board: drawing},
	}
}

// handleBrokerMove answers a one-off move request that is not tied to a session
func (p *Processor) handleBrokerMove(ctx context.Context, cmd Command) ProcessorResponse {
	args, ok := cmd.Args.(core.BrokerRequest)
	if !ok {
		return p.errorResponse("invalid arguments", core.ErrInvalidRequest)
	}
	if !isFENSafe(args.Position) {
		return p.errorResponse("invalid FEN characters", core.ErrInvalidFEN)
	}

	outcome := p.broker.GetNextMove(ctx, broker.Request{
		Position: args.Position,
		Opponent: args.OpponentKind,
		Depth:    args.Depth,
	})
	resp := core.NewBrokerResponse(outcome)
	if f, isFailure := outcome.(core.Failure); isFailure {
		return ProcessorResponse{
			Success: false,
			Data:    resp,
			Error:   &core.ErrorResponse{Error: f.Error(), Code: string(f.Kind)},
		}
	}
	return ProcessorResponse{Success: true, Data: resp}
}

// startOpponentMove marks the session pending and requests the opponent's
// move in the background. Must be called inside a session update.
func (p *Processor) startOpponentMove(s *game.Session, observedSAN string) {
	s.SetState(core.StatePending)

	id, fen, kind, depth := s.ID(), s.CurrentFEN(), s.Opponent(), s.Depth()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOpponentMove(id, fen, kind, depth, observedSAN)
	}()
}

func (p *Processor) runOpponentMove(id, fen string, kind core.OpponentKind, depth int, observedSAN string) {
	if observedSAN != "" {
		ctx, cancel := context.WithTimeout(p.ctx, backendTimeout)
		if err := p.broker.ObserveMove(ctx, kind, observedSAN); err != nil {
			p.log.Warn("failed to relay player move",
				zap.String("session", id),
				zap.Stringer("opponent", kind),
				zap.Error(err))
		}
		cancel()
	}

	outcome := p.broker.GetNextMove(p.ctx, broker.Request{Position: fen, Opponent: kind, Depth: depth})

	err := p.svc.Update(id, func(s *game.Session) error {
		// Undo, reconfiguration or another request superseded this one
		if s.State() != core.StatePending || s.CurrentFEN() != fen {
			return nil
		}

		switch o := outcome.(type) {
		case core.Success:
			snap := game.Snapshot{
				FEN:        o.FEN,
				Move:       o.Move.String(),
				SAN:        o.SAN,
				By:         game.ByOpponent,
				Turn:       core.OppositeColor(s.Turn()),
				Evaluation: o.Evaluation,
				MateIn:     o.MateIn,
			}
			s.AddSnapshot(snap)
			p.recordMove(s, snap)
			if o.Result != "" {
				t, _, _ := rules.Status(o.FEN)
				s.Finish(o.Result, t.Method)
				p.recordResult(id, o.Result)
			} else {
				s.SetState(core.StateOngoing)
			}
		case core.GameOver:
			s.Finish(o.Result, o.Method)
			p.recordResult(id, o.Result)
		case core.Failure:
			s.Stick(o.Error())
		}
		return nil
	})
	if err != nil && !errors.Is(err, service.ErrSessionNotFound) {
		p.log.Error("failed to apply opponent move", zap.String("session", id), zap.Error(err))
	}
}

// resetOpponent starts a fresh game on opponents that keep state between requests
func (p *Processor) resetOpponent(ctx context.Context, kind core.OpponentKind) {
	ctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()
	if err := p.broker.NewGame(ctx, kind); err != nil {
		p.log.Warn("failed to reset opponent", zap.Stringer("opponent", kind), zap.Error(err))
	}
}

func (p *Processor) recordMove(s *game.Session, snap game.Snapshot) {
	store := p.svc.Store()
	if store == nil {
		return
	}
	store.RecordMove(storage.MoveRecord{
		GameID:       s.ID(),
		MoveNumber:   s.MoveCount(),
		MoveUCI:      snap.Move,
		MoveSAN:      snap.SAN,
		FENAfterMove: snap.FEN,
		PlayerColor:  core.OppositeColor(snap.Turn).String(),
		MovedBy:      snap.By,
		Evaluation:   snap.Evaluation,
		MoveTimeUTC:  time.Now().UTC(),
	})
}

func (p *Processor) recordResult(id, result string) {
	if store := p.svc.Store(); store != nil {
		store.RecordResult(id, result)
	}
}

// authorize allows anonymous sessions to anyone holding the ID and owned
// sessions only to their owner
func authorize(s *game.Session, userID string) error {
	if s.Owner() != "" && s.Owner() != userID {
		return fail(core.ErrForbidden, "session belongs to another user")
	}
	return nil
}

func checkPlayable(s *game.Session) error {
	switch st := s.State(); {
	case st == core.StatePending:
		return fail(core.ErrSessionBusy, "opponent move in progress")
	case st.IsOver():
		return fail(core.ErrGameOver, "game is over: %s", st)
	}
	return nil
}

// buildSessionResponse constructs the standard session response
func buildSessionResponse(s *game.Session) core.SessionResponse {
	cur := s.Current()
	result, _ := s.Result()
	resp := core.SessionResponse{
		SessionID:   s.ID(),
		FEN:         cur.FEN,
		Turn:        cur.Turn.String(),
		State:       s.State().String(),
		Result:      result,
		Opponent:    s.Opponent().String(),
		Depth:       s.Depth(),
		PlayerColor: s.PlayerColor().String(),
		Moves:       s.Moves(),
		Evaluation:  cur.Evaluation,
		Failure:     s.Failure(),
	}
	if last, ok := s.LastMove(); ok {
		resp.LastMove = &core.MoveInfo{
			Move:       last.Move,
			SAN:        last.SAN,
			By:         last.By,
			Evaluation: last.Evaluation,
			MateIn:     last.MateIn,
		}
	}
	return resp
}

// fromError maps service, broker and command errors to an API response
func (p *Processor) fromError(err error) ProcessorResponse {
	var cmdErr *commandError
	var failure core.Failure
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return p.errorResponse("session not found", core.ErrSessionNotFound)
	case errors.As(err, &cmdErr):
		return p.errorResponse(cmdErr.message, cmdErr.code)
	case errors.As(err, &failure):
		return p.errorResponse(failure.Error(), string(failure.Kind))
	default:
		p.log.Error("command failed", zap.Error(err))
		return p.errorResponse(err.Error(), core.ErrInternalError)
	}
}

// errorResponse creates error response
func (p *Processor) errorResponse(message, code string) ProcessorResponse {
	return ProcessorResponse{
		Success: false,
		Error: &core.ErrorResponse{
			Error: message,
			Code:  code,
		},
	}
}

// Wait blocks until every in-flight opponent request has been applied
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Close cancels in-flight opponent requests and waits for them to finish
func (p *Processor) Close(timeout time.Duration) error {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("processor shutdown timeout exceeded")
	}
}
