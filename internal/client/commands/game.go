package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chessduel/internal/client/display"
	"chessduel/internal/client/session"
	"chessduel/internal/server/core"
)

func (r *Registry) registerGameCommands() {
	r.Register(&Command{
		Name:        "new",
		ShortName:   "n",
		Description: "Create a new session",
		Usage:       "new [color=w|b] [opponent=engine|remote|none] [depth=1-30] [fen=<FEN...>]",
		Handler:     newSessionHandler,
	})
	r.Register(&Command{
		Name:        "join",
		ShortName:   "j",
		Description: "Set the current session",
		Usage:       "join <sessionId>",
		Handler:     joinSessionHandler,
	})
	r.Register(&Command{
		Name:        "config",
		ShortName:   "g",
		Description: "Change opponent or search depth",
		Usage:       "config [opponent=engine|remote] [depth=1-30]",
		Handler:     configHandler,
	})
	r.Register(&Command{
		Name:        "move",
		ShortName:   "m",
		Description: "Play a move and wait for the reply",
		Usage:       "move <uci-move>",
		Handler:     moveHandler,
	})
	r.Register(&Command{
		Name:        "next",
		ShortName:   "c",
		Description: "Ask the opponent to move",
		Usage:       "next",
		Handler:     nextHandler,
	})
	r.Register(&Command{
		Name:        "hint",
		ShortName:   "t",
		Description: "Suggest a move for the side to move",
		Usage:       "hint",
		Handler:     hintHandler,
	})
	r.Register(&Command{
		Name:        "eval",
		ShortName:   "v",
		Description: "Evaluate the current position",
		Usage:       "eval",
		Handler:     evalHandler,
	})
	r.Register(&Command{
		Name:        "undo",
		ShortName:   "u",
		Description: "Undo moves",
		Usage:       "undo [count]",
		Handler:     undoHandler,
	})
	r.Register(&Command{
		Name:        "show",
		ShortName:   "h",
		Description: "Show board and session state",
		Usage:       "show",
		Handler:     showHandler,
	})
	r.Register(&Command{
		Name:        "state",
		ShortName:   "s",
		Description: "Show raw session JSON",
		Usage:       "state",
		Handler:     stateHandler,
	})
	r.Register(&Command{
		Name:        "delete",
		ShortName:   "d",
		Description: "Delete a session",
		Usage:       "delete [sessionId]",
		Handler:     deleteHandler,
	})
	r.Register(&Command{
		Name:        "poll",
		ShortName:   "p",
		Description: "Long-poll for session updates",
		Usage:       "poll",
		Handler:     pollHandler,
	})
	r.Register(&Command{
		Name:        "ask",
		ShortName:   "a",
		Description: "Request one move for any position",
		Usage:       "ask [opponent=engine|remote] [depth=N] fen=<FEN...>",
		Handler:     askHandler,
	})
}

// parseOpponent accepts the wire names and their short forms
func parseOpponent(v string) (core.OpponentKind, error) {
	switch strings.ToLower(v) {
	case "engine", "local", "localengine":
		return core.OpponentLocalEngine, nil
	case "remote", "remoteservice":
		return core.OpponentRemoteService, nil
	case "none", "":
		return core.OpponentNone, nil
	default:
		return "", fmt.Errorf("unknown opponent %q", v)
	}
}

// parseOptions reads key=value arguments; fen consumes the rest of the line
func parseOptions(args []string) (map[string]string, error) {
	opts := make(map[string]string)
	for i, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		key = strings.ToLower(key)
		if key == "fen" {
			opts[key] = strings.TrimSpace(strings.Join(append([]string{value}, args[i+1:]...), " "))
			break
		}
		opts[key] = value
	}
	return opts, nil
}

func parseCreateRequest(args []string) (core.CreateSessionRequest, error) {
	var req core.CreateSessionRequest
	opts, err := parseOptions(args)
	if err != nil {
		return req, err
	}
	for key, value := range opts {
		switch key {
		case "color":
			if value != "w" && value != "b" {
				return req, fmt.Errorf("color must be w or b, got %q", value)
			}
			req.PlayerColor = value
		case "opponent":
			if req.Opponent, err = parseOpponent(value); err != nil {
				return req, err
			}
		case "depth":
			if req.Depth, err = strconv.Atoi(value); err != nil {
				return req, fmt.Errorf("invalid depth %q", value)
			}
		case "fen":
			req.FEN = value
		default:
			return req, fmt.Errorf("unknown option %q", key)
		}
	}
	return req, nil
}

func parseConfigureRequest(args []string) (core.ConfigureSessionRequest, error) {
	var req core.ConfigureSessionRequest
	opts, err := parseOptions(args)
	if err != nil {
		return req, err
	}
	for key, value := range opts {
		switch key {
		case "opponent":
			kind, err := parseOpponent(value)
			if err != nil {
				return req, err
			}
			req.Opponent = &kind
		case "depth":
			depth, err := strconv.Atoi(value)
			if err != nil {
				return req, fmt.Errorf("invalid depth %q", value)
			}
			req.Depth = &depth
		default:
			return req, fmt.Errorf("unknown option %q", key)
		}
	}
	if req.Opponent == nil && req.Depth == nil {
		return req, errors.New("nothing to change")
	}
	return req, nil
}

func newSessionHandler(s *session.Session, args []string) error {
	req, err := parseCreateRequest(args)
	if err != nil {
		return err
	}

	resp, err := s.Client.CreateSession(req)
	if err != nil {
		return err
	}
	s.Track(resp)

	fmt.Printf("%sSession created: %s%s\n", display.Green, resp.SessionID, display.Reset)
	fmt.Printf("You play %s against %s (depth %d)\n",
		display.ColorForTurn(resp.PlayerColor), resp.Opponent, resp.Depth)

	// The opponent opens when the player has Black
	if resp.State == core.StatePending.String() {
		return awaitOpponent(s)
	}
	return nil
}

func joinSessionHandler(s *session.Session, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: join <sessionId>")
	}

	resp, err := s.Client.GetSession(args[0])
	if err != nil {
		return err
	}
	s.Track(resp)

	fmt.Printf("%sJoined session: %s%s\n", display.Green, resp.SessionID, display.Reset)
	printSummary(resp)
	return nil
}

func configHandler(s *session.Session, args []string) error {
	id, err := requireSession(s)
	if err != nil {
		return err
	}
	req, err := parseConfigureRequest(args)
	if err != nil {
		return err
	}

	resp, err := s.Client.ConfigureSession(id, req)
	if err != nil {
		return err
	}
	s.Track(resp)
	fmt.Printf("%sOpponent: %s | Depth: %d%s\n", display.Green, resp.Opponent, resp.Depth, display.Reset)
	return nil
}

func moveHandler(s *session.Session, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: move <uci-move>")
	}
	id, err := requireSession(s)
	if err != nil {
		return err
	}
	move, err := core.ParseMove(args[0])
	if err != nil {
		return err
	}

	resp, err := s.Client.MakeMove(id, move)
	if err != nil {
		return err
	}
	s.Track(resp)
	fmt.Printf("%sMove accepted%s (eval %s)\n", display.Green, display.Reset,
		display.FormatEval(resp.Evaluation, 0))

	if resp.State == core.StatePending.String() {
		return awaitOpponent(s)
	}
	printOutcome(resp)
	return nil
}

func nextHandler(s *session.Session, args []string) error {
	id, err := requireSession(s)
	if err != nil {
		return err
	}

	resp, err := s.Client.NextMove(id)
	if err != nil {
		return err
	}
	s.Track(resp)
	return awaitOpponent(s)
}

// awaitOpponent long-polls until the pending opponent move lands
func awaitOpponent(s *session.Session) error {
	fmt.Printf("%sOpponent is thinking...%s\n", display.Magenta, display.Reset)

	for s.State != nil && s.State.State == core.StatePending.String() {
		resp, err := s.Client.WaitSession(s.CurrentSession, s.LastMoveCount)
		if err != nil {
			return err
		}
		s.Track(resp)
	}

	resp := s.State
	if resp.LastMove != nil && resp.LastMove.By == "opponent" {
		fmt.Printf("%sOpponent played: %s%s", display.Magenta, resp.LastMove.Move, display.Reset)
		if resp.LastMove.SAN != "" {
			fmt.Printf(" (%s)", resp.LastMove.SAN)
		}
		fmt.Printf(" eval %s\n", display.FormatEval(resp.LastMove.Evaluation, resp.LastMove.MateIn))
	}
	printOutcome(resp)
	return nil
}

func hintHandler(s *session.Session, args []string) error {
	id, err := requireSession(s)
	if err != nil {
		return err
	}

	hint, err := s.Client.Hint(id)
	if err != nil {
		return err
	}
	fmt.Printf("%sSuggested: %s%s%s (%s) eval %s\n", display.Cyan,
		hint.Move.From, hint.Move.To, hint.Move.Promotion, hint.SAN,
		display.FormatEval(hint.Evaluation, hint.MateIn)+display.Reset)
	return nil
}

func evalHandler(s *session.Session, args []string) error {
	id, err := requireSession(s)
	if err != nil {
		return err
	}

	eval, err := s.Client.Evaluate(id)
	if err != nil {
		return err
	}
	fmt.Printf("%sEvaluation: %s at depth %d%s\n", display.Cyan,
		display.FormatEval(eval.Pawns, eval.MateIn), eval.Depth, display.Reset)
	return nil
}

func undoHandler(s *session.Session, args []string) error {
	id, err := requireSession(s)
	if err != nil {
		return err
	}

	count := 1
	if len(args) > 0 {
		if count, err = strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("invalid count: %s", args[0])
		}
	}

	resp, err := s.Client.Undo(id, count)
	if err != nil {
		return err
	}
	s.Track(resp)
	fmt.Printf("%sUndid %d move(s)%s\n", display.Green, count, display.Reset)
	return nil
}

func showHandler(s *session.Session, args []string) error {
	id, err := requireSession(s)
	if err != nil {
		return err
	}

	resp, err := s.Client.GetSession(id)
	if err != nil {
		return err
	}
	s.Track(resp)

	board, err := display.RenderFEN(resp.FEN, resp.PlayerColor == "b")
	if err != nil {
		// Fall back to the server's drawing
		b, berr := s.Client.Board(id)
		if berr != nil {
			return err
		}
		board = b.Board
	}

	fmt.Println()
	fmt.Print(board)
	fmt.Printf("\nFEN: %s\n", resp.FEN)
	printSummary(resp)

	if len(resp.Moves) > 0 {
		// Odd-length histories ending on White to move started with Black
		startBlack := (len(resp.Moves)%2 == 1) == (resp.Turn == "w")
		fmt.Printf("History: %s\n", display.FormatMoves(resp.Moves, startBlack))
	}
	if resp.LastMove != nil {
		fmt.Printf("Last move: %s by %s, eval %s\n", resp.LastMove.Move, resp.LastMove.By,
			display.FormatEval(resp.LastMove.Evaluation, resp.LastMove.MateIn))
	}
	return nil
}

func stateHandler(s *session.Session, args []string) error {
	id, err := requireSession(s)
	if err != nil {
		return err
	}

	resp, err := s.Client.GetSession(id)
	if err != nil {
		return err
	}
	s.Track(resp)

	fmt.Printf("%sSession State:%s\n", display.Cyan, display.Reset)
	display.PrettyPrintJSON(s.Out, resp)
	return nil
}

func deleteHandler(s *session.Session, args []string) error {
	id := s.CurrentSession
	if len(args) > 0 {
		id = args[0]
	}
	if id == "" {
		return errors.New("specify session ID or set current session")
	}

	if err := s.Client.DeleteSession(id); err != nil {
		return err
	}
	if id == s.CurrentSession {
		s.Forget()
	}
	fmt.Printf("%sSession deleted: %s%s\n", display.Green, id, display.Reset)
	return nil
}

func pollHandler(s *session.Session, args []string) error {
	id, err := requireSession(s)
	if err != nil {
		return err
	}

	before := s.LastMoveCount
	fmt.Printf("%sLong-polling for updates (move count: %d)...%s\n", display.Cyan, before, display.Reset)

	resp, err := s.Client.WaitSession(id, before)
	if err != nil {
		return err
	}
	s.Track(resp)

	if len(resp.Moves) != before {
		fmt.Printf("%sSession updated%s\n", display.Green, display.Reset)
		printSummary(resp)
	} else {
		fmt.Printf("%sNo updates%s\n", display.Yellow, display.Reset)
	}
	return nil
}

func askHandler(s *session.Session, args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	req := core.BrokerRequest{Position: opts["fen"], OpponentKind: core.OpponentLocalEngine}
	if req.Position == "" {
		return errors.New("fen=<FEN> required")
	}
	if v, ok := opts["opponent"]; ok {
		if req.OpponentKind, err = parseOpponent(v); err != nil {
			return err
		}
	}
	if v, ok := opts["depth"]; ok {
		if req.Depth, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid depth %q", v)
		}
	}

	resp, err := s.Client.BrokerMove(req)
	if err != nil {
		if resp.Code != "" {
			fmt.Printf("%sFailure %s: %s%s\n", display.Red, resp.Code, resp.Error, display.Reset)
		}
		return err
	}

	switch {
	case resp.Move != nil:
		eval := 0.0
		if resp.Evaluation != nil {
			eval = *resp.Evaluation
		}
		fmt.Printf("%sMove: %s%s%s (%s) eval %s%s\n", display.Green,
			resp.Move.From, resp.Move.To, resp.Move.Promotion, resp.SAN,
			display.FormatEval(eval, resp.MateIn), display.Reset)
		if resp.Result != "" {
			fmt.Printf("Game over after the move: %s\n", resp.Result)
		}
	case resp.GameOver != nil:
		fmt.Printf("%sGame already over: %s (%s)%s\n", display.Yellow,
			resp.GameOver.Result, resp.GameOver.Method, display.Reset)
	}
	return nil
}

func printSummary(resp *core.SessionResponse) {
	fmt.Printf("Turn: %s | State: %s | Moves: %d | Opponent: %s | Eval: %s\n",
		display.ColorForTurn(resp.Turn), resp.State, len(resp.Moves), resp.Opponent,
		display.FormatEval(resp.Evaluation, 0))
	if resp.Failure != "" {
		fmt.Printf("%sOpponent failure: %s (undo or change opponent)%s\n", display.Red, resp.Failure, display.Reset)
	}
}

func printOutcome(resp *core.SessionResponse) {
	switch {
	case resp.Result != "":
		fmt.Printf("%sGame over: %s (%s)%s\n", display.Yellow, resp.State, resp.Result, display.Reset)
	case resp.Failure != "":
		fmt.Printf("%sOpponent failure: %s%s\n", display.Red, resp.Failure, display.Reset)
	}
}
