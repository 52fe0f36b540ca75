package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPath = "stockfish"

	handshakeTimeout = 5 * time.Second
	lineBuffer       = 256

	// Centipawn equivalent of a forced mate, adjusted by distance
	mateScore = 100000
)

// stopGrace is how long a stopped search may take to report its best move
var stopGrace = 500 * time.Millisecond

var (
	ErrEngineClosed       = errors.New("engine closed unexpectedly")
	ErrSearchTimeout      = errors.New("engine search timed out")
	ErrEngineUnresponsive = errors.New("engine did not answer stop")
)

// UCI is one live engine subprocess speaking the Universal Chess Interface.
// A UCI value runs one search at a time.
type UCI struct {
	cmd   *exec.Cmd
	in    *bufio.Writer
	lines chan string
	mu    sync.Mutex
	log   *zap.Logger
}

// SearchResult holds the outcome of one fixed-depth search.
// Score is in centipawns from the point of view of the side to move.
type SearchResult struct {
	BestMove string
	Score    int
	HasScore bool
	Depth    int
	IsMate   bool
	MateIn   int
}

// New starts the engine binary at path, applies options (e.g. Threads, Hash)
// and completes the UCI handshake
func New(path string, options map[string]string, log *zap.Logger) (*UCI, error) {
	if path == "" {
		path = DefaultPath
	}
	cmd := exec.Command(path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine %q: %w", path, err)
	}

	u := newUCI(stdout, stdin, log)
	u.cmd = cmd

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	if err := u.initialize(ctx, options); err != nil {
		u.Close()
		return nil, err
	}

	log.Debug("engine started", zap.String("path", path), zap.Int("pid", cmd.Process.Pid))
	return u, nil
}

func newUCI(r io.Reader, w io.Writer, log *zap.Logger) *UCI {
	u := &UCI{
		in:    bufio.NewWriter(w),
		lines: make(chan string, lineBuffer),
		log:   log,
	}
	go u.pump(r)
	return u
}

// pump forwards engine output lines until the pipe closes
func (u *UCI) pump(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		u.lines <- scanner.Text()
	}
	close(u.lines)
}

func (u *UCI) initialize(ctx context.Context, options map[string]string) error {
	if err := u.send("uci"); err != nil {
		return err
	}
	if err := u.readUntil(ctx, func(line string) bool { return line == "uciok" }); err != nil {
		return fmt.Errorf("waiting for uciok: %w", err)
	}

	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := u.SetOption(name, options[name]); err != nil {
			return fmt.Errorf("setoption %s: %w", name, err)
		}
	}
	return u.NewGame(ctx)
}

// sync sends isready and discards output up to readyok, so stale lines from
// an earlier search never leak into the next one
func (u *UCI) sync(ctx context.Context) error {
	if err := u.send("isready"); err != nil {
		return err
	}
	if err := u.readUntil(ctx, func(line string) bool { return line == "readyok" }); err != nil {
		return fmt.Errorf("waiting for readyok: %w", err)
	}
	return nil
}

func (u *UCI) readUntil(ctx context.Context, match func(string) bool) error {
	for {
		select {
		case line, ok := <-u.lines:
			if !ok {
				return ErrEngineClosed
			}
			if match(line) {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (u *UCI) send(cmd string) error {
	if _, err := fmt.Fprintln(u.in, cmd); err != nil {
		return err
	}
	return u.in.Flush()
}

// SetOption sets a named engine option
func (u *UCI) SetOption(name, value string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.send(fmt.Sprintf("setoption name %s value %s", name, value))
}

// NewGame clears the engine's search history and waits until it is ready
func (u *UCI) NewGame(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.send("ucinewgame"); err != nil {
		return err
	}
	return u.sync(ctx)
}

// Search sends the position and runs a fixed-depth search on it. The score of
// the last info line carrying one is reported. When ctx expires the search is
// stopped; ErrEngineUnresponsive means the process should be replaced.
func (u *UCI) Search(ctx context.Context, fen string, depth int) (*SearchResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if depth < 1 {
		return nil, fmt.Errorf("invalid search depth %d", depth)
	}

	if err := u.sync(ctx); err != nil {
		return nil, u.timeoutError(ctx, err)
	}

	// The engine keeps its own position between calls, always resend it
	if err := u.send("position fen " + fen); err != nil {
		return nil, err
	}
	if err := u.send(fmt.Sprintf("go depth %d", depth)); err != nil {
		return nil, err
	}

	result := &SearchResult{}
	done := func(line string) bool {
		if strings.HasPrefix(line, "info ") {
			applyInfo(line, result)
			return false
		}
		if strings.HasPrefix(line, "bestmove") {
			if fields := strings.Fields(line); len(fields) >= 2 {
				result.BestMove = fields[1]
			}
			return true
		}
		return false
	}

	err := u.readUntil(ctx, done)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	// Stop the search and wait briefly for its bestmove so the handle stays usable
	_ = u.send("stop")
	graceCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	if stopErr := u.readUntil(graceCtx, done); stopErr != nil {
		u.log.Warn("engine ignored stop", zap.String("fen", fen), zap.Error(stopErr))
		return nil, fmt.Errorf("%w: %w", ErrEngineUnresponsive, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrSearchTimeout, err)
}

func (u *UCI) timeoutError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrEngineUnresponsive, err)
	}
	return err
}

// applyInfo folds one info line into result. Lines without a score leave the
// previous score in place.
func applyInfo(line string, result *SearchResult) {
	fields := strings.Fields(line)
	for i := 1; i < len(fields)-1; i++ {
		switch fields[i] {
		case "string":
			// Free text follows
			return
		case "depth":
			if d, err := strconv.Atoi(fields[i+1]); err == nil {
				result.Depth = d
			}
		case "score":
			if i+2 >= len(fields) {
				return
			}
			value, err := strconv.Atoi(fields[i+2])
			if err != nil {
				continue
			}
			switch fields[i+1] {
			case "cp":
				result.Score = value
				result.HasScore = true
				result.IsMate = false
				result.MateIn = 0
			case "mate":
				result.HasScore = true
				result.IsMate = true
				result.MateIn = value
				if value > 0 {
					result.Score = mateScore - value
				} else {
					result.Score = -mateScore - value
				}
			}
			i += 2
		}
	}
}

// Close asks the engine to quit and kills it if it lingers
func (u *UCI) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	_ = u.send("quit")
	if u.cmd == nil || u.cmd.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- u.cmd.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-time.After(1 * time.Second):
		// Force kill if doesn't exit gracefully
		return u.cmd.Process.Kill()
	}
}
