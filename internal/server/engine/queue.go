package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Searcher is a single engine handle. Implementations need not be safe for
// concurrent use; the pool never calls one handle from two goroutines.
type Searcher interface {
	Search(ctx context.Context, fen string, depth int) (*SearchResult, error)
	Close() error
}

// Factory starts a new engine handle
type Factory func() (Searcher, error)

// ProcessFactory returns a Factory that launches the engine binary at path.
// Every handle, restarts included, gets the same options.
func ProcessFactory(path string, options map[string]string, log *zap.Logger) Factory {
	return func() (Searcher, error) {
		return New(path, options, log)
	}
}

// PoolConfig sizes the pool and bounds each search
type PoolConfig struct {
	Workers       int
	SearchTimeout time.Duration
	QueueSize     int
}

// task contains a search request and its response channel
type task struct {
	ctx      context.Context
	fen      string
	depth    int
	response chan<- taskResult
}

type taskResult struct {
	result *SearchResult
	err    error
}

// Pool owns engine handles, one per worker. Each worker drains the shared
// queue one task at a time, so a handle never sees two searches at once.
type Pool struct {
	tasks   chan task
	workers int
	timeout time.Duration
	factory Factory
	log     *zap.Logger
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPool starts all engine handles up front so a missing binary fails at startup
func NewPool(cfg PoolConfig, factory Factory, log *zap.Logger) (*Pool, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 10 * time.Second
	}

	handles := make([]Searcher, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		h, err := factory()
		if err != nil {
			for _, started := range handles {
				started.Close()
			}
			return nil, fmt.Errorf("failed to start engine %d: %w", i, err)
		}
		handles = append(handles, h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:   make(chan task, cfg.QueueSize),
		workers: cfg.Workers,
		timeout: cfg.SearchTimeout,
		factory: factory,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}

	for i, h := range handles {
		p.wg.Add(1)
		go p.worker(i, h)
	}
	return p, nil
}

// worker processes engine tasks
func (p *Pool) worker(id int, h Searcher) {
	defer p.wg.Done()
	defer func() {
		if h != nil {
			h.Close()
		}
	}()

	for {
		select {
		case t, ok := <-p.tasks:
			if !ok {
				return
			}

			// Requester gave up while queued
			if err := t.ctx.Err(); err != nil {
				t.response <- taskResult{err: fmt.Errorf("%w: %w", ErrSearchTimeout, err)}
				continue
			}

			if h == nil {
				h = p.restart(id)
				if h == nil {
					t.response <- taskResult{err: ErrEngineClosed}
					continue
				}
			}

			res, err := h.Search(t.ctx, t.fen, t.depth)
			if errors.Is(err, ErrEngineUnresponsive) || errors.Is(err, ErrEngineClosed) {
				p.log.Warn("replacing engine handle", zap.Int("worker", id), zap.Error(err))
				h.Close()
				h = p.restart(id)
			}
			t.response <- taskResult{result: res, err: err}

		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) restart(id int) Searcher {
	h, err := p.factory()
	if err != nil {
		p.log.Error("engine restart failed", zap.Int("worker", id), zap.Error(err))
		return nil
	}
	return h
}

// Search queues a search and waits for it, bounded by the pool's search timeout
func (p *Pool) Search(ctx context.Context, fen string, depth int) (*SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	respChan := make(chan taskResult, 1)
	t := task{ctx: ctx, fen: fen, depth: depth, response: respChan}

	select {
	case p.tasks <- t:
	case <-p.ctx.Done():
		return nil, fmt.Errorf("engine pool is shutting down")
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrSearchTimeout, ctx.Err())
	}

	// The worker observes ctx itself and always answers
	select {
	case r := <-respChan:
		return r.result, r.err
	case <-p.ctx.Done():
		return nil, fmt.Errorf("engine pool is shutting down")
	}
}

// Shutdown gracefully stops the workers and their engines
func (p *Pool) Shutdown(timeout time.Duration) error {
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
		return fmt.Errorf("engine pool shutdown timeout exceeded")
	}
}
