package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// fakeSearcher counts overlapping searches on one handle
type fakeSearcher struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
	delay       time.Duration
	err         error
	closed      atomic.Bool
}

func (f *fakeSearcher) Search(ctx context.Context, fen string, depth int) (*SearchResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.maxInFlight.Load()
		if n <= old || f.maxInFlight.CompareAndSwap(old, n) {
			break
		}
	}
	f.calls.Add(1)

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &SearchResult{BestMove: "e2e4", Score: depth, HasScore: true, Depth: depth}, nil
}

func (f *fakeSearcher) Close() error {
	f.closed.Store(true)
	return nil
}

func TestPoolSerializesSearchesPerHandle(t *testing.T) {
	handle := &fakeSearcher{delay: 5 * time.Millisecond}
	pool, err := NewPool(PoolConfig{Workers: 1, SearchTimeout: time.Second},
		func() (Searcher, error) { return handle, nil }, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Shutdown(time.Second)

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(depth int) {
			defer wg.Done()
			res, err := pool.Search(context.Background(), "fen", depth)
			if err != nil {
				t.Errorf("Search(%d): %v", depth, err)
				return
			}
			if res.Depth != depth {
				t.Errorf("got result for depth %d, want %d", res.Depth, depth)
			}
		}(i)
	}
	wg.Wait()

	if got := handle.maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent searches on handle = %d, want 1", got)
	}
	if got := handle.calls.Load(); got != 8 {
		t.Errorf("calls = %d, want 8", got)
	}
}

func TestPoolSearchTimeout(t *testing.T) {
	handle := &fakeSearcher{delay: time.Second}
	pool, err := NewPool(PoolConfig{Workers: 1, SearchTimeout: 20 * time.Millisecond},
		func() (Searcher, error) { return handle, nil }, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Shutdown(time.Second)

	_, err = pool.Search(context.Background(), "fen", 3)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestPoolReplacesUnresponsiveHandle(t *testing.T) {
	broken := &fakeSearcher{err: ErrEngineUnresponsive}
	healthy := &fakeSearcher{}
	var started atomic.Int32
	factory := func() (Searcher, error) {
		if started.Add(1) == 1 {
			return broken, nil
		}
		return healthy, nil
	}

	pool, err := NewPool(PoolConfig{Workers: 1, SearchTimeout: time.Second}, factory, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Shutdown(time.Second)

	if _, err := pool.Search(context.Background(), "fen", 1); !errors.Is(err, ErrEngineUnresponsive) {
		t.Fatalf("first search err = %v, want ErrEngineUnresponsive", err)
	}
	if !broken.closed.Load() {
		t.Error("broken handle was not closed")
	}
	if _, err := pool.Search(context.Background(), "fen", 1); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if healthy.calls.Load() != 1 {
		t.Errorf("replacement handle calls = %d, want 1", healthy.calls.Load())
	}
}

func TestNewPoolFailsWhenEngineMissing(t *testing.T) {
	_, err := NewPool(PoolConfig{Workers: 2}, func() (Searcher, error) {
		return nil, errors.New("exec: not found")
	}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected startup error")
	}
}
