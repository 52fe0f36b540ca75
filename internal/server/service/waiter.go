package service

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// WaitTimeout is the maximum time a client can wait for notifications
const WaitTimeout = 25 * time.Second

// WaitRegistry manages long-polling clients waiting for session changes
type WaitRegistry struct {
	mu       sync.Mutex
	waiters  map[string][]*WaitRequest // session ID → waiting clients
	timeout  time.Duration
	shutdown chan struct{}
	closed   bool
	wg       sync.WaitGroup
}

// WaitRequest represents a single client waiting for session updates
type WaitRequest struct {
	MoveCount int
	SessionID string
	notify    chan struct{}
	timer     *time.Timer
	once      sync.Once
}

// fire wakes the client exactly once
func (r *WaitRequest) fire() {
	r.once.Do(func() {
		if r.timer != nil {
			r.timer.Stop()
		}
		close(r.notify)
	})
}

func NewWaitRegistry() *WaitRegistry {
	return &WaitRegistry{
		waiters:  make(map[string][]*WaitRequest),
		timeout:  WaitTimeout,
		shutdown: make(chan struct{}),
	}
}

// RegisterWait returns a channel that is closed when the session's move count
// moves away from moveCount, the session changes state, the wait times out,
// the session is deleted, or ctx ends
func (w *WaitRegistry) RegisterWait(ctx context.Context, sessionID string, moveCount int) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	req := &WaitRequest{
		MoveCount: moveCount,
		SessionID: sessionID,
		notify:    make(chan struct{}),
	}
	if w.closed {
		req.fire()
		return req.notify
	}

	req.timer = time.AfterFunc(w.timeout, func() {
		w.removeWaiter(sessionID, req)
		req.fire()
	})
	w.waiters[sessionID] = append(w.waiters[sessionID], req)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case <-ctx.Done():
			w.removeWaiter(sessionID, req)
			req.fire()
		case <-w.shutdown:
			req.fire()
		case <-req.notify:
		}
	}()

	return req.notify
}

// NotifyGame wakes waiters whose known move count is stale, or all of them
// when the session state changed without a move
func (w *WaitRegistry) NotifyGame(sessionID string, currentMoveCount int, stateChanged bool) {
	w.mu.Lock()
	var keep, wake []*WaitRequest
	for _, req := range w.waiters[sessionID] {
		if stateChanged || req.MoveCount != currentMoveCount {
			wake = append(wake, req)
		} else {
			keep = append(keep, req)
		}
	}
	if len(keep) == 0 {
		delete(w.waiters, sessionID)
	} else {
		w.waiters[sessionID] = keep
	}
	w.mu.Unlock()

	for _, req := range wake {
		req.fire()
	}
}

// RemoveGame releases all waiters for a session
func (w *WaitRegistry) RemoveGame(sessionID string) {
	w.mu.Lock()
	waitList := w.waiters[sessionID]
	delete(w.waiters, sessionID)
	w.mu.Unlock()

	for _, req := range waitList {
		req.fire()
	}
}

// Shutdown releases every waiter and waits for their watchers to exit
func (w *WaitRegistry) Shutdown(timeout time.Duration) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.shutdown)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("wait registry shutdown timeout exceeded")
	}
}

func (w *WaitRegistry) removeWaiter(sessionID string, req *WaitRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()

	waitList := w.waiters[sessionID]
	for i, waiter := range waitList {
		if waiter == req {
			w.waiters[sessionID] = append(waitList[:i], waitList[i+1:]...)
			break
		}
	}
	if len(w.waiters[sessionID]) == 0 {
		delete(w.waiters, sessionID)
	}
}
