package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chessduel/internal/server/core"
	"chessduel/internal/server/game"
	"chessduel/internal/server/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxSessions = 50
	SessionTTL         = 7 * 24 * time.Hour
	CleanupJobInterval = 1 * time.Hour
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionLimit    = errors.New("too many active sessions")
	ErrStorageDisabled = errors.New("storage disabled")
)

// Service coordinates game sessions, user management, and storage
type Service struct {
	sessions    map[string]*game.Session
	mu          sync.RWMutex
	maxSessions int
	store       *storage.Store
	jwtSecret   []byte
	waiter      *WaitRegistry
	log         *zap.Logger
}

// New creates a service. store may be nil, which disables accounts and game records.
func New(store *storage.Store, jwtSecret []byte, maxSessions int, log *zap.Logger) *Service {
	if maxSessions < 1 {
		maxSessions = DefaultMaxSessions
	}
	return &Service{
		sessions:    make(map[string]*game.Session),
		maxSessions: maxSessions,
		store:       store,
		jwtSecret:   jwtSecret,
		waiter:      NewWaitRegistry(),
		log:         log,
	}
}

// GetStorageHealth returns the storage component status
func (s *Service) GetStorageHealth() string {
	if s.store == nil {
		return "disabled"
	}
	if s.store.IsHealthy() {
		return "ok"
	}
	return "degraded"
}

// CreateSession starts a game session and records it
func (s *Service) CreateSession(owner, fen string, color core.Color, opponent core.OpponentKind, depth int) (*game.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.maxSessions {
		return nil, fmt.Errorf("%w: limit is %d", ErrSessionLimit, s.maxSessions)
	}

	id := uuid.New().String()
	for _, taken := s.sessions[id]; taken; _, taken = s.sessions[id] {
		id = uuid.New().String()
	}

	sess, err := game.New(id, owner, fen, color, opponent, depth)
	if err != nil {
		return nil, err
	}
	s.sessions[id] = sess

	if s.store != nil {
		s.store.RecordNewGame(storage.GameRecord{
			GameID:       id,
			OwnerID:      owner,
			InitialFEN:   fen,
			PlayerColor:  sess.PlayerColor().String(),
			OpponentKind: string(opponent),
			SearchDepth:  sess.Depth(),
			StartTimeUTC: sess.CreatedAt(),
		})
	}

	s.log.Info("session created",
		zap.String("session", id),
		zap.String("owner", owner),
		zap.Stringer("opponent", opponent))
	return sess, nil
}

// View runs fn with read access to a session
func (s *Service) View(id string, fn func(*game.Session) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	return fn(sess)
}

// Update runs fn with exclusive access to a session and wakes long-poll
// waiters when the move count changed
func (s *Service) Update(id string, fn func(*game.Session) error) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	before, state := sess.MoveCount(), sess.State()
	err := fn(sess)
	after, changed := sess.MoveCount(), sess.State() != state
	s.mu.Unlock()

	if after != before || changed {
		s.waiter.NotifyGame(id, after, changed)
	}
	return err
}

// DeleteSession removes a session and releases its waiters
func (s *Service) DeleteSession(id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	s.waiter.RemoveGame(id)
	s.log.Info("session deleted", zap.String("session", id))
	return nil
}

// SessionCount returns the number of live sessions
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RegisterWait returns a channel that is closed once the session moves past
// moveCount or leaves the pending state. A caller that is already behind gets
// a closed channel. The check and the registration share the session lock,
// so an Update cannot land between them unseen.
func (s *Service) RegisterWait(ctx context.Context, sessionID string, moveCount int) (<-chan struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.MoveCount() != moveCount || sess.State() != core.StatePending {
		done := make(chan struct{})
		close(done)
		return done, nil
	}
	return s.waiter.RegisterWait(ctx, sessionID, moveCount), nil
}

// Store exposes the optional storage for game records
func (s *Service) Store() *storage.Store {
	return s.store
}

// Shutdown gracefully shuts down the service
func (s *Service) Shutdown(timeout time.Duration) error {
	var errs []error

	if err := s.waiter.Shutdown(timeout); err != nil {
		errs = append(errs, fmt.Errorf("wait registry: %w", err))
	}

	s.mu.Lock()
	s.sessions = make(map[string]*game.Session)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	return errors.Join(errs...)
}

// RunCleanupJob runs periodic cleanup of expired users and auth sessions
func (s *Service) RunCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

func (s *Service) cleanupExpired() {
	if s.store == nil {
		return
	}

	if deleted, err := s.store.DeleteExpiredTempUsers(); err != nil {
		s.log.Warn("cleanup: failed to delete expired users", zap.Error(err))
	} else if deleted > 0 {
		s.log.Info("cleanup: deleted expired temp users", zap.Int64("count", deleted))
	}

	if purged, err := s.store.PurgeExpiredLogins(time.Now().UTC()); err != nil {
		s.log.Warn("cleanup: failed to purge expired logins", zap.Error(err))
	} else if purged > 0 {
		s.log.Info("cleanup: purged expired logins", zap.Int64("count", purged))
	}
}
