package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"chessduel/internal/server/core"
	"chessduel/internal/server/game"
	"chessduel/internal/server/rules"
	"chessduel/internal/server/storage"

	"go.uber.org/zap/zaptest"
)

var testSecret = []byte("test-secret-minimum-32-characters-long")

func newTestService(t *testing.T, withStore bool) *Service {
	t.Helper()
	log := zaptest.NewLogger(t)
	var store *storage.Store
	if withStore {
		var err error
		store, err = storage.NewStore(filepath.Join(t.TempDir(), "svc.db"), false, log)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.InitDB(); err != nil {
			t.Fatal(err)
		}
	}
	svc := New(store, testSecret, 2, log)
	t.Cleanup(func() { svc.Shutdown(time.Second) })
	return svc
}

func TestSessionLimit(t *testing.T) {
	svc := newTestService(t, false)

	for i := 0; i < 2; i++ {
		if _, err := svc.CreateSession("", rules.StartingFEN, core.ColorWhite, core.OpponentLocalEngine, 3); err != nil {
			t.Fatalf("CreateSession %d: %v", i, err)
		}
	}
	_, err := svc.CreateSession("", rules.StartingFEN, core.ColorWhite, core.OpponentLocalEngine, 3)
	if !errors.Is(err, ErrSessionLimit) {
		t.Fatalf("err = %v, want ErrSessionLimit", err)
	}
}

// pendingSession returns a session whose opponent is thinking
func pendingSession(t *testing.T, svc *Service) *game.Session {
	t.Helper()
	sess, err := svc.CreateSession("", rules.StartingFEN, core.ColorWhite, core.OpponentLocalEngine, 3)
	if err != nil {
		t.Fatal(err)
	}
	svc.Update(sess.ID(), func(s *game.Session) error {
		s.SetState(core.StatePending)
		return nil
	})
	return sess
}

func TestUpdateWakesWaiters(t *testing.T) {
	svc := newTestService(t, false)
	sess := pendingSession(t, svc)

	notify, err := svc.RegisterWait(context.Background(), sess.ID(), 0)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-notify:
		t.Fatal("waiter woke before any change")
	default:
	}

	err = svc.Update(sess.ID(), func(s *game.Session) error {
		applied, err := rules.ApplyUCI(s.CurrentFEN(), "e2e4")
		if err != nil {
			return err
		}
		s.AddSnapshot(game.Snapshot{FEN: applied.FEN, Move: "e2e4", Turn: core.ColorBlack})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-notify:
	case <-time.After(time.Second):
		t.Fatal("waiter was not notified")
	}
}

func TestRegisterWaitAlreadyBehind(t *testing.T) {
	svc := newTestService(t, false)
	sess := pendingSession(t, svc)

	// The move landed before the client registered
	svc.Update(sess.ID(), func(s *game.Session) error {
		s.AddSnapshot(game.Snapshot{FEN: s.CurrentFEN(), Move: "e2e4", Turn: core.ColorBlack})
		return nil
	})

	notify, err := svc.RegisterWait(context.Background(), sess.ID(), 0)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-notify:
	default:
		t.Error("stale move count did not return at once")
	}

	idle, _ := svc.CreateSession("", rules.StartingFEN, core.ColorWhite, core.OpponentNone, 0)
	notify, err = svc.RegisterWait(context.Background(), idle.ID(), 0)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-notify:
	default:
		t.Error("session with nothing pending made the client wait")
	}

	if _, err := svc.RegisterWait(context.Background(), "missing", 0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestDeleteSessionReleasesWaiters(t *testing.T) {
	svc := newTestService(t, false)
	sess := pendingSession(t, svc)

	notify, err := svc.RegisterWait(context.Background(), sess.ID(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteSession(sess.ID()); err != nil {
		t.Fatal(err)
	}

	select {
	case <-notify:
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}

	if err := svc.View(sess.ID(), func(*game.Session) error { return nil }); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestTokenLifecycle(t *testing.T) {
	svc := newTestService(t, true)

	user, err := svc.CreateUser("dora", "", "password1")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := svc.AuthenticateUser("dora", "wrong-pass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("bad password err = %v", err)
	}
	if _, err := svc.AuthenticateUser("dora", "password1"); err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}

	token, _, err := svc.GenerateUserToken(user.UserID)
	if err != nil {
		t.Fatalf("GenerateUserToken: %v", err)
	}

	claims, err := svc.Identify(token)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if claims.UserID != user.UserID || claims.Username != "dora" || claims.SessionID == "" {
		t.Errorf("claims = %+v", claims)
	}

	if err := svc.Logout(claims.SessionID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Identify(token); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("token after logout err = %v, want ErrSessionRevoked", err)
	}
}

func TestAccountsNeedStorage(t *testing.T) {
	svc := newTestService(t, false)
	if _, err := svc.CreateUser("eve", "", "password1"); !errors.Is(err, ErrStorageDisabled) {
		t.Errorf("err = %v, want ErrStorageDisabled", err)
	}
	if svc.GetStorageHealth() != "disabled" {
		t.Errorf("health = %s", svc.GetStorageHealth())
	}
}
