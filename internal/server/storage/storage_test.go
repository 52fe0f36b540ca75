package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "chess.db"), false, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.InitDB(); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func flush(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	rec := UserRecord{UserID: "u1", Username: "alice", Email: "alice@example.com", PasswordHash: "h", CreatedAt: now}
	if err := s.CreateUser(rec); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser(UserRecord{UserID: "u2", Username: "ALICE", PasswordHash: "h", CreatedAt: now}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate username err = %v, want ErrUserExists", err)
	}

	got, err := s.GetUserByUsername("Alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.UserID != "u1" || got.AccountType != "permanent" {
		t.Errorf("got %+v", got)
	}

	if _, err := s.GetUserByEmail("ALICE@example.com"); err != nil {
		t.Errorf("GetUserByEmail: %v", err)
	}

	if err := s.DeleteUser("u1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := s.GetUserByID("u1"); err == nil {
		t.Error("user still present after delete")
	}
}

func TestLoginReplacedPerUser(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	if err := s.CreateUser(UserRecord{UserID: "u1", Username: "bob", PasswordHash: "h", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"l1", "l2"} {
		if err := s.OpenLogin(LoginRecord{LoginID: id, UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
			t.Fatalf("OpenLogin(%s): %v", id, err)
		}
	}

	if _, err := s.ActiveLogin("l1", now); !errors.Is(err, ErrLoginNotFound) {
		t.Errorf("replaced login err = %v, want ErrLoginNotFound", err)
	}
	owner, err := s.ActiveLogin("l2", now)
	if err != nil || owner != "u1" {
		t.Errorf("ActiveLogin(l2) = %q, %v", owner, err)
	}
	if _, err := s.ActiveLogin("l2", now.Add(2*time.Hour)); !errors.Is(err, ErrLoginNotFound) {
		t.Errorf("expired login err = %v, want ErrLoginNotFound", err)
	}

	if err := s.CloseLogin("l2"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ActiveLogin("l2", now); !errors.Is(err, ErrLoginNotFound) {
		t.Errorf("closed login err = %v, want ErrLoginNotFound", err)
	}
	if err := s.CloseLogin("l2"); err != nil {
		t.Errorf("closing twice: %v", err)
	}
}

func TestPurgeExpiredLogins(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	s.CreateUser(UserRecord{UserID: "u1", Username: "carol", PasswordHash: "h", CreatedAt: now})
	s.CreateUser(UserRecord{UserID: "u2", Username: "dave", PasswordHash: "h", CreatedAt: now})
	s.OpenLogin(LoginRecord{LoginID: "old", UserID: "u1", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)})
	s.OpenLogin(LoginRecord{LoginID: "live", UserID: "u2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})

	n, err := s.PurgeExpiredLogins(now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d logins, want 1", n)
	}
	if _, err := s.ActiveLogin("live", now); err != nil {
		t.Errorf("live login purged: %v", err)
	}
}

func TestGameAndMoveRecords(t *testing.T) {
	s := newTestStore(t)
	start := time.Now().UTC().Truncate(time.Second)

	s.RecordNewGame(GameRecord{
		GameID: "g1", OwnerID: "u1", InitialFEN: "fen0", PlayerColor: "w",
		OpponentKind: "localEngine", SearchDepth: 4, StartTimeUTC: start,
	})
	s.RecordMove(MoveRecord{GameID: "g1", MoveNumber: 1, MoveUCI: "e2e4", MoveSAN: "e4", FENAfterMove: "fen1", PlayerColor: "w", MovedBy: "player", MoveTimeUTC: start})
	s.RecordMove(MoveRecord{GameID: "g1", MoveNumber: 2, MoveUCI: "e7e5", MoveSAN: "e5", FENAfterMove: "fen2", PlayerColor: "b", MovedBy: "opponent", Evaluation: 0.3, MoveTimeUTC: start})
	s.DeleteUndoneMoves("g1", 1)
	s.RecordMove(MoveRecord{GameID: "g1", MoveNumber: 2, MoveUCI: "c7c5", MoveSAN: "c5", FENAfterMove: "fen2b", PlayerColor: "b", MovedBy: "opponent", Evaluation: -0.1, MoveTimeUTC: start})
	s.UpdateGameConfig("g1", "remoteService", 6)
	s.RecordResult("g1", "1/2-1/2")
	flush(t, s)

	if !s.IsHealthy() {
		t.Fatal("store degraded")
	}

	games, err := s.QueryGames("*", "u1")
	if err != nil {
		t.Fatal(err)
	}
	want := []GameRecord{{
		GameID: "g1", OwnerID: "u1", InitialFEN: "fen0", PlayerColor: "w",
		OpponentKind: "remoteService", SearchDepth: 6, Result: "1/2-1/2", StartTimeUTC: start,
	}}
	if diff := cmp.Diff(want, games, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("games mismatch (-want +got):\n%s", diff)
	}

	moves, err := s.GameMoves("g1")
	if err != nil {
		t.Fatal(err)
	}
	var ucis []string
	for _, m := range moves {
		ucis = append(ucis, m.MoveUCI)
	}
	if diff := cmp.Diff([]string{"e2e4", "c7c5"}, ucis); diff != "" {
		t.Errorf("moves mismatch (-want +got):\n%s", diff)
	}
	if moves[1].Evaluation != -0.1 {
		t.Errorf("evaluation = %v, want -0.1", moves[1].Evaluation)
	}
}
