package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chessduel/internal/server/broker"
	"chessduel/internal/server/core"
	"chessduel/internal/server/engine"
	"chessduel/internal/server/processor"
	"chessduel/internal/server/realtime"
	"chessduel/internal/server/rules"
	"chessduel/internal/server/service"
	"chessduel/internal/server/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap/zaptest"
)

// firstMoveEngine plays the first legal move of any position
type firstMoveEngine struct{}

func (firstMoveEngine) Search(_ context.Context, fen string, depth int) (*engine.SearchResult, error) {
	moves, err := rules.LegalMoves(fen)
	if err != nil {
		return nil, errors.New("bad position")
	}
	if len(moves) == 0 {
		return &engine.SearchResult{BestMove: "(none)"}, nil
	}
	return &engine.SearchResult{BestMove: moves[0].String(), Score: 35, HasScore: true, Depth: depth}, nil
}

type testServer struct {
	app  *fiber.App
	proc *processor.Processor
}

func newTestServer(t *testing.T, withStore bool) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t)

	var store *storage.Store
	if withStore {
		var err error
		store, err = storage.NewStore(filepath.Join(t.TempDir(), "http.db"), false, log)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.InitDB(); err != nil {
			t.Fatal(err)
		}
	}

	svc := service.New(store, []byte("test-secret-minimum-32-characters-long"), 10, log)
	proc := processor.New(svc, broker.New(firstMoveEngine{}, nil, log), log)
	hub := realtime.NewHub(log)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		proc.Close(time.Second)
		svc.Shutdown(time.Second)
	})

	return &testServer{app: NewFiberApp(proc, svc, hub, log, true), proc: proc}
}

func (ts *testServer) do(t *testing.T, method, path, body, token string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false)
	status, body := ts.do(t, "GET", "/health", "", "")
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if got := decode[map[string]any](t, body); got["storage"] != "disabled" {
		t.Errorf("storage = %v", got["storage"])
	}
}

func TestSessionFlow(t *testing.T) {
	ts := newTestServer(t, false)

	status, body := ts.do(t, "POST", "/api/v1/sessions", `{"opponent":"localEngine","depth":2}`, "")
	if status != fiber.StatusCreated {
		t.Fatalf("create status = %d body = %s", status, body)
	}
	sess := decode[core.SessionResponse](t, body)
	if sess.Depth != 2 || sess.Opponent != "localEngine" || sess.Turn != "w" {
		t.Fatalf("session = %+v", sess)
	}
	base := "/api/v1/sessions/" + sess.SessionID

	status, body = ts.do(t, "POST", base+"/moves", `{"from":"e2","to":"e4"}`, "")
	if status != fiber.StatusAccepted {
		t.Fatalf("move status = %d body = %s", status, body)
	}
	ts.proc.Wait()

	status, body = ts.do(t, "GET", base, "", "")
	if status != fiber.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	sess = decode[core.SessionResponse](t, body)
	if len(sess.Moves) != 2 || sess.LastMove == nil || sess.LastMove.By != "opponent" {
		t.Errorf("after reply = %+v", sess)
	}

	status, body = ts.do(t, "POST", base+"/moves", `{"from":"e4","to":"e6"}`, "")
	if status != fiber.StatusBadRequest || decode[core.ErrorResponse](t, body).Code != core.ErrInvalidMove {
		t.Errorf("illegal move status = %d body = %s", status, body)
	}

	status, body = ts.do(t, "POST", base+"/undo", "", "")
	if status != fiber.StatusOK {
		t.Fatalf("undo status = %d body = %s", status, body)
	}
	if sess = decode[core.SessionResponse](t, body); len(sess.Moves) != 1 {
		t.Errorf("moves after default undo = %v", sess.Moves)
	}

	status, body = ts.do(t, "POST", base+"/undo", `{"count":1}`, "")
	if status != fiber.StatusOK {
		t.Fatalf("undo status = %d body = %s", status, body)
	}
	if sess = decode[core.SessionResponse](t, body); len(sess.Moves) != 0 {
		t.Errorf("moves after undo = %v", sess.Moves)
	}

	status, body = ts.do(t, "GET", base+"/board", "", "")
	if status != fiber.StatusOK || decode[core.BoardResponse](t, body).Board == "" {
		t.Errorf("board status = %d body = %s", status, body)
	}

	if status, _ = ts.do(t, "DELETE", base, "", ""); status != fiber.StatusNoContent {
		t.Errorf("delete status = %d", status)
	}
	if status, _ = ts.do(t, "GET", base, "", ""); status != fiber.StatusNotFound {
		t.Errorf("get after delete status = %d", status)
	}
}

func TestLongPollReturnsWhenBehind(t *testing.T) {
	ts := newTestServer(t, false)
	_, body := ts.do(t, "POST", "/api/v1/sessions", `{"opponent":"localEngine"}`, "")
	base := "/api/v1/sessions/" + decode[core.SessionResponse](t, body).SessionID

	ts.do(t, "POST", base+"/moves", `{"from":"e2","to":"e4"}`, "")
	ts.proc.Wait()

	// The reply already landed, so a client still at one move must not wait
	req := httptest.NewRequest("GET", base+"?wait=true&moveCount=1", nil)
	resp, err := ts.app.Test(req, 2000)
	if err != nil {
		t.Fatalf("long poll: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if got := decode[core.SessionResponse](t, data); resp.StatusCode != fiber.StatusOK || len(got.Moves) != 2 {
		t.Errorf("status = %d session = %+v", resp.StatusCode, got)
	}

	if status, _ := ts.do(t, "GET", "/api/v1/sessions/6f1c8d3e-1111-4a4a-9b9b-000000000000?wait=true&moveCount=0", "", ""); status != fiber.StatusNotFound {
		t.Errorf("missing session status = %d", status)
	}
}

func TestConfigureRejectsZeroDepth(t *testing.T) {
	ts := newTestServer(t, false)
	_, body := ts.do(t, "POST", "/api/v1/sessions", `{"opponent":"localEngine","depth":5}`, "")
	id := decode[core.SessionResponse](t, body).SessionID

	status, body := ts.do(t, "PUT", "/api/v1/sessions/"+id+"/config", `{"depth":0}`, "")
	if status != fiber.StatusBadRequest || decode[core.ErrorResponse](t, body).Code != core.ErrInvalidDepth {
		t.Fatalf("status = %d body = %s", status, body)
	}
	if msg := decode[core.ErrorResponse](t, body).Error; !strings.Contains(msg, fmt.Sprintf("between 1 and %d", core.MaxSearchDepth)) {
		t.Errorf("error = %q, want the accepted range", msg)
	}

	_, body = ts.do(t, "GET", "/api/v1/sessions/"+id, "", "")
	if got := decode[core.SessionResponse](t, body).Depth; got != 5 {
		t.Errorf("depth = %d, want 5", got)
	}
}

func TestSessionRequestValidation(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad session id", "GET", "/api/v1/sessions/not-a-uuid", "", fiber.StatusBadRequest},
		{"unknown opponent", "POST", "/api/v1/sessions", `{"opponent":"oracle"}`, fiber.StatusBadRequest},
		{"malformed square", "POST", "/api/v1/sessions/6f1c8d3e-1111-4a4a-9b9b-000000000000/moves", `{"from":"e22","to":"e4"}`, fiber.StatusBadRequest},
		{"missing session", "GET", "/api/v1/sessions/6f1c8d3e-1111-4a4a-9b9b-000000000000", "", fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := ts.do(t, tt.method, tt.path, tt.body, ""); status != tt.status {
				t.Errorf("status = %d, want %d (body %s)", status, tt.status, body)
			}
		})
	}
}

func TestUnsupportedContentType(t *testing.T) {
	ts := newTestServer(t, false)
	req := httptest.NewRequest("POST", "/api/v1/sessions", strings.NewReader("opponent=localEngine"))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := ts.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnsupportedMediaType {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestBrokerMoveEndpoint(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"no opponent", `{"position":"` + rules.StartingFEN + `"}`, fiber.StatusConflict, string(core.FailNoOpponentSelected)},
		{"unknown kind", `{"position":"` + rules.StartingFEN + `","opponentKind":"oracle"}`, fiber.StatusBadRequest, string(core.FailUnknownOpponentKind)},
		{"invalid position", `{"position":"not a fen","opponentKind":"localEngine"}`, fiber.StatusBadRequest, string(core.FailInvalidPosition)},
		{"remote not configured", `{"position":"` + rules.StartingFEN + `","opponentKind":"remoteService"}`, fiber.StatusServiceUnavailable, string(core.FailRemoteServiceUnavailable)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, "POST", "/api/v1/moves", tt.body, "")
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if got := decode[core.BrokerResponse](t, body); got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
		})
	}

	status, body := ts.do(t, "POST", "/api/v1/moves", `{"position":"`+rules.StartingFEN+`","opponentKind":"localEngine","depth":1}`, "")
	if status != fiber.StatusOK {
		t.Fatalf("status = %d body = %s", status, body)
	}
	got := decode[core.BrokerResponse](t, body)
	if got.Move == nil || !got.Move.WellFormed() || got.Evaluation == nil || *got.Evaluation != 0.35 {
		t.Errorf("response = %s", body)
	}
}

func TestAuthLifecycle(t *testing.T) {
	ts := newTestServer(t, true)

	status, body := ts.do(t, "POST", "/api/v1/auth/register", `{"username":"Alice","password":"secret123"}`, "")
	if status != fiber.StatusCreated {
		t.Fatalf("register status = %d body = %s", status, body)
	}
	auth := decode[AuthResponse](t, body)
	if auth.Username != "alice" || auth.Token == "" {
		t.Fatalf("auth = %+v", auth)
	}

	if status, _ = ts.do(t, "POST", "/api/v1/auth/register", `{"username":"alice","password":"secret123"}`, ""); status != fiber.StatusConflict {
		t.Errorf("duplicate register status = %d", status)
	}
	if status, _ = ts.do(t, "POST", "/api/v1/auth/login", `{"identifier":"alice","password":"wrong1234"}`, ""); status != fiber.StatusUnauthorized {
		t.Errorf("bad login status = %d", status)
	}

	status, body = ts.do(t, "GET", "/api/v1/auth/me", "", auth.Token)
	if status != fiber.StatusOK || decode[UserResponse](t, body).UserID != auth.UserID {
		t.Fatalf("me status = %d body = %s", status, body)
	}

	status, body = ts.do(t, "GET", "/api/v1/users/online", "", auth.Token)
	if status != fiber.StatusOK {
		t.Fatalf("online status = %d body = %s", status, body)
	}
	if users := decode[realtime.OnlineUsers](t, body).Users; len(users) != 0 {
		t.Errorf("online = %v", users)
	}
	if status, _ = ts.do(t, "GET", "/api/v1/users/online", "", ""); status != fiber.StatusUnauthorized {
		t.Errorf("anonymous online status = %d", status)
	}

	if status, _ = ts.do(t, "POST", "/api/v1/auth/logout", "", auth.Token); status != fiber.StatusNoContent {
		t.Fatalf("logout status = %d", status)
	}
	if status, _ = ts.do(t, "GET", "/api/v1/auth/me", "", auth.Token); status != fiber.StatusUnauthorized {
		t.Errorf("me after logout status = %d", status)
	}
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t, true)

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"password without digit", `{"username":"erin","password":"correct-horse"}`, "password must be 8-128 characters"},
		{"username with space", `{"username":"erin smith","password":"secret123"}`, "username must be 1-40 letters"},
		{"bad email", `{"username":"erin","email":"nope","password":"secret123"}`, "email must be a valid email address"},
		{"missing username", `{"password":"secret123"}`, "username is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, "POST", "/api/v1/auth/register", tt.body, "")
			if status != fiber.StatusBadRequest {
				t.Fatalf("status = %d body = %s", status, body)
			}
			if got := decode[core.ErrorResponse](t, body); !strings.Contains(got.Details, tt.detail) {
				t.Errorf("details = %q, want %q", got.Details, tt.detail)
			}
		})
	}

	status, body := ts.do(t, "POST", "/api/v1/auth/register", `{"username":"erin","email":"Erin@Example.com","password":"secret123"}`, "")
	if status != fiber.StatusCreated {
		t.Fatalf("register status = %d body = %s", status, body)
	}
	if got := decode[AuthResponse](t, body); got.Email != "erin@example.com" {
		t.Errorf("email = %q", got.Email)
	}
	status, _ = ts.do(t, "POST", "/api/v1/auth/login", `{"identifier":"ERIN@example.com","password":"secret123"}`, "")
	if status != fiber.StatusOK {
		t.Errorf("login by email status = %d", status)
	}
}

func TestOwnedSessionForbiddenToOthers(t *testing.T) {
	ts := newTestServer(t, true)

	_, body := ts.do(t, "POST", "/api/v1/auth/register", `{"username":"owner","password":"secret123"}`, "")
	token := decode[AuthResponse](t, body).Token

	status, body := ts.do(t, "POST", "/api/v1/sessions", `{}`, token)
	if status != fiber.StatusCreated {
		t.Fatalf("create status = %d body = %s", status, body)
	}
	id := decode[core.SessionResponse](t, body).SessionID

	if status, _ = ts.do(t, "GET", "/api/v1/sessions/"+id, "", ""); status != fiber.StatusForbidden {
		t.Errorf("anonymous get status = %d", status)
	}
	if status, _ = ts.do(t, "GET", "/api/v1/sessions/"+id, "", token); status != fiber.StatusOK {
		t.Errorf("owner get status = %d", status)
	}
}
