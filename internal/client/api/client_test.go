package api

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chessduel/internal/server/core"

	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	c.Out = nil
	return c
}

func TestMakeMoveSendsBodyAndToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/sessions/s1/moves" {
			t.Errorf("request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"from":"e7","to":"e8","promotion":"q"}` {
			t.Errorf("body %s", body)
		}
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"sessionId":"s1","state":"pending","moves":["e7e8q"]}`)
	})
	c.SetToken("tok")

	resp, err := c.MakeMove("s1", core.Move{From: "e7", To: "e8", Promotion: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != "pending" || len(resp.Moves) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestErrorBodyDecoded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"session is busy","code":"SESSION_BUSY"}`)
	})

	_, err := c.Undo("s1", 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != core.ErrSessionBusy {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestBrokerFailureKeepsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":"remote service unavailable","code":"REMOTE_SERVICE_UNAVAILABLE"}`)
	})

	resp, err := c.BrokerMove(core.BrokerRequest{Position: "startpos", OpponentKind: core.OpponentRemoteService})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != string(core.FailRemoteServiceUnavailable) {
		t.Errorf("err = %v", err)
	}
	if resp == nil {
		t.Fatal("nil response")
	}
}

func TestLobbyURL(t *testing.T) {
	tests := []struct {
		base, token, want string
	}{
		{"http://localhost:8080", "abc", "ws://localhost:8080/ws?token=abc"},
		{"https://chess.example/", "a b", "wss://chess.example/ws?token=a+b"},
		{"http://host/prefix", "t", "ws://host/prefix/ws?token=t"},
	}
	for _, tt := range tests {
		c := New(tt.base)
		c.SetToken(tt.token)
		got, err := c.LobbyURL()
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("LobbyURL(%s) mismatch (-want +got):\n%s", tt.base, diff)
		}
	}
}
