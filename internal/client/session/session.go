// Package session holds the debug client's mutable state between commands.
package session

import (
	"io"
	"os"
	"sync"

	"chessduel/internal/client/api"
	"chessduel/internal/server/core"
)

type Session struct {
	APIBaseURL string
	Client     *api.Client
	Verbose    bool

	UserID   string
	Username string

	CurrentSession string
	LastMoveCount  int
	State          *core.SessionResponse

	// Out is where asynchronous lobby events are printed
	Out io.Writer

	mu    sync.Mutex
	lobby *api.Lobby
}

func New(baseURL string) *Session {
	return &Session{
		APIBaseURL: baseURL,
		Client:     api.New(baseURL),
		Out:        os.Stdout,
	}
}

// Track makes resp the current session
func (s *Session) Track(resp *core.SessionResponse) {
	s.CurrentSession = resp.SessionID
	s.LastMoveCount = len(resp.Moves)
	s.State = resp
}

func (s *Session) Forget() {
	s.CurrentSession = ""
	s.LastMoveCount = 0
	s.State = nil
}

func (s *Session) Authenticated() bool {
	return s.Client.AuthToken != ""
}

func (s *Session) SetAuth(token, userID, username string) {
	s.Client.SetToken(token)
	s.UserID = userID
	s.Username = username
}

func (s *Session) Lobby() *api.Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lobby
}

// SetLobby replaces the lobby connection, closing any previous one
func (s *Session) SetLobby(l *api.Lobby) {
	s.mu.Lock()
	prev := s.lobby
	s.lobby = l
	s.mu.Unlock()
	if prev != nil && prev != l {
		prev.Close()
	}
}

// ClearLobby drops l if it is still the current connection
func (s *Session) ClearLobby(l *api.Lobby) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lobby == l {
		s.lobby = nil
	}
}
