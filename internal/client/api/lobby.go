package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"chessduel/internal/server/realtime"

	"github.com/fasthttp/websocket"
)

const lobbyWriteTimeout = 5 * time.Second

var ErrLobbyClosed = errors.New("lobby connection closed")

// Lobby is a client connection to the server's challenge lobby
type Lobby struct {
	conn     *websocket.Conn
	incoming chan realtime.Message
	writeMu  sync.Mutex
	done     chan struct{}
	once     sync.Once
}

// DialLobby connects with the client's token and logs in as its account
func (c *Client) DialLobby(ctx context.Context, username string) (*Lobby, error) {
	if c.AuthToken == "" {
		return nil, errors.New("login required before joining the lobby")
	}
	target, err := c.LobbyURL()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}

	l := &Lobby{
		conn:     conn,
		incoming: make(chan realtime.Message, 32),
		done:     make(chan struct{}),
	}
	go l.readLoop()

	if err := l.Send(realtime.Login{Username: username}); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Incoming is closed when the connection ends
func (l *Lobby) Incoming() <-chan realtime.Message {
	return l.incoming
}

func (l *Lobby) Send(m realtime.Message) error {
	data, err := realtime.Encode(m)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	select {
	case <-l.done:
		return ErrLobbyClosed
	default:
	}
	l.conn.SetWriteDeadline(time.Now().Add(lobbyWriteTimeout))
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *Lobby) Challenge(from, to string) error {
	return l.Send(realtime.Challenge{From: from, To: to})
}

func (l *Lobby) Respond(from, to string, accepted bool) error {
	return l.Send(realtime.ChallengeResponse{From: from, To: to, Accepted: accepted})
}

func (l *Lobby) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		l.writeMu.Lock()
		l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		l.writeMu.Unlock()
		err = l.conn.Close()
	})
	return err
}

func (l *Lobby) readLoop() {
	defer close(l.incoming)
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.Close()
			return
		}
		msg, err := realtime.Decode(data)
		if err != nil {
			// Newer server message types are skipped
			continue
		}
		select {
		case l.incoming <- msg:
		case <-l.done:
			return
		}
	}
}
