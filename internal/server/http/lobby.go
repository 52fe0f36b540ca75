package http

import (
	"sync"
	"time"

	"chessduel/internal/server/core"
	"chessduel/internal/server/realtime"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	lobbySendBuffer   = 16
	lobbyWriteTimeout = 5 * time.Second
	lobbyMaxMessage   = 4096
)

// lobbyUpgrade authenticates the token query parameter before the socket upgrade
func (h *HTTPHandler) lobbyUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	claims, err := h.svc.Identify(c.Query("token"))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
			Error: "invalid or expired token",
			Code:  core.ErrUnauthorized,
		})
	}

	c.Locals("username", claims.Username)
	return c.Next()
}

// lobbyConn adapts a websocket to the hub's connection interface
type lobbyConn struct {
	id   string
	ws   *websocket.Conn
	send chan realtime.Message
	done chan struct{}
	once sync.Once
}

func newLobbyConn(ws *websocket.Conn) *lobbyConn {
	return &lobbyConn{
		id:   uuid.New().String(),
		ws:   ws,
		send: make(chan realtime.Message, lobbySendBuffer),
		done: make(chan struct{}),
	}
}

func (l *lobbyConn) ID() string { return l.id }

// Send never blocks the hub; a full buffer drops the message
func (l *lobbyConn) Send(m realtime.Message) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.send <- m:
		return true
	default:
		return false
	}
}

// Close stops the writer and unblocks the reader
func (l *lobbyConn) Close() {
	l.once.Do(func() {
		close(l.done)
		l.ws.Close()
	})
}

func (l *lobbyConn) writeLoop(log *zap.Logger) {
	for {
		select {
		case <-l.done:
			return
		case m := <-l.send:
			data, err := realtime.Encode(m)
			if err != nil {
				log.Error("failed to encode lobby message", zap.String("type", m.Type()), zap.Error(err))
				continue
			}
			l.ws.SetWriteDeadline(time.Now().Add(lobbyWriteTimeout))
			if err := l.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				l.Close()
				return
			}
		}
	}
}

// Lobby serves one authenticated lobby connection until it closes
func (h *HTTPHandler) Lobby(ws *websocket.Conn) {
	username, _ := ws.Locals("username").(string)
	conn := newLobbyConn(ws)
	log := h.log.With(zap.String("conn", conn.id), zap.String("username", username))

	if err := h.hub.Register(conn); err != nil {
		conn.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		conn.writeLoop(log)
	}()

	ws.SetReadLimit(lobbyMaxMessage)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}

		msg, err := realtime.Decode(data)
		if err != nil {
			log.Debug("dropping malformed lobby message", zap.Error(err))
			continue
		}

		// A connection may only log in as the account its token names
		if login, ok := msg.(realtime.Login); ok {
			if login.Username == "" {
				login.Username = username
			}
			if login.Username != username {
				log.Warn("dropping login for another account", zap.String("requested", login.Username))
				continue
			}
			msg = login
		}

		if err := h.hub.Dispatch(conn.id, msg); err != nil {
			break
		}
	}

	conn.Close()
	<-writerDone
	h.hub.Unregister(conn.id)
}
