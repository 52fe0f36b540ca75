package realtime

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var ErrHubStopped = errors.New("lobby hub stopped")

// Conn is one client connection as seen by the hub
type Conn interface {
	ID() string
	// Send queues m without blocking and reports whether it was accepted
	Send(m Message) bool
	Close()
}

type inbound struct {
	connID string
	msg    Message
}

// Hub serializes every lobby event on a single goroutine, in arrival order
type Hub struct {
	register   chan Conn
	unregister chan string
	inbound    chan inbound
	queries    chan chan []OnlineUser
	done       chan struct{}

	conns    map[string]Conn
	presence *Presence
	coord    *Coordinator
	log      *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	presence := NewPresence()
	return &Hub{
		register:   make(chan Conn),
		unregister: make(chan string),
		inbound:    make(chan inbound),
		queries:    make(chan chan []OnlineUser),
		done:       make(chan struct{}),
		conns:      make(map[string]Conn),
		presence:   presence,
		coord:      NewCoordinator(presence, log),
		log:        log,
	}
}

// Run processes events until ctx ends, then closes every connection
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for _, c := range h.conns {
			c.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.conns[c.ID()] = c
			c.Send(OnlineUsers{Users: h.presence.List()})
		case id := <-h.unregister:
			h.handleLeave(id)
		case in := <-h.inbound:
			h.handleMessage(in.connID, in.msg)
		case reply := <-h.queries:
			reply <- h.presence.List()
		}
	}
}

// Register adds a connection that has not logged in yet
func (h *Hub) Register(c Conn) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Unregister is called from the connection's close path
func (h *Hub) Unregister(connID string) {
	select {
	case h.unregister <- connID:
	case <-h.done:
	}
}

// Dispatch queues a message received on connID
func (h *Hub) Dispatch(connID string, m Message) error {
	select {
	case h.inbound <- inbound{connID: connID, msg: m}:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Online returns the current presence list
func (h *Hub) Online(ctx context.Context) ([]OnlineUser, error) {
	reply := make(chan []OnlineUser, 1)
	select {
	case h.queries <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrHubStopped
	}

	select {
	case users := <-reply:
		return users, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) handleMessage(connID string, m Message) {
	if _, ok := h.conns[connID]; !ok {
		return // Closed before its messages were processed
	}

	switch msg := m.(type) {
	case Login:
		h.handleLogin(connID, msg)
	case Challenge:
		sender, ok := h.presence.Username(connID)
		if !ok {
			h.log.Debug("challenge before login", zap.String("conn", connID))
			return
		}
		h.deliver(h.coord.Offer(sender, msg))
	case ChallengeResponse:
		sender, ok := h.presence.Username(connID)
		if !ok {
			h.log.Debug("challenge response before login", zap.String("conn", connID))
			return
		}
		h.deliver(h.coord.Respond(sender, msg))
	case OnlineUsers, ChallengeReceived, StartGame:
		h.log.Debug("ignoring server-only message from client",
			zap.String("conn", connID), zap.String("type", m.Type()))
	default:
		h.log.Warn("unhandled message type", zap.String("type", m.Type()))
	}
}

func (h *Hub) handleLogin(connID string, msg Login) {
	if msg.Username == "" {
		return
	}

	if prev, ok := h.presence.Username(connID); ok && prev != msg.Username {
		h.coord.Forget(prev)
	}

	if evicted := h.presence.Join(connID, msg.Username); evicted != "" {
		if c, ok := h.conns[evicted]; ok {
			delete(h.conns, evicted)
			c.Close()
		}
		h.log.Info("login superseded previous connection",
			zap.String("username", msg.Username), zap.String("evicted", evicted))
	}

	h.log.Debug("user online", zap.String("username", msg.Username), zap.String("conn", connID))
	h.broadcast()
}

func (h *Hub) handleLeave(connID string) {
	if _, ok := h.conns[connID]; !ok {
		return
	}
	delete(h.conns, connID)

	if username, ok := h.presence.Leave(connID); ok {
		h.coord.Forget(username)
		h.log.Debug("user offline", zap.String("username", username), zap.String("conn", connID))
		h.broadcast()
	}
}
