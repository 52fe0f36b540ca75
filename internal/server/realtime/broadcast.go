package realtime

import (
	"go.uber.org/zap"
)

// broadcast pushes the full presence list to every open connection
func (h *Hub) broadcast() {
	msg := OnlineUsers{Users: h.presence.List()}
	for id, c := range h.conns {
		if !c.Send(msg) {
			h.log.Debug("skipping slow or closed connection", zap.String("conn", id))
		}
	}
}

// deliver sends each message to the connection of its addressee only
func (h *Hub) deliver(deliveries []Delivery) {
	for _, d := range deliveries {
		connID, ok := h.presence.Conn(d.To)
		if !ok {
			h.log.Debug("addressee offline", zap.String("to", d.To), zap.String("type", d.Msg.Type()))
			continue
		}
		c, ok := h.conns[connID]
		if !ok || !c.Send(d.Msg) {
			h.log.Debug("delivery dropped", zap.String("to", d.To), zap.String("type", d.Msg.Type()))
		}
	}
}
