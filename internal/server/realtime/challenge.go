package realtime

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Delivery is a message addressed to a logged-in username
type Delivery struct {
	To  string
	Msg Message
}

// pair is an unordered pair of usernames
type pair struct{ a, b string }

func pairOf(x, y string) pair {
	if x > y {
		x, y = y, x
	}
	return pair{x, y}
}

type offer struct {
	from, to string
}

// Coordinator runs the challenge handshake for every pair of users.
// A pair with no entry is idle; an entry means an offer awaits its answer.
// Coordinator is not safe for concurrent use; the hub owns it.
type Coordinator struct {
	presence  *Presence
	offers    map[pair]offer
	newGameID func() string
	log       *zap.Logger
}

func NewCoordinator(presence *Presence, log *zap.Logger) *Coordinator {
	return &Coordinator{
		presence:  presence,
		offers:    make(map[pair]offer),
		newGameID: func() string { return uuid.New().String() },
		log:       log,
	}
}

// Offer handles a challenge sent by sender
func (c *Coordinator) Offer(sender string, msg Challenge) []Delivery {
	if msg.From != sender {
		c.log.Warn("dropping challenge with spoofed sender",
			zap.String("sender", sender), zap.String("from", msg.From))
		return nil
	}
	if msg.To == sender {
		c.log.Debug("dropping self challenge", zap.String("user", sender))
		return nil
	}
	if _, online := c.presence.Conn(msg.To); !online {
		c.log.Info("challenge target offline", zap.String("from", sender), zap.String("to", msg.To))
		return nil
	}

	// A newer offer in either direction replaces the pending one
	c.offers[pairOf(msg.From, msg.To)] = offer{from: msg.From, to: msg.To}
	return []Delivery{{To: msg.To, Msg: ChallengeReceived{From: msg.From}}}
}

// Respond handles the target's answer to a pending offer
func (c *Coordinator) Respond(sender string, msg ChallengeResponse) []Delivery {
	if msg.From != sender {
		c.log.Warn("dropping challenge response with spoofed sender",
			zap.String("sender", sender), zap.String("from", msg.From))
		return nil
	}

	key := pairOf(msg.From, msg.To)
	o, ok := c.offers[key]
	if !ok || o.to != msg.From || o.from != msg.To {
		c.log.Debug("no pending challenge to answer", zap.String("from", msg.From), zap.String("to", msg.To))
		return nil
	}
	delete(c.offers, key)

	if !msg.Accepted {
		return []Delivery{{To: o.from, Msg: ChallengeResponse{From: o.to, To: o.from, Accepted: false}}}
	}

	gameID := c.newGameID()
	c.log.Info("challenge accepted",
		zap.String("challenger", o.from), zap.String("opponent", o.to), zap.String("game", gameID))
	return []Delivery{
		{To: o.from, Msg: StartGame{Opponent: o.to, GameID: gameID, Color: "w"}},
		{To: o.to, Msg: StartGame{Opponent: o.from, GameID: gameID, Color: "b"}},
	}
}

// Forget drops the pending offers that involve username
func (c *Coordinator) Forget(username string) {
	for key := range c.offers {
		if key.a == username || key.b == username {
			delete(c.offers, key)
		}
	}
}

// Pending returns the number of unanswered offers
func (c *Coordinator) Pending() int {
	return len(c.offers)
}
