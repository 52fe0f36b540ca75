package realtime

import (
	"sort"
)

// Presence maps logged-in usernames to connections. It holds at most one
// entry per username and one username per connection.
// Presence is not safe for concurrent use; the hub owns it.
type Presence struct {
	byName map[string]string // username → connection ID
	byConn map[string]string // connection ID → username
}

func NewPresence() *Presence {
	return &Presence{
		byName: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Join binds username to connID. A connection previously holding the same
// username is evicted first and its ID returned so the caller can close it.
func (p *Presence) Join(connID, username string) (evicted string) {
	if prev, ok := p.byConn[connID]; ok {
		delete(p.byName, prev)
	}
	if old, ok := p.byName[username]; ok && old != connID {
		delete(p.byConn, old)
		evicted = old
	}

	p.byName[username] = connID
	p.byConn[connID] = username
	return evicted
}

// Leave removes the entry of connID and reports the username it held
func (p *Presence) Leave(connID string) (string, bool) {
	username, ok := p.byConn[connID]
	if !ok {
		return "", false
	}
	delete(p.byConn, connID)
	if p.byName[username] == connID {
		delete(p.byName, username)
	}
	return username, true
}

// Username returns the name logged in on connID
func (p *Presence) Username(connID string) (string, bool) {
	username, ok := p.byConn[connID]
	return username, ok
}

// Conn returns the connection a username is logged in on
func (p *Presence) Conn(username string) (string, bool) {
	connID, ok := p.byName[username]
	return connID, ok
}

// List returns the online users sorted by username
func (p *Presence) List() []OnlineUser {
	users := make([]OnlineUser, 0, len(p.byName))
	for username, connID := range p.byName {
		users = append(users, OnlineUser{ID: connID, Username: username})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}
