// Package realtime implements the lobby: who is online, and the challenge
// handshake that lets two signed-in players agree to start a game.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types on the wire
const (
	TypeLogin             = "login"
	TypeOnlineUsers       = "onlineUsers"
	TypeChallenge         = "challenge"
	TypeChallengeReceived = "challenge_received"
	TypeChallengeResponse = "challenge_response"
	TypeStartGame         = "start_game"
)

var ErrUnknownType = errors.New("unknown message type")

// Message is one lobby protocol message. The set of implementations is closed.
type Message interface {
	Type() string
}

type Login struct {
	Username string `json:"username"`
}

type OnlineUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type OnlineUsers struct {
	Users []OnlineUser `json:"users"`
}

type Challenge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ChallengeReceived struct {
	From string `json:"from"`
}

type ChallengeResponse struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Accepted bool   `json:"accepted"`
}

// StartGame tells each side of an accepted challenge who it plays and with which color
type StartGame struct {
	Opponent string `json:"opponent"`
	GameID   string `json:"gameId"`
	Color    string `json:"color"`
}

func (Login) Type() string             { return TypeLogin }
func (OnlineUsers) Type() string       { return TypeOnlineUsers }
func (Challenge) Type() string         { return TypeChallenge }
func (ChallengeReceived) Type() string { return TypeChallengeReceived }
func (ChallengeResponse) Type() string { return TypeChallengeResponse }
func (StartGame) Type() string         { return TypeStartGame }

// Encode renders m as a flat JSON object with a "type" field
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(m.Type())
	return json.Marshal(fields)
}

// Decode parses a message by its "type" field
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	var m Message
	switch envelope.Type {
	case TypeLogin:
		var v Login
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		m = v
	case TypeOnlineUsers:
		var v OnlineUsers
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		m = v
	case TypeChallenge:
		var v Challenge
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		m = v
	case TypeChallengeReceived:
		var v ChallengeReceived
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		m = v
	case TypeChallengeResponse:
		var v ChallengeResponse
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		m = v
	case TypeStartGame:
		var v StartGame
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		m = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
	}
	return m, nil
}
