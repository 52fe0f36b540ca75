package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"chessduel/internal/client/api"
	"chessduel/internal/client/display"
	"chessduel/internal/client/session"
	"chessduel/internal/server/realtime"
)

const lobbyDialTimeout = 10 * time.Second

func (r *Registry) registerLobbyCommands() {
	r.Register(&Command{
		Name:        "lobby",
		ShortName:   "b",
		Description: "Join or leave the challenge lobby",
		Usage:       "lobby [leave]",
		Handler:     lobbyHandler,
	})
	r.Register(&Command{
		Name:        "online",
		ShortName:   "w",
		Description: "List users in the lobby",
		Usage:       "online",
		Handler:     onlineHandler,
	})
	r.Register(&Command{
		Name:        "challenge",
		ShortName:   "ch",
		Description: "Challenge a user in the lobby",
		Usage:       "challenge <username>",
		Handler:     challengeHandler,
	})
	r.Register(&Command{
		Name:        "accept",
		ShortName:   "y",
		Description: "Accept a challenge",
		Usage:       "accept <username>",
		Handler:     respondHandler(true),
	})
	r.Register(&Command{
		Name:        "decline",
		ShortName:   "no",
		Description: "Decline a challenge",
		Usage:       "decline <username>",
		Handler:     respondHandler(false),
	})
}

func lobbyHandler(s *session.Session, args []string) error {
	if len(args) > 0 && args[0] == "leave" {
		if s.Lobby() == nil {
			return errors.New("not in the lobby")
		}
		s.SetLobby(nil)
		fmt.Printf("%sLeft the lobby%s\n", display.Green, display.Reset)
		return nil
	}

	if !s.Authenticated() {
		return errors.New("login required before joining the lobby")
	}

	ctx, cancel := context.WithTimeout(context.Background(), lobbyDialTimeout)
	defer cancel()
	l, err := s.Client.DialLobby(ctx, s.Username)
	if err != nil {
		return err
	}
	s.SetLobby(l)
	go watchLobby(s, l)

	fmt.Printf("%sJoined the lobby as %s%s\n", display.Green, s.Username, display.Reset)
	return nil
}

// watchLobby prints lobby events until the connection ends
func watchLobby(s *session.Session, l *api.Lobby) {
	for msg := range l.Incoming() {
		printLobbyEvent(s.Out, s.Username, msg)
	}
	if s.Lobby() == l {
		fmt.Fprintf(s.Out, "\n%s[lobby] connection closed%s\n", display.Yellow, display.Reset)
	}
	s.ClearLobby(l)
}

func printLobbyEvent(w io.Writer, self string, msg realtime.Message) {
	switch m := msg.(type) {
	case realtime.OnlineUsers:
		names := make([]string, 0, len(m.Users))
		for _, u := range m.Users {
			if u.Username != self {
				names = append(names, u.Username)
			}
		}
		if len(names) == 0 {
			fmt.Fprintf(w, "\n%s[lobby] nobody else online%s\n", display.Cyan, display.Reset)
			return
		}
		fmt.Fprintf(w, "\n%s[lobby] online: %s%s\n", display.Cyan, strings.Join(names, ", "), display.Reset)
	case realtime.ChallengeReceived:
		fmt.Fprintf(w, "\n%s[lobby] %s challenges you (accept %s / decline %s)%s\n",
			display.Magenta, m.From, m.From, m.From, display.Reset)
	case realtime.ChallengeResponse:
		if !m.Accepted {
			fmt.Fprintf(w, "\n%s[lobby] %s declined your challenge%s\n", display.Yellow, m.From, display.Reset)
		}
	case realtime.StartGame:
		fmt.Fprintf(w, "\n%s[lobby] game %s against %s, you play %s%s\n",
			display.Green, m.GameID, m.Opponent, display.ColorForTurn(m.Color), display.Reset)
	}
}

func onlineHandler(s *session.Session, args []string) error {
	resp, err := s.Client.OnlineUsers()
	if err != nil {
		return err
	}
	if len(resp.Users) == 0 {
		fmt.Println("Nobody is in the lobby")
		return nil
	}
	for _, u := range resp.Users {
		marker := ""
		if u.Username == s.Username {
			marker = " (you)"
		}
		fmt.Printf("  %s%s\n", u.Username, marker)
	}
	return nil
}

func challengeHandler(s *session.Session, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: challenge <username>")
	}
	l := s.Lobby()
	if l == nil {
		return errors.New("join the lobby first")
	}
	if err := l.Challenge(s.Username, args[0]); err != nil {
		return err
	}
	fmt.Printf("%sChallenge sent to %s%s\n", display.Cyan, args[0], display.Reset)
	return nil
}

func respondHandler(accept bool) func(*session.Session, []string) error {
	return func(s *session.Session, args []string) error {
		if len(args) < 1 {
			return errors.New("usage: accept|decline <username>")
		}
		l := s.Lobby()
		if l == nil {
			return errors.New("join the lobby first")
		}
		return l.Respond(s.Username, args[0], accept)
	}
}
