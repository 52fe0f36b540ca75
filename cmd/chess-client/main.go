// Package main implements an interactive debugging client for the chess server API.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chessduel/internal/client/commands"
	"chessduel/internal/client/display"
	"chessduel/internal/client/session"

	"github.com/adrg/xdg"
	"github.com/chzyer/readline"
)

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "Chess server base URL")
	flag.Parse()

	s := session.New(*apiURL)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          display.Prompt("chess"),
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("%s%s%s\n", display.Red, err.Error(), display.Reset)
		os.Exit(1)
	}
	defer rl.Close()

	// Lobby events arrive between prompts
	s.Out = rl.Stdout()
	s.Client.Out = rl.Stdout()

	fmt.Printf("%sChess Debug Client%s\n", display.Cyan, display.Reset)
	fmt.Printf("%sAPI: %s%s\n", display.Cyan, s.APIBaseURL, display.Reset)
	fmt.Printf("Type 'help' for commands\n\n")

	registry := commands.NewRegistry(s)
	defer s.SetLobby(nil)

	for {
		rl.SetPrompt(buildPrompt(s))

		line, err := rl.Readline()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" {
			break
		}

		s.Verbose = false
		if strings.HasSuffix(line, " -v") {
			s.Verbose = true
			line = strings.TrimSuffix(line, " -v")
		}

		if err := registry.Execute(line); errors.Is(err, commands.ErrExit) {
			break
		}
	}
}

// historyFile keeps readline history under the XDG state directory
func historyFile() string {
	path, err := xdg.StateFile(filepath.Join("chess-client", "history"))
	if err != nil {
		return ".chess_history"
	}
	return path
}

func buildPrompt(s *session.Session) string {
	var parts []string
	if s.Username != "" {
		name := display.Paint(display.Magenta, s.Username)
		if s.Lobby() != nil {
			name += display.Paint(display.Green, "*")
		}
		parts = append(parts, name)
	}
	if s.CurrentSession != "" {
		id := s.CurrentSession
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, display.Paint(display.White, id))
	}

	prompt := "chess"
	if len(parts) > 0 {
		prompt += display.Paint(display.Yellow, " [") + strings.Join(parts, display.Paint(display.Yellow, " - ")) + display.Yellow + "]"
	}

	if st := s.State; st != nil {
		you := "opp"
		if st.Turn == st.PlayerColor {
			you = "you"
		}
		prompt += fmt.Sprintf(" - %s(%s) %s", display.ColorForTurn(st.Turn), you, st.State)
	}

	return display.Prompt(prompt)
}
