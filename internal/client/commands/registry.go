package commands

import (
	"errors"
	"fmt"
	"strings"

	"chessduel/internal/client/display"
	"chessduel/internal/client/session"
)

// ErrExit asks the read loop to stop
var ErrExit = errors.New("exit")

// Command defines a client command with its handler
type Command struct {
	Name        string
	ShortName   string
	Description string
	Usage       string
	Handler     func(*session.Session, []string) error
}

type group struct {
	title string
	names []string
}

// Registry manages command registration and execution
type Registry struct {
	session  *session.Session
	commands map[string]*Command
	groups   []*group
	current  *group
}

func NewRegistry(s *session.Session) *Registry {
	r := &Registry{
		session:  s,
		commands: make(map[string]*Command),
	}

	r.beginGroup("Game Commands")
	r.registerGameCommands()
	r.beginGroup("Lobby Commands")
	r.registerLobbyCommands()
	r.beginGroup("Auth Commands")
	r.registerAuthCommands()
	r.beginGroup("Utility Commands")
	r.registerDebugCommands()

	r.Register(&Command{
		Name:        "help",
		ShortName:   "?",
		Description: "Show available commands",
		Usage:       "help [command]",
		Handler:     r.helpHandler,
	})
	r.Register(&Command{
		Name:        "exit",
		ShortName:   "x",
		Description: "Exit the client",
		Usage:       "exit",
		Handler:     exitHandler,
	})

	return r
}

func (r *Registry) beginGroup(title string) {
	r.current = &group{title: title}
	r.groups = append(r.groups, r.current)
}

func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	if cmd.ShortName != "" {
		r.commands[cmd.ShortName] = cmd
	}
	if r.current != nil {
		r.current.names = append(r.current.names, cmd.Name)
	}
}

// Execute runs one input line; it returns ErrExit when the client should quit
func (r *Registry) Execute(input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd, exists := r.commands[parts[0]]
	if !exists {
		fmt.Printf("%sUnknown command: %s%s\n", display.Red, parts[0], display.Reset)
		fmt.Printf("Type 'help' for available commands\n")
		return nil
	}

	r.session.Client.SetVerbose(r.session.Verbose)

	err := cmd.Handler(r.session, parts[1:])
	if errors.Is(err, ErrExit) {
		return err
	}
	if err != nil {
		fmt.Printf("%sError: %s%s\n", display.Red, err.Error(), display.Reset)
	}
	return nil
}

func (r *Registry) helpHandler(s *session.Session, args []string) error {
	if len(args) > 0 {
		cmd, exists := r.commands[args[0]]
		if !exists {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		fmt.Printf("\n%s%s%s - %s\n", display.Cyan, cmd.Name, display.Reset, cmd.Description)
		if cmd.ShortName != "" {
			fmt.Printf("Short form: %s%s%s\n", display.Cyan, cmd.ShortName, display.Reset)
		}
		fmt.Printf("Usage: %s\n", cmd.Usage)
		return nil
	}

	fmt.Printf("\n%sAvailable Commands:%s\n", display.Cyan, display.Reset)
	for _, g := range r.groups {
		fmt.Printf("\n%s%s:%s\n", display.Yellow, g.title, display.Reset)
		for _, name := range g.names {
			cmd := r.commands[name]
			short := "    "
			if cmd.ShortName != "" {
				short = fmt.Sprintf("[%s%s%s] ", display.Cyan, cmd.ShortName, display.Reset)
			}
			fmt.Printf("  %s%-10s %s\n", short, cmd.Name, cmd.Description)
		}
	}

	fmt.Printf("\nType 'help <command>' for detailed usage\n")
	fmt.Printf("Add '-v' to any command for verbose output\n")
	return nil
}

func exitHandler(s *session.Session, args []string) error {
	fmt.Printf("%sGoodbye!%s\n", display.Cyan, display.Reset)
	return ErrExit
}

// requireSession returns the current session ID or an error naming how to get one
func requireSession(s *session.Session) (string, error) {
	if s.CurrentSession == "" {
		return "", errors.New("no current session, use 'new' or 'join <sessionId>'")
	}
	return s.CurrentSession, nil
}
