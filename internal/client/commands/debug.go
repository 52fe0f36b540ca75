package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"chessduel/internal/client/display"
	"chessduel/internal/client/session"
)

func (r *Registry) registerDebugCommands() {
	r.Register(&Command{
		Name:        "health",
		ShortName:   ".",
		Description: "Check server health",
		Usage:       "health",
		Handler:     healthHandler,
	})
	r.Register(&Command{
		Name:        "url",
		ShortName:   "/",
		Description: "Show or set the API base URL",
		Usage:       "url [apiUrl]",
		Handler:     urlHandler,
	})
	r.Register(&Command{
		Name:        "raw",
		ShortName:   ":",
		Description: "Send raw API request",
		Usage:       "raw <method> <path> [json-body]",
		Handler:     rawRequestHandler,
	})
	r.Register(&Command{
		Name:        "clear",
		ShortName:   "-",
		Description: "Clear screen",
		Usage:       "clear",
		Handler:     clearHandler,
	})
}

func healthHandler(s *session.Session, args []string) error {
	resp, err := s.Client.Health()
	if err != nil {
		return err
	}

	fmt.Printf("%sServer Health:%s\n", display.Cyan, display.Reset)
	fmt.Printf("  Status:   %s\n", resp.Status)
	fmt.Printf("  Time:     %s\n", time.Unix(resp.Time, 0).Format("2006-01-02 15:04:05"))
	fmt.Printf("  Storage:  %s\n", resp.Storage)
	fmt.Printf("  Sessions: %d\n", resp.Sessions)
	return nil
}

func urlHandler(s *session.Session, args []string) error {
	if len(args) == 0 {
		fmt.Printf("Current API URL: %s\n", s.APIBaseURL)
		return nil
	}

	url := args[0]
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	s.APIBaseURL = url
	s.Client.SetBaseURL(url)
	// Tokens and sessions belong to the previous server
	s.SetLobby(nil)
	s.SetAuth("", "", "")
	s.Forget()

	fmt.Printf("%sAPI URL set to: %s%s\n", display.Cyan, url, display.Reset)
	return nil
}

func rawRequestHandler(s *session.Session, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: raw <method> <path> [json-body]")
	}
	return s.Client.RawRequest(strings.ToUpper(args[0]), args[1], strings.Join(args[2:], " "))
}

func clearHandler(s *session.Session, args []string) error {
	fmt.Print("\033[H\033[2J")
	return nil
}
