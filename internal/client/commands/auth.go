package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"chessduel/internal/client/display"
	"chessduel/internal/client/session"

	"golang.org/x/term"
)

func (r *Registry) registerAuthCommands() {
	r.Register(&Command{
		Name:        "register",
		ShortName:   "r",
		Description: "Register a new user",
		Usage:       "register [username]",
		Handler:     registerHandler,
	})
	r.Register(&Command{
		Name:        "login",
		ShortName:   "l",
		Description: "Login with credentials",
		Usage:       "login [username|email]",
		Handler:     loginHandler,
	})
	r.Register(&Command{
		Name:        "logout",
		ShortName:   "o",
		Description: "End the server session and clear the token",
		Usage:       "logout",
		Handler:     logoutHandler,
	})
	r.Register(&Command{
		Name:        "whoami",
		ShortName:   "i",
		Description: "Show current user",
		Usage:       "whoami",
		Handler:     whoamiHandler,
	})
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// argOrPrompt returns args[0] or reads a line from stdin
func argOrPrompt(args []string, prompt string) string {
	if len(args) > 0 {
		return args[0]
	}
	fmt.Print(display.Yellow + prompt + display.Reset)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

func registerHandler(s *session.Session, args []string) error {
	username := argOrPrompt(args, "Username: ")
	password, err := readPassword(display.Yellow + "Password: " + display.Reset)
	if err != nil {
		return err
	}
	email := argOrPrompt(nil, "Email (optional): ")

	resp, err := s.Client.Register(username, password, email)
	if err != nil {
		return err
	}
	s.SetAuth(resp.Token, resp.UserID, resp.Username)

	fmt.Printf("%sRegistered successfully%s\n", display.Green, display.Reset)
	fmt.Printf("User ID: %s\nUsername: %s\n", resp.UserID, resp.Username)
	return nil
}

func loginHandler(s *session.Session, args []string) error {
	identifier := argOrPrompt(args, "Username or Email: ")
	password, err := readPassword(display.Yellow + "Password: " + display.Reset)
	if err != nil {
		return err
	}

	resp, err := s.Client.Login(identifier, password)
	if err != nil {
		return err
	}
	s.SetAuth(resp.Token, resp.UserID, resp.Username)

	fmt.Printf("%sLogged in successfully%s\n", display.Green, display.Reset)
	fmt.Printf("User ID: %s\nUsername: %s\nToken expires: %s\n",
		resp.UserID, resp.Username, resp.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func logoutHandler(s *session.Session, args []string) error {
	if !s.Authenticated() {
		return errors.New("not logged in")
	}

	s.SetLobby(nil)
	err := s.Client.Logout()
	// The local token is dropped even if the server call fails
	s.SetAuth("", "", "")
	if err != nil {
		return err
	}
	fmt.Printf("%sLogged out%s\n", display.Green, display.Reset)
	return nil
}

func whoamiHandler(s *session.Session, args []string) error {
	if !s.Authenticated() {
		fmt.Printf("%sNot authenticated%s\n", display.Yellow, display.Reset)
		return nil
	}

	user, err := s.Client.CurrentUser()
	if err != nil {
		return err
	}

	fmt.Printf("%sCurrent User:%s\n", display.Cyan, display.Reset)
	fmt.Printf("  User ID:  %s\n", user.UserID)
	fmt.Printf("  Username: %s\n", user.Username)
	if user.Email != "" {
		fmt.Printf("  Email:    %s\n", user.Email)
	}
	fmt.Printf("  Created:  %s\n", user.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}
