package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"chessduel/internal/server/storage"

	"github.com/google/uuid"
	"github.com/lixenwraith/auth"
	"golang.org/x/term"
)

const (
	minPasswordLength = 8
	tempAccountTTL    = 24 * time.Hour
)

func runUser(subcommand string, args []string) error {
	switch subcommand {
	case "add":
		return runUserAdd(args)
	case "delete":
		return runUserDelete(args)
	case "set-password":
		return runUserSetPassword(args)
	case "set-hash":
		return runUserSetHash(args)
	case "set-email":
		return runUserSetEmail(args)
	case "set-username":
		return runUserSetUsername(args)
	case "list":
		return runUserList(args)
	default:
		return fmt.Errorf("unknown user subcommand: %s", subcommand)
	}
}

// readPassword prompts on the terminal without echo
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// hashPassword checks the minimum length and returns the Argon2 PHC hash
func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// lookupUser resolves username to its record
func lookupUser(store *storage.Store, username string) (*storage.UserRecord, error) {
	if username == "" {
		return nil, errors.New("username required (-username)")
	}
	user, err := store.GetUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("user not found: %s", username)
	}
	return user, nil
}

func runUserAdd(args []string) error {
	fs, path := newFlagSet("user add")
	username := fs.String("username", "", "Username (required)")
	email := fs.String("email", "", "Email address (optional)")
	password := fs.String("password", "", "Password")
	hash := fs.String("hash", "", "Pre-computed Argon2 PHC hash")
	interactive := fs.Bool("interactive", false, "Prompt for the password")
	temp := fs.Bool("temp", false, "Create a temporary account (24h TTL)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		return errors.New("username required (-username)")
	}

	var passwordHash string
	var err error
	switch {
	case *password != "" && *hash != "":
		return errors.New("cannot specify both -password and -hash")
	case *interactive && (*password != "" || *hash != ""):
		return errors.New("cannot use -interactive with -password or -hash")
	case *interactive:
		var pw string
		if pw, err = readPassword("Enter password: "); err != nil {
			return err
		}
		passwordHash, err = hashPassword(pw)
	case *hash != "":
		if err = auth.ValidatePHCHashFormat(*hash); err != nil {
			return fmt.Errorf("invalid hash format: %w", err)
		}
		passwordHash = *hash
	case *password != "":
		passwordHash, err = hashPassword(*password)
	default:
		return errors.New("password required: use -password, -hash, or -interactive")
	}
	if err != nil {
		return err
	}

	return withStore(*path, func(store *storage.Store) error {
		now := time.Now().UTC()
		record := storage.UserRecord{
			UserID:       uuid.New().String(),
			Username:     strings.ToLower(*username),
			Email:        strings.ToLower(*email),
			PasswordHash: passwordHash,
			AccountType:  "permanent",
			CreatedAt:    now,
		}
		if *temp {
			expires := now.Add(tempAccountTTL)
			record.AccountType = "temp"
			record.ExpiresAt = &expires
		}

		if err := store.CreateUser(record); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		fmt.Printf("User created:\n  ID: %s\n  Username: %s\n  Type: %s\n",
			record.UserID, record.Username, record.AccountType)
		if record.Email != "" {
			fmt.Printf("  Email: %s\n", record.Email)
		}
		return nil
	})
}

func runUserDelete(args []string) error {
	fs, path := newFlagSet("user delete")
	username := fs.String("username", "", "Username to delete")
	userID := fs.String("id", "", "User ID to delete")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if (*username == "") == (*userID == "") {
		return errors.New("specify exactly one of -username or -id")
	}

	return withStore(*path, func(store *storage.Store) error {
		target := *userID
		if target == "" {
			user, err := lookupUser(store, *username)
			if err != nil {
				return err
			}
			target = user.UserID
		}

		if err := store.DeleteUser(target); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		fmt.Printf("User deleted: %s\n", target)
		return nil
	})
}

func runUserSetPassword(args []string) error {
	fs, path := newFlagSet("user set-password")
	username := fs.String("username", "", "Username (required)")
	password := fs.String("password", "", "New password")
	interactive := fs.Bool("interactive", false, "Prompt for the password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw := *password
	switch {
	case *interactive && pw != "":
		return errors.New("cannot use -interactive with -password")
	case *interactive:
		var err error
		if pw, err = readPassword("Enter new password: "); err != nil {
			return err
		}
	case pw == "":
		return errors.New("password required: use -password or -interactive")
	}

	passwordHash, err := hashPassword(pw)
	if err != nil {
		return err
	}

	return withStore(*path, func(store *storage.Store) error {
		user, err := lookupUser(store, *username)
		if err != nil {
			return err
		}
		if err := store.UpdateUserPassword(user.UserID, passwordHash); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		fmt.Printf("Password updated for user: %s\n", user.Username)
		return nil
	})
}

func runUserSetHash(args []string) error {
	fs, path := newFlagSet("user set-hash")
	username := fs.String("username", "", "Username (required)")
	hash := fs.String("hash", "", "Argon2 PHC hash (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := auth.ValidatePHCHashFormat(*hash); err != nil {
		return fmt.Errorf("invalid hash format: %w", err)
	}

	return withStore(*path, func(store *storage.Store) error {
		user, err := lookupUser(store, *username)
		if err != nil {
			return err
		}
		if err := store.UpdateUserPassword(user.UserID, *hash); err != nil {
			return fmt.Errorf("failed to update password hash: %w", err)
		}
		fmt.Printf("Password hash updated for user: %s\n", user.Username)
		return nil
	})
}

func runUserSetEmail(args []string) error {
	fs, path := newFlagSet("user set-email")
	username := fs.String("username", "", "Username (required)")
	email := fs.String("email", "", "New email address (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("email required (-email)")
	}

	return withStore(*path, func(store *storage.Store) error {
		user, err := lookupUser(store, *username)
		if err != nil {
			return err
		}
		if err := store.UpdateUserEmail(user.UserID, strings.ToLower(*email)); err != nil {
			return fmt.Errorf("failed to update email: %w", err)
		}
		fmt.Printf("Email updated for user: %s\n", user.Username)
		return nil
	})
}

func runUserSetUsername(args []string) error {
	fs, path := newFlagSet("user set-username")
	current := fs.String("current", "", "Current username (required)")
	next := fs.String("new", "", "New username (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *next == "" {
		return errors.New("new username required (-new)")
	}

	return withStore(*path, func(store *storage.Store) error {
		user, err := lookupUser(store, *current)
		if err != nil {
			return err
		}
		if err := store.UpdateUserUsername(user.UserID, strings.ToLower(*next)); err != nil {
			return fmt.Errorf("failed to update username: %w", err)
		}
		fmt.Printf("Username updated: %s -> %s\n", user.Username, strings.ToLower(*next))
		return nil
	})
}

func runUserList(args []string) error {
	fs, path := newFlagSet("user list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withStore(*path, func(store *storage.Store) error {
		users, err := store.GetAllUsers()
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		if len(users) == 0 {
			fmt.Println("No users found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "User ID\tUsername\tType\tEmail\tCreated\tExpires\tLast Login")
		fmt.Fprintln(w, strings.Repeat("-", 110))
		for _, u := range users {
			email := u.Email
			if email == "" {
				email = "(none)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				short(u.UserID),
				u.Username,
				u.AccountType,
				email,
				u.CreatedAt.Format("2006-01-02 15:04"),
				formatOptionalTime(u.ExpiresAt),
				formatOptionalTime(u.LastLoginAt),
			)
		}
		w.Flush()

		fmt.Printf("\nTotal users: %d\n", len(users))
		return nil
	})
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}
