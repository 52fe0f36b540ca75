// Package cli implements the chess-server "db" subcommands for offline
// database maintenance.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"chessduel/internal/server/storage"

	"go.uber.org/zap"
)

var errPathRequired = errors.New("database path required (-path)")

// Run dispatches args (after "db") to a subcommand
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New("subcommand required: init, delete, query, moves, user")
	}

	switch args[0] {
	case "init":
		return runInit(args[1:])
	case "delete":
		return runDelete(args[1:])
	case "query":
		return runQuery(args[1:])
	case "moves":
		return runMoves(args[1:])
	case "user":
		if len(args) < 2 {
			return errors.New("user subcommand required: add, delete, set-password, set-hash, set-email, set-username, list")
		}
		return runUser(args[1], args[2:])
	default:
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

// newFlagSet returns a flag set carrying the shared -path flag
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("path", "", "Database file path (required)")
	return fs, path
}

// withStore opens the database at path for the duration of fn
func withStore(path string, fn func(*storage.Store) error) error {
	if path == "" {
		return errPathRequired
	}
	store, err := storage.NewStore(path, false, zap.NewNop())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func runInit(args []string) error {
	fs, path := newFlagSet("init")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withStore(*path, func(store *storage.Store) error {
		if err := store.InitDB(); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		fmt.Printf("Database initialized at: %s\n", *path)
		return nil
	})
}

func runDelete(args []string) error {
	fs, path := newFlagSet("delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errPathRequired
	}

	// DeleteDB closes the store itself
	store, err := storage.NewStore(*path, false, zap.NewNop())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.DeleteDB(); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}

	fmt.Printf("Database deleted: %s\n", *path)
	return nil
}

func runQuery(args []string) error {
	fs, path := newFlagSet("query")
	gameID := fs.String("game", "", "Game ID to filter (optional, * for all)")
	ownerID := fs.String("owner", "", "Owner user ID to filter (optional, * for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withStore(*path, func(store *storage.Store) error {
		games, err := store.QueryGames(*gameID, *ownerID)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		if len(games) == 0 {
			fmt.Println("No games found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Game ID\tOwner\tColor\tOpponent\tDepth\tResult\tStarted")
		fmt.Fprintln(w, strings.Repeat("-", 90))
		for _, g := range games {
			owner := "(anonymous)"
			if g.OwnerID != "" {
				owner = short(g.OwnerID)
			}
			result := g.Result
			if result == "" {
				result = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				short(g.GameID),
				owner,
				g.PlayerColor,
				g.OpponentKind,
				g.SearchDepth,
				result,
				g.StartTimeUTC.Format("2006-01-02 15:04:05"),
			)
		}
		w.Flush()

		fmt.Printf("\nFound %d game(s)\n", len(games))
		return nil
	})
}

func runMoves(args []string) error {
	fs, path := newFlagSet("moves")
	gameID := fs.String("game", "", "Full game ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *gameID == "" {
		return errors.New("game ID required (-game)")
	}

	return withStore(*path, func(store *storage.Store) error {
		moves, err := store.GameMoves(*gameID)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		if len(moves) == 0 {
			fmt.Println("No moves recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tColor\tBy\tUCI\tSAN\tEval")
		for _, m := range moves {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%+.2f\n",
				m.MoveNumber, m.PlayerColor, m.MovedBy, m.MoveUCI, m.MoveSAN, m.Evaluation)
		}
		w.Flush()
		return nil
	})
}

func short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
