// Package config loads server settings from defaults, an optional JSON file
// and command-line flags, in that order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

var cfgFile = "chess-server/config.json"

type InvalidConfig struct {
	err string
}

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("config error: %s", e.err)
}

// Duration reads "30s" style strings from JSON
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

type EngineConfig struct {
	Path          string   `json:"path"`
	Workers       int      `json:"workers"`
	SearchTimeout Duration `json:"search_timeout"`
	// UCI options sent to every engine process, e.g. {"Threads": "2"}
	Options map[string]string `json:"options,omitempty"`
}

// RemoteConfig points at the remote move service; an empty URL disables it
type RemoteConfig struct {
	URL     string   `json:"url"`
	Timeout Duration `json:"timeout"`
}

type Config struct {
	APIHost     string       `json:"api_host"`
	APIPort     int          `json:"api_port"`
	Dev         bool         `json:"dev"`
	StoragePath string       `json:"storage_path"`
	PIDPath     string       `json:"pid_path"`
	PIDLock     bool         `json:"pid_lock"`
	MaxSessions int          `json:"max_sessions"`
	Engine      EngineConfig `json:"engine"`
	Remote      RemoteConfig `json:"remote"`
}

func Default() Config {
	return Config{
		APIHost:     "localhost",
		APIPort:     8080,
		MaxSessions: 50,
		Engine: EngineConfig{
			Path:          "stockfish",
			Workers:       2,
			SearchTimeout: Duration(30 * time.Second),
		},
		Remote: RemoteConfig{
			Timeout: Duration(10 * time.Second),
		},
	}
}

// Load builds the configuration for args (without the program name).
// The file named by -config is required to exist; otherwise the XDG config
// directories are searched and a missing file is not an error.
func Load(args []string) (*Config, error) {
	path := configPath(args)

	cfg := Default()
	if path != "" {
		if err := readCfgFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	fs, _ := newFlagSet(&cfg, os.Stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configPath finds -config in args without applying any other flag
func configPath(args []string) string {
	probe := Default()
	fs, explicit := newFlagSet(&probe, io.Discard)
	// Flag errors are reported by the full parse
	_ = fs.Parse(args)
	if *explicit != "" {
		return *explicit
	}

	found, err := xdg.SearchConfigFile(cfgFile)
	if err != nil {
		return ""
	}
	return found
}

func newFlagSet(cfg *Config, out io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet("chess-server", flag.ContinueOnError)
	fs.SetOutput(out)

	path := fs.String("config", "", "Path to JSON config file (default: XDG "+cfgFile+")")
	fs.StringVar(&cfg.APIHost, "api-host", cfg.APIHost, "API server host")
	fs.IntVar(&cfg.APIPort, "api-port", cfg.APIPort, "API server port")
	fs.BoolVar(&cfg.Dev, "dev", cfg.Dev, "Development mode (relaxed rate limits, debug logging)")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "Path to SQLite database file (disables persistence if empty)")
	fs.StringVar(&cfg.PIDPath, "pid", cfg.PIDPath, "Optional path to write PID file")
	fs.BoolVar(&cfg.PIDLock, "pid-lock", cfg.PIDLock, "Lock PID file to allow only one instance (requires -pid)")
	fs.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "Maximum concurrent game sessions")
	fs.StringVar(&cfg.Engine.Path, "engine", cfg.Engine.Path, "Path to the UCI engine binary")
	fs.IntVar(&cfg.Engine.Workers, "engine-workers", cfg.Engine.Workers, "Number of engine processes")
	fs.Func("search-timeout", "Upper bound for one engine search (e.g. 30s)", durationFlag(&cfg.Engine.SearchTimeout))
	fs.Func("engine-option", "UCI option as Name=Value, repeatable", func(v string) error {
		name, value, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("expected Name=Value, got %q", v)
		}
		if cfg.Engine.Options == nil {
			cfg.Engine.Options = make(map[string]string)
		}
		cfg.Engine.Options[name] = strings.TrimSpace(value)
		return nil
	})
	fs.StringVar(&cfg.Remote.URL, "remote-url", cfg.Remote.URL, "Base URL of the remote move service (disabled if empty)")
	fs.Func("remote-timeout", "Timeout for remote move service calls (e.g. 10s)", durationFlag(&cfg.Remote.Timeout))
	return fs, path
}

func durationFlag(d *Duration) func(string) error {
	return func(s string) error {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
}

func (c *Config) Validate() error {
	switch {
	case c.APIPort < 1 || c.APIPort > 65535:
		return &InvalidConfig{fmt.Sprintf("api port %d out of range", c.APIPort)}
	case c.PIDLock && c.PIDPath == "":
		return &InvalidConfig{"pid lock requires a pid path"}
	case c.MaxSessions < 1:
		return &InvalidConfig{"max sessions must be at least 1"}
	case c.Engine.Path == "":
		return &InvalidConfig{"engine path is required"}
	case c.Engine.Workers < 1:
		return &InvalidConfig{"engine workers must be at least 1"}
	case c.Engine.SearchTimeout <= 0:
		return &InvalidConfig{"search timeout must be positive"}
	case c.Remote.Timeout <= 0:
		return &InvalidConfig{"remote timeout must be positive"}
	}
	return nil
}

func readCfgFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &InvalidConfig{fmt.Sprintf("config file %s not found", path)}
		}
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return &InvalidConfig{fmt.Sprintf("%s: %v", path, err)}
	}
	return nil
}
