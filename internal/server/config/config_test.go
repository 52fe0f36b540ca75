package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load([]string{"-config", path})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), *cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `{
		"api_port": 9000,
		"max_sessions": 10,
		"engine": {"path": "/opt/stockfish", "workers": 4, "search_timeout": "5s"},
		"remote": {"url": "http://moves.local", "timeout": "3s"}
	}`)

	cfg, err := Load([]string{"-config", path, "-api-port", "9100", "-search-timeout", "2s"})
	if err != nil {
		t.Fatal(err)
	}

	want := Default()
	want.APIPort = 9100
	want.MaxSessions = 10
	want.Engine = EngineConfig{Path: "/opt/stockfish", Workers: 4, SearchTimeout: Duration(2 * time.Second)}
	want.Remote = RemoteConfig{URL: "http://moves.local", Timeout: Duration(3 * time.Second)}
	if diff := cmp.Diff(want, *cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEngineOptions(t *testing.T) {
	path := writeConfig(t, `{"engine": {"path": "stockfish", "workers": 1, "search_timeout": "5s", "options": {"Hash": "64", "Threads": "1"}}}`)

	cfg, err := Load([]string{"-config", path, "-engine-option", "Threads=4", "-engine-option", "Skill Level = 10"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"Hash": "64", "Threads": "4", "Skill Level": "10"}
	if diff := cmp.Diff(want, cfg.Engine.Options); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	if _, err := Load([]string{"-config", path, "-engine-option", "Threads"}); err == nil {
		t.Error("option without value accepted")
	}
}

func TestLoadInvalid(t *testing.T) {
	path := writeConfig(t, `{}`)

	tests := []struct {
		name string
		args []string
	}{
		{"port", []string{"-api-port", "0"}},
		{"pid lock without path", []string{"-pid-lock"}},
		{"sessions", []string{"-max-sessions", "0"}},
		{"engine path", []string{"-engine", ""}},
		{"workers", []string{"-engine-workers", "0"}},
		{"search timeout", []string{"-search-timeout", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(append([]string{"-config", path}, tt.args...))
			var invalid *InvalidConfig
			if !errors.As(err, &invalid) {
				t.Errorf("err = %v, want InvalidConfig", err)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.json")
	_, err := Load([]string{"-config", missing})
	var invalid *InvalidConfig
	if !errors.As(err, &invalid) {
		t.Errorf("err = %v, want InvalidConfig", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `{"engine": {"search_timeout": "soon"}}`)
	if _, err := Load([]string{"-config", path}); err == nil {
		t.Error("bad duration in file accepted")
	}

	ok := writeConfig(t, `{}`)
	if _, err := Load([]string{"-config", ok, "-remote-timeout", "later"}); err == nil {
		t.Error("bad duration flag accepted")
	}
}
