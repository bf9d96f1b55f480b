package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config       string
	Port         string `toml:"server.port" env:"SERVER_PORT"`
	LoggingLevel string `toml:"logging.level" env:"LOGGING_LEVEL"`
	MaxLogLines  int    `toml:"logging.max_lines" env:"LOGGING_MAX_LINES"`
	JSONLogs     bool   `toml:"logging.json" env:"LOGGING_JSON"`
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = ":9999"

[logging]
level = "debug"
max_lines = 500
json = true
`)

	opts := testOptions{Config: path, Port: ":9820", LoggingLevel: "info"}
	if err := LoadConfig(&opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != ":9999" {
		t.Errorf("expected port :9999, got %q", opts.Port)
	}
	if opts.LoggingLevel != "debug" {
		t.Errorf("expected level debug, got %q", opts.LoggingLevel)
	}
	if opts.MaxLogLines != 500 {
		t.Errorf("expected max_lines 500, got %d", opts.MaxLogLines)
	}
	if !opts.JSONLogs {
		t.Error("expected json = true")
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	path := writeConfigFile(t, `
[logging]
level = "debug"
`)
	t.Setenv("PROCWARDEN_LOGGING_LEVEL", "error")

	opts := testOptions{Config: path}
	if err := LoadConfig(&opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.LoggingLevel != "error" {
		t.Errorf("env should override TOML, got %q", opts.LoggingLevel)
	}
}

func TestLoadConfigExplicitFlagWins(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = ":9999"

[logging]
level = "debug"
`)
	t.Setenv("PROCWARDEN_SERVER_PORT", ":8888")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("port", ":9820", "")
	cmd.Flags().String("logging-level", "info", "")
	if err := cmd.Flags().Set("port", ":7777"); err != nil {
		t.Fatal(err)
	}

	opts := testOptions{Config: path, Port: ":7777", LoggingLevel: "info"}
	if err := LoadConfig(&opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// Neither the TOML value nor the env var may replace an explicit flag.
	if opts.Port != ":7777" {
		t.Errorf("explicit flag should win, got %q", opts.Port)
	}
	// Fields without an explicit flag still pick up the file value.
	if opts.LoggingLevel != "debug" {
		t.Errorf("untouched field should load from TOML, got %q", opts.LoggingLevel)
	}
}

func TestLoadConfigMissingFileIsNotAnError(t *testing.T) {
	opts := testOptions{Config: "/nonexistent/config.toml", Port: ":9820"}
	if err := LoadConfig(&opts, nil); err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if opts.Port != ":9820" {
		t.Errorf("defaults should survive, got %q", opts.Port)
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":         "port",
		"LoggingLevel": "logging-level",
		"JSONLogs":     "j-s-o-n-logs",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}
