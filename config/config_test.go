package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func mapEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func TestDiscoverPathFrom_FirstMatchWins(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	projectConfig := filepath.Join(cwd, "ghcid-mcp.yaml")
	writeConfig(t, projectConfig, "feedback: {}")
	writeConfig(t, filepath.Join(home, ".ghcid-mcp", "config.yaml"), "feedback: {}")

	got, found, err := DiscoverPathFrom("", cwd, home)
	if err != nil {
		t.Fatalf("DiscoverPathFrom() error = %v", err)
	}
	if !found {
		t.Fatal("found = false, want true")
	}
	if got != projectConfig {
		t.Fatalf("path = %q, want %q", got, projectConfig)
	}
}

func TestDiscoverPathFrom_HomeFallbackAndNone(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	if _, found, err := DiscoverPathFrom("", cwd, home); err != nil || found {
		t.Fatalf("DiscoverPathFrom() = found %v, err %v; want nothing", found, err)
	}

	homeConfig := filepath.Join(home, ".ghcid-mcp", "config.yaml")
	writeConfig(t, homeConfig, "feedback: {}")
	got, found, err := DiscoverPathFrom("", cwd, home)
	if err != nil || !found || got != homeConfig {
		t.Fatalf("DiscoverPathFrom() = %q, %v, %v; want %q", got, found, err, homeConfig)
	}
}

func TestDiscoverPathFrom_ExplicitNotFound(t *testing.T) {
	_, found, err := DiscoverPathFrom("/tmp/does-not-exist-ghcid.yaml", t.TempDir(), t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
	if found {
		t.Fatal("found = true, want false")
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	home := t.TempDir()
	loaded, err := LoadFrom("", t.TempDir(), home, noEnv)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	cfg := loaded.Config
	if loaded.Path != "" {
		t.Fatalf("Path = %q, want empty", loaded.Path)
	}
	if cfg.Feedback.Command != "ghcid" || strings.Join(cfg.Feedback.Args, "|") != "-c|cabal repl" {
		t.Fatalf("feedback = %+v", cfg.Feedback)
	}
	if cfg.Feedback.DefaultTimeoutSeconds != 300 {
		t.Fatalf("default timeout = %d, want 300", cfg.Feedback.DefaultTimeoutSeconds)
	}
	if cfg.Locator.ManifestSuffix != ".cabal" || cfg.Locator.CollapseErrors {
		t.Fatalf("locator = %+v", cfg.Locator)
	}
	if want := filepath.Join(home, ".ghcid-mcp", "logs"); cfg.Logging.Dir != want {
		t.Fatalf("log dir = %q, want %q", cfg.Logging.Dir, want)
	}
	if want := filepath.Join(home, ".ghcid-mcp", "history.db"); cfg.History.Path != want {
		t.Fatalf("history path = %q, want %q", cfg.History.Path, want)
	}
	if cfg.History.Retention != 720*time.Hour || cfg.History.PruneSchedule != "@hourly" {
		t.Fatalf("history = %+v", cfg.History)
	}
}

func TestLoadFrom_FileThenEnv(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()
	writeConfig(t, filepath.Join(cwd, "ghcid-mcp.yaml"), `
feedback:
  command: /opt/bin/ghcid
  args: ["-c", "stack repl"]
  env:
    GHC_FLAGS: "-Wall"
  default_timeout_seconds: 60
  kill_grace: 500ms
locator:
  collapse_errors: true
logging:
  level: warn
  dir: ~/logs
history:
  retention: 48h
  prune_schedule: "0 3 * * *"
telemetry:
  otlp_endpoint: http://collector:4318/v1/traces
`)

	loaded, err := LoadFrom("", cwd, home, mapEnv(map[string]string{
		EnvDefaultTimeout: "90",
		EnvHistoryPath:    "~/custom.db",
		EnvLogLevel:       "  ",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	cfg := loaded.Config
	if loaded.Path != filepath.Join(cwd, "ghcid-mcp.yaml") {
		t.Fatalf("Path = %q", loaded.Path)
	}
	if cfg.Feedback.Command != "/opt/bin/ghcid" || cfg.Feedback.Args[1] != "stack repl" {
		t.Fatalf("feedback = %+v", cfg.Feedback)
	}
	if cfg.Feedback.Env["GHC_FLAGS"] != "-Wall" {
		t.Fatalf("feedback env = %v", cfg.Feedback.Env)
	}
	if cfg.Feedback.KillGrace != 500*time.Millisecond {
		t.Fatalf("kill grace = %s, want 500ms", cfg.Feedback.KillGrace)
	}
	if cfg.Feedback.DefaultTimeoutSeconds != 90 {
		t.Fatalf("default timeout = %d, want env override 90", cfg.Feedback.DefaultTimeoutSeconds)
	}
	if !cfg.Locator.CollapseErrors || cfg.Locator.ManifestSuffix != ".cabal" {
		t.Fatalf("locator = %+v", cfg.Locator)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("log level = %q, blank env must not override", cfg.Logging.Level)
	}
	if cfg.Logging.Dir != filepath.Join(home, "logs") {
		t.Fatalf("log dir = %q", cfg.Logging.Dir)
	}
	if cfg.History.Path != filepath.Join(home, "custom.db") || cfg.History.Retention != 48*time.Hour {
		t.Fatalf("history = %+v", cfg.History)
	}
	if cfg.Telemetry.OTLPEndpoint != "http://collector:4318/v1/traces" || cfg.Telemetry.ServiceName != "ghcid-mcp" {
		t.Fatalf("telemetry = %+v", cfg.Telemetry)
	}
}

func TestLoadFrom_DotEnv(t *testing.T) {
	cwd := t.TempDir()
	writeConfig(t, filepath.Join(cwd, ".env"), "GHCID_MCP_TEST_DOTENV_COMMAND=from-dotenv\n")
	t.Cleanup(func() { _ = os.Unsetenv("GHCID_MCP_TEST_DOTENV_COMMAND") })

	writeConfig(t, filepath.Join(cwd, "ghcid-mcp.yaml"), `
feedback:
  command: ${GHCID_MCP_TEST_DOTENV_COMMAND}
`)

	loaded, err := LoadFrom("", cwd, t.TempDir(), noEnv)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if loaded.Config.Feedback.Command != "from-dotenv" {
		t.Fatalf("command = %q, want from-dotenv", loaded.Config.Feedback.Command)
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		cwd := t.TempDir()
		writeConfig(t, filepath.Join(cwd, "ghcid-mcp.yaml"), "feedback: [")
		if _, err := LoadFrom("", cwd, t.TempDir(), noEnv); err == nil {
			t.Fatal("expected parse error")
		}
	})
	t.Run("bad env timeout", func(t *testing.T) {
		_, err := LoadFrom("", t.TempDir(), t.TempDir(), mapEnv(map[string]string{EnvDefaultTimeout: "soon"}))
		if err == nil || !strings.Contains(err.Error(), EnvDefaultTimeout) {
			t.Fatalf("err = %v, want %s error", err, EnvDefaultTimeout)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "empty command", mutate: func(c *Config) { c.Feedback.Command = " " }, want: "feedback.command"},
		{name: "zero timeout", mutate: func(c *Config) { c.Feedback.DefaultTimeoutSeconds = 0 }, want: "default_timeout_seconds"},
		{name: "negative grace", mutate: func(c *Config) { c.Feedback.KillGrace = -time.Second }, want: "kill_grace"},
		{name: "empty suffix", mutate: func(c *Config) { c.Locator.ManifestSuffix = "" }, want: "manifest_suffix"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
		{name: "bad schedule", mutate: func(c *Config) { c.History.PruneSchedule = "every day" }, want: "prune_schedule"},
		{name: "zero retention", mutate: func(c *Config) { c.History.Retention = 0 }, want: "retention"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}

	t.Run("history disabled skips history checks", func(t *testing.T) {
		cfg := Default(t.TempDir())
		cfg.History.Enabled = false
		cfg.History.PruneSchedule = "bogus"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
	})
}
