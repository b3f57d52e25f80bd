// Package config loads ghcid-mcp settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/petal-labs/ghcid-mcp/history"
	"github.com/petal-labs/ghcid-mcp/logging"
	"github.com/petal-labs/ghcid-mcp/probe"
)

const (
	projectConfigName = "ghcid-mcp.yaml"
	homeConfigName    = "config.yaml"
	homeDirName       = ".ghcid-mcp"
	envFileName       = ".env"
)

// Environment overrides, applied after the config file.
const (
	EnvCommand        = "GHCID_MCP_COMMAND"
	EnvDefaultTimeout = "GHCID_MCP_DEFAULT_TIMEOUT"
	EnvLogLevel       = "GHCID_MCP_LOG_LEVEL"
	EnvLogDir         = "GHCID_MCP_LOG_DIR"
	EnvHistoryPath    = "GHCID_MCP_HISTORY_PATH"
	EnvOTLPEndpoint   = "GHCID_MCP_OTLP_ENDPOINT"
)

// Config is the full ghcid-mcp configuration.
type Config struct {
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Locator   LocatorConfig   `yaml:"locator"`
	Logging   LoggingConfig   `yaml:"logging"`
	History   HistoryConfig   `yaml:"history"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// FeedbackConfig describes the compiler feedback process.
type FeedbackConfig struct {
	Command               string            `yaml:"command"`
	Args                  []string          `yaml:"args"`
	Env                   map[string]string `yaml:"env,omitempty"`
	DefaultTimeoutSeconds int               `yaml:"default_timeout_seconds"`
	KillGrace             time.Duration     `yaml:"kill_grace"`
}

// LocatorConfig tunes manifest discovery.
type LocatorConfig struct {
	ManifestSuffix string `yaml:"manifest_suffix"`
	CollapseErrors bool   `yaml:"collapse_errors"`
}

// LoggingConfig controls the log level and the daily log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	File  bool   `yaml:"file"`
}

// HistoryConfig controls the probe-run audit log.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the built-in configuration rooted at homeDir.
func Default(homeDir string) Config {
	base := filepath.Join(homeDir, homeDirName)
	return Config{
		Feedback: FeedbackConfig{
			Command:               probe.DefaultCommand,
			Args:                  append([]string(nil), probe.DefaultArgs...),
			DefaultTimeoutSeconds: probe.DefaultTimeoutSeconds,
			KillGrace:             probe.DefaultKillGrace,
		},
		Locator: LocatorConfig{
			ManifestSuffix: probe.DefaultManifestSuffix,
		},
		Logging: LoggingConfig{
			Level: "debug",
			Dir:   filepath.Join(base, "logs"),
			File:  true,
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          filepath.Join(base, "history.db"),
			Retention:     30 * 24 * time.Hour,
			PruneSchedule: history.DefaultPruneSchedule,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "ghcid-mcp",
		},
	}
}

// Loaded is a resolved configuration and the file it came from, if any.
type Loaded struct {
	Config Config
	Path   string
}

// Load resolves configuration for the current process: .env, then the
// discovered config file, then GHCID_MCP_* overrides.
func Load(explicitPath string) (Loaded, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Loaded{}, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Loaded{}, fmt.Errorf("resolve user home: %w", err)
	}
	return LoadFrom(explicitPath, cwd, homeDir, os.LookupEnv)
}

// LoadFrom is a testable variant of Load. lookupEnv is consulted after the
// .env file in cwd has been loaded into the process environment.
func LoadFrom(explicitPath, cwd, homeDir string, lookupEnv func(string) (string, bool)) (Loaded, error) {
	if err := loadDotEnv(filepath.Join(cwd, envFileName)); err != nil {
		return Loaded{}, err
	}

	cfg := Default(homeDir)
	path, found, err := DiscoverPathFrom(explicitPath, cwd, homeDir)
	if err != nil {
		return Loaded{}, err
	}
	if found {
		if err := readFile(path, &cfg); err != nil {
			return Loaded{}, err
		}
	}
	if err := applyEnv(&cfg, lookupEnv); err != nil {
		return Loaded{}, err
	}
	cfg.expandPaths(homeDir)

	if err := cfg.Validate(); err != nil {
		return Loaded{}, err
	}
	return Loaded{Config: cfg, Path: path}, nil
}

// DiscoverPathFrom resolves the config location with first-match semantics.
func DiscoverPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(expandHome(clean, homeDir)))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, homeDirName, homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			// An explicit path that does not exist is an error.
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Feedback.Command) == "" {
		return errors.New("config: feedback.command is required")
	}
	if c.Feedback.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("config: feedback.default_timeout_seconds must be positive, got %d", c.Feedback.DefaultTimeoutSeconds)
	}
	if c.Feedback.KillGrace < 0 {
		return fmt.Errorf("config: feedback.kill_grace must not be negative, got %s", c.Feedback.KillGrace)
	}
	if strings.TrimSpace(c.Locator.ManifestSuffix) == "" {
		return errors.New("config: locator.manifest_suffix is required")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: logging.level: %w", err)
	}
	if c.History.Enabled {
		if strings.TrimSpace(c.History.Path) == "" {
			return errors.New("config: history.path is required when history is enabled")
		}
		if c.History.Retention <= 0 {
			return fmt.Errorf("config: history.retention must be positive, got %s", c.History.Retention)
		}
		if _, err := history.ParseSchedule(c.History.PruneSchedule); err != nil {
			return fmt.Errorf("config: history.prune_schedule: %w", err)
		}
	}
	return nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func readFile(path string, cfg *Config) error {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %q: %w", path, err)
	}
	cfg.Feedback.Command = os.ExpandEnv(cfg.Feedback.Command)
	for i, arg := range cfg.Feedback.Args {
		cfg.Feedback.Args[i] = os.ExpandEnv(arg)
	}
	for key, value := range cfg.Feedback.Env {
		cfg.Feedback.Env[key] = os.ExpandEnv(value)
	}
	return nil
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	if lookupEnv == nil {
		return nil
	}
	get := func(key string) (string, bool) {
		value, ok := lookupEnv(key)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}

	if v, ok := get(EnvCommand); ok {
		cfg.Feedback.Command = v
	}
	if v, ok := get(EnvDefaultTimeout); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %q is not an integer", EnvDefaultTimeout, v)
		}
		cfg.Feedback.DefaultTimeoutSeconds = n
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := get(EnvLogDir); ok {
		cfg.Logging.Dir = v
	}
	if v, ok := get(EnvHistoryPath); ok {
		cfg.History.Path = v
	}
	if v, ok := get(EnvOTLPEndpoint); ok {
		cfg.Telemetry.OTLPEndpoint = v
	}
	return nil
}

func (c *Config) expandPaths(homeDir string) {
	c.Logging.Dir = expandHome(c.Logging.Dir, homeDir)
	c.History.Path = expandHome(c.History.Path, homeDir)
}

func expandHome(p, homeDir string) string {
	switch {
	case p == "~":
		return homeDir
	case strings.HasPrefix(p, "~/"):
		return filepath.Join(homeDir, p[2:])
	default:
		return p
	}
}
