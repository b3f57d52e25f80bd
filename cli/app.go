package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/ghcid-mcp/config"
	"github.com/petal-labs/ghcid-mcp/history"
	"github.com/petal-labs/ghcid-mcp/logging"
	petalotel "github.com/petal-labs/ghcid-mcp/otel"
	"github.com/petal-labs/ghcid-mcp/probe"
	"github.com/petal-labs/ghcid-mcp/server"
)

// Version is reported to MCP clients; main sets it from its ldflag.
var Version = "dev"

const shutdownTimeout = 5 * time.Second

// app holds everything a probe-running command needs.
type app struct {
	cfg     config.Config
	logger  *logging.Logger
	prober  *probe.Prober
	server  *server.Server
	history *history.SQLiteStore

	closers []func(context.Context) error
}

// loadConfig resolves configuration from the --config flag.
func loadConfig(cmd *cobra.Command) (config.Loaded, error) {
	explicitPath, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(explicitPath)
	if err != nil {
		return config.Loaded{}, exitError(exitUsage, "loading config: %v", err)
	}
	return loaded, nil
}

// newLogger builds the process logger from config and --verbose/--quiet.
func newLogger(cmd *cobra.Command, cfg config.Config) (*logging.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	dir := ""
	if cfg.Logging.File {
		dir = cfg.Logging.Dir
	}
	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Verbose: verbose,
		Quiet:   quiet,
		Dir:     dir,
		Stderr:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, exitError(exitUsage, "configuring logging: %v", err)
	}
	return logger, nil
}

// newApp wires config, logging, telemetry, history and the probe into one
// bundle. Callers must Close it.
func newApp(cmd *cobra.Command) (*app, error) {
	loaded, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg := loaded.Config

	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func(context.Context) error { return logger.Close() })
	if loaded.Path != "" {
		logger.Debug("loaded config", "path", loaded.Path)
	}

	shutdownTelemetry, err := petalotel.Setup(cmd.Context(), petalotel.TelemetryConfig{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		a.Close()
		return nil, exitError(exitRuntime, "initializing telemetry: %v", err)
	}
	a.closers = append(a.closers, func(ctx context.Context) error { return shutdownTelemetry(ctx) })

	probeObserver, err := petalotel.InstallProbeObserver()
	if err != nil {
		a.Close()
		return nil, exitError(exitRuntime, "initializing probe observability: %v", err)
	}
	observers := probe.MultiObserver{probeObserver}

	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(history.SQLiteStoreConfig{DSN: cfg.History.Path})
		if err != nil {
			logger.Warn("probe history disabled", "path", cfg.History.Path, "error", err)
		} else {
			a.history = store
			a.closers = append(a.closers, func(context.Context) error { return store.Close() })
			observers = append(observers, history.NewRecorder(store, logger.Logger))
		}
	}
	probe.SetObserver(observers)
	a.closers = append(a.closers, func(context.Context) error {
		probe.SetObserver(nil)
		return nil
	})

	prober, err := probe.NewProber(probe.ProberConfig{
		Command:               cfg.Feedback.Command,
		Args:                  cfg.Feedback.Args,
		Env:                   cfg.Feedback.Env,
		DefaultTimeoutSeconds: cfg.Feedback.DefaultTimeoutSeconds,
		KillGrace:             cfg.Feedback.KillGrace,
		CollapseLocatorErrors: cfg.Locator.CollapseErrors,
		Locator: probe.NewLocator(probe.LocatorConfig{
			Suffix: cfg.Locator.ManifestSuffix,
			Logger: logger.Logger,
		}),
		Logger: logger.Logger,
	})
	if err != nil {
		a.Close()
		return nil, exitError(exitUsage, "configuring prober: %v", err)
	}
	a.prober = prober

	srv, err := server.NewServer(server.ServerConfig{
		Prober:  prober,
		Version: Version,
		Logger:  logger.Logger,
	})
	if err != nil {
		a.Close()
		return nil, exitError(exitRuntime, "creating mcp server: %v", err)
	}
	a.server = srv
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.logger != nil {
			a.logger.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}

func printJSON(cmd *cobra.Command, payload any) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), server.EncodeResponse(payload, ""))
	return err
}
