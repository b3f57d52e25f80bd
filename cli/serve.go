package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petal-labs/ghcid-mcp/history"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the probe tools over MCP on stdin/stdout",
		Long: "Serve check-manifest and check-compilation as MCP tools. " +
			"Protocol frames use stdout; logs go to stderr and the daily log file.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.history != nil {
		retention, err := history.NewRetentionScheduler(history.RetentionConfig{
			Store:     a.history,
			Retention: a.cfg.History.Retention,
			Schedule:  a.cfg.History.PruneSchedule,
			Logger:    a.logger.Logger,
		})
		if err != nil {
			return exitError(exitUsage, "creating history retention: %v", err)
		}
		if err := retention.Start(ctx); err != nil {
			return exitError(exitRuntime, "starting history retention: %v", err)
		}
		defer func() {
			_ = retention.Stop(context.Background())
		}()
	}

	a.logger.Info("starting ghcid-mcp server",
		"version", Version,
		"command", a.cfg.Feedback.Command,
		"default_timeout_seconds", a.prober.DefaultTimeout(),
	)
	if err := a.server.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		return exitError(exitRuntime, "server error: %v", err)
	}
	a.logger.Info("ghcid-mcp server stopped")
	return nil
}
