package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewCheckManifestCmd creates the "check-manifest" subcommand.
func NewCheckManifestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-manifest <path>",
		Short: "Report whether a directory contains a .cabal file",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheckManifest,
	}
}

func runCheckManifest(cmd *cobra.Command, args []string) error {
	path := strings.TrimSpace(args[0])
	if path == "" {
		return exitError(exitUsage, "path is required")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	resp := a.server.CheckManifest(cmd.Context(), path)
	if err := printJSON(cmd, resp); err != nil {
		return exitError(exitRuntime, "writing result: %v", err)
	}
	if !resp.Found {
		return exitError(exitProbeFailure, "%s", resp.Message)
	}
	return nil
}

// NewCheckCompilationCmd creates the "check-compilation" subcommand.
func NewCheckCompilationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-compilation <path>",
		Short: "Load a cabal project with ghcid once and report whether it compiles",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheckCompilation,
	}
	cmd.Flags().Int("timeout", 0, "Timeout in seconds (default: feedback.default_timeout_seconds)")
	return cmd
}

func runCheckCompilation(cmd *cobra.Command, args []string) error {
	path := strings.TrimSpace(args[0])
	if path == "" {
		return exitError(exitUsage, "path is required")
	}
	timeout, _ := cmd.Flags().GetInt("timeout")
	if cmd.Flags().Changed("timeout") && timeout < 1 {
		return exitError(exitUsage, "--timeout must be a positive number of seconds, got %d", timeout)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	resp := a.server.CheckCompilation(cmd.Context(), path, timeout)
	if err := printJSON(cmd, resp); err != nil {
		return exitError(exitRuntime, "writing result: %v", err)
	}
	if !resp.Success {
		return exitError(exitProbeFailure, "%s", resp.Message)
	}
	return nil
}
