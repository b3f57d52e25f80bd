package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/ghcid-mcp/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "ghcid-mcp",
	Short: "ghcid build feedback for Haskell projects over MCP",
	Long: "ghcid-mcp is an MCP server that finds the .cabal manifest of a Haskell project " +
		"and runs ghcid -c \"cabal repl\" once to report whether it compiles.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to ghcid-mcp.yaml (default: ./ghcid-mcp.yaml, then ~/.ghcid-mcp/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "", false, "Suppress all log output except errors")

	cli.Version = version
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("ghcid-mcp version %s\n", version))

	rootCmd.AddCommand(cli.NewServeCmd())
	rootCmd.AddCommand(cli.NewCheckManifestCmd())
	rootCmd.AddCommand(cli.NewCheckCompilationCmd())
	rootCmd.AddCommand(cli.NewHistoryCmd())
	rootCmd.AddCommand(cli.NewCallCmd())
}
