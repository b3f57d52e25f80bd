package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/petal-labs/ghcid-mcp/probe"
)

const (
	// DefaultName identifies the server to MCP clients.
	DefaultName = "ghcid-mcp"

	defaultInstructions = "Checks Haskell cabal projects with ghcid. " +
		"Use check-manifest to confirm a directory holds a .cabal file, " +
		"then check-compilation to load it with `ghcid -c \"cabal repl\"` " +
		"and learn whether it type-checks."
)

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Prober       *probe.Prober
	Name         string
	Version      string
	Instructions string
	Logger       *slog.Logger
}

// Server exposes the probe operations as MCP tools.
type Server struct {
	prober  *probe.Prober
	locator *probe.Locator
	mcp     *mcpserver.MCPServer
	logger  *slog.Logger
}

// NewServer creates a Server and registers its tools.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Prober == nil {
		return nil, errors.New("server: prober is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = DefaultName
	}
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = "dev"
	}
	instructions := strings.TrimSpace(cfg.Instructions)
	if instructions == "" {
		instructions = defaultInstructions
	}

	s := &Server{
		prober:  cfg.Prober,
		locator: cfg.Prober.Locator(),
		logger:  logger,
	}
	s.mcp = mcpserver.NewMCPServer(
		name,
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(instructions),
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// ServeStdio speaks MCP over the given streams until ctx is done or in is
// closed. Nothing but protocol frames is written to out.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("mcp server listening on stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
