package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/petal-labs/ghcid-mcp/probe"
)

const (
	// ToolCheckManifest is the registered name of the manifest lookup tool.
	ToolCheckManifest = "check-manifest"
	// ToolCheckCompilation is the registered name of the compilation tool.
	ToolCheckCompilation = "check-compilation"
)

// ManifestResponse is the payload of check-manifest.
type ManifestResponse struct {
	Found        bool    `json:"found"`
	Message      string  `json:"message"`
	ManifestFile *string `json:"manifestFile"`
}

// CompilationResponse is the payload of check-compilation.
type CompilationResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Output   string `json:"output"`
	Errors   string `json:"errors"`
	ExitCode *int   `json:"exitCode"`
}

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool(ToolCheckManifest,
			mcp.WithDescription("Check if a directory contains a .cabal file"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Path to the directory to check"),
			),
		),
		s.handleCheckManifest,
	)
	s.mcp.AddTool(
		mcp.NewTool(ToolCheckCompilation,
			mcp.WithDescription("Run ghcid against a cabal project and report whether it compiles"),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Path to the directory containing the .cabal project"),
			),
			mcp.WithNumber("timeoutSeconds",
				mcp.Description(fmt.Sprintf("Timeout in whole seconds (default %d)", s.prober.DefaultTimeout())),
			),
		),
		s.handleCheckCompilation,
	)
}

// CheckManifest runs the locator and folds any failure into the response.
func (s *Server) CheckManifest(ctx context.Context, path string) ManifestResponse {
	result, err := s.locator.Locate(ctx, path)
	if err != nil {
		return ManifestResponse{Found: false, Message: err.Error()}
	}
	manifest := result.ManifestPath
	return ManifestResponse{
		Found:        result.Found,
		Message:      result.Message,
		ManifestFile: &manifest,
	}
}

// CheckCompilation runs the prober and folds any failure into the response.
// A non-positive timeout selects the configured default.
func (s *Server) CheckCompilation(ctx context.Context, path string, timeoutSeconds int) CompilationResponse {
	result, err := s.prober.Check(ctx, path, timeoutSeconds)
	if err != nil {
		s.logger.Info("compilation check failed", "path", path, "error_code", probe.ErrorCode(err))
		return CompilationResponse{Success: false, Message: err.Error()}
	}
	return CompilationResponse{
		Success:  result.Success,
		Message:  result.Message,
		Output:   result.Stdout,
		Errors:   result.Stderr,
		ExitCode: result.ExitCode,
	}
}

func (s *Server) handleCheckManifest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, err := requiredString(args, "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.logger.Debug("tool call", "tool", ToolCheckManifest, "path", path)
	resp := s.CheckManifest(ctx, path)
	return mcp.NewToolResultText(EncodeResponse(resp, resp.Message)), nil
}

func (s *Server) handleCheckCompilation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, err := requiredString(args, "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	timeout, err := optionalTimeout(args, "timeoutSeconds", s.prober.DefaultTimeout())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.logger.Debug("tool call", "tool", ToolCheckCompilation, "path", path, "timeout_seconds", timeout)
	resp := s.CheckCompilation(ctx, path, timeout)
	return mcp.NewToolResultText(EncodeResponse(resp, resp.Message)), nil
}

// EncodeResponse renders a payload as JSON text, or returns fallback when
// the payload cannot be encoded.
func EncodeResponse(payload any, fallback string) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fallback
	}
	return string(data)
}

func requiredString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return value, nil
}

func optionalTimeout(args map[string]any, key string, fallback int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fallback, nil
	}

	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer", key)
		}
		value = parsed
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer", key)
		}
		value = float64(parsed)
	default:
		return 0, fmt.Errorf("argument %q must be an integer", key)
	}

	if value != math.Trunc(value) {
		return 0, fmt.Errorf("argument %q must be an integer", key)
	}
	if value < 1 || value > math.MaxInt32 {
		return 0, fmt.Errorf("argument %q must be a positive number of seconds", key)
	}
	return int(value), nil
}
