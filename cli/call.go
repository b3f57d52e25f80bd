package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/petal-labs/ghcid-mcp/server"
)

const callClientName = "ghcid-mcp-call"

// NewCallCmd creates the "call" subcommand, a smoke client that starts a
// server over stdio, lists its tools and calls one.
func NewCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call [tool]",
		Short: "Start a ghcid-mcp server over stdio and call one of its tools",
		Long: "Start a ghcid-mcp server over stdio, initialize a session and list its tools. " +
			"With a tool name, call it with the --arg values and print the result text.",
		Args: cobra.MaximumNArgs(1),
		RunE: runCall,
	}
	cmd.Flags().StringArray("arg", nil, "Tool argument KEY=VALUE (repeatable)")
	cmd.Flags().String("args-json", "", "Tool arguments as a JSON object")
	cmd.Flags().String("server-command", "", "Server executable (default: this binary)")
	cmd.Flags().StringArray("server-arg", nil, "Server argument (repeatable, default: serve)")
	cmd.Flags().Duration("call-timeout", 10*time.Minute, "Overall session timeout")
	cmd.Flags().Bool("server-logs", false, "Forward server stderr")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	arguments, err := parseCallArguments(cmd)
	if err != nil {
		return exitError(exitUsage, "parsing arguments: %v", err)
	}

	command, serverArgs, err := resolveServerCommand(cmd)
	if err != nil {
		return exitError(exitUsage, "%v", err)
	}
	callTimeout, _ := cmd.Flags().GetDuration("call-timeout")
	forwardLogs, _ := cmd.Flags().GetBool("server-logs")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}

	stdio := transport.NewStdio(command, nil, serverArgs...)
	client := mcpclient.NewClient(stdio)
	if err := client.Start(ctx); err != nil {
		return exitError(exitRuntime, "starting server: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	// The server logs to stderr; an undrained pipe would stall it.
	logSink := io.Discard
	if forwardLogs {
		logSink = cmd.ErrOrStderr()
	}
	go func() {
		_, _ = io.Copy(logSink, stdio.Stderr())
	}()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: callClientName, Version: Version}
	info, err := client.Initialize(ctx, initReq)
	if err != nil {
		return exitError(exitRuntime, "initializing session: %v", err)
	}
	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "Connected to %s %s (protocol %s)\n", info.ServerInfo.Name, info.ServerInfo.Version, info.ProtocolVersion)

	tools, err := client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return exitError(exitRuntime, "listing tools: %v", err)
	}
	for _, tool := range tools.Tools {
		fmt.Fprintf(errOut, "  %s: %s\n", tool.Name, tool.Description)
	}

	if len(args) == 0 {
		return nil
	}
	name := strings.TrimSpace(args[0])
	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = name
	callReq.Params.Arguments = arguments
	result, err := client.CallTool(ctx, callReq)
	if err != nil {
		return exitError(exitRuntime, "calling %s: %v", name, err)
	}
	text := resultText(result)
	fmt.Fprintln(cmd.OutOrStdout(), text)
	if result.IsError {
		return exitError(exitProbeFailure, "tool %s reported an error", name)
	}
	return callOutcome(name, text)
}

// callOutcome maps a decoded probe payload onto the exit code the one-shot
// check commands use.
func callOutcome(tool, text string) error {
	switch tool {
	case server.ToolCheckManifest:
		var resp server.ManifestResponse
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			return exitError(exitRuntime, "decoding %s result: %v", tool, err)
		}
		if !resp.Found {
			return exitError(exitProbeFailure, "%s", resp.Message)
		}
	case server.ToolCheckCompilation:
		var resp server.CompilationResponse
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			return exitError(exitRuntime, "decoding %s result: %v", tool, err)
		}
		if !resp.Success {
			return exitError(exitProbeFailure, "%s", resp.Message)
		}
	}
	return nil
}

func resultText(result *mcp.CallToolResult) string {
	parts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func resolveServerCommand(cmd *cobra.Command) (string, []string, error) {
	command, _ := cmd.Flags().GetString("server-command")
	serverArgs, _ := cmd.Flags().GetStringArray("server-arg")

	if strings.TrimSpace(command) == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", nil, fmt.Errorf("resolving server executable: %w", err)
		}
		command = exe
	}
	if len(serverArgs) == 0 {
		serverArgs = []string{"serve"}
		if configPath, _ := cmd.Flags().GetString("config"); strings.TrimSpace(configPath) != "" {
			serverArgs = append(serverArgs, "--config", configPath)
		}
	}
	return command, serverArgs, nil
}

func parseCallArguments(cmd *cobra.Command) (map[string]any, error) {
	arguments := map[string]any{}
	rawPairs, _ := cmd.Flags().GetStringArray("arg")
	for _, pair := range rawPairs {
		key, value, err := parseKeyValue(pair)
		if err != nil {
			return nil, err
		}
		arguments[key] = parsePrimitiveValue(key, value)
	}

	argsJSON, _ := cmd.Flags().GetString("args-json")
	if strings.TrimSpace(argsJSON) == "" {
		return arguments, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &obj); err != nil {
		return nil, err
	}
	for key, value := range obj {
		arguments[key] = value
	}
	return arguments, nil
}

func parseKeyValue(value string) (string, string, error) {
	parts := strings.SplitN(value, "=", 2)
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return "", "", errors.New("key is required")
	}
	if len(parts) == 1 {
		return "", "", fmt.Errorf("%s: value is required", key)
	}
	return key, parts[1], nil
}

// parsePrimitiveValue turns numeric and boolean text into JSON values. Path
// arguments always stay strings.
func parsePrimitiveValue(key, value string) any {
	if key == "path" {
		return value
	}
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
