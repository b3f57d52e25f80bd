package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/ghcid-mcp/history"
)

// NewHistoryCmd creates the "history" subcommand.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded probe runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().String("path", "", "Only show runs for this project path")
	cmd.Flags().String("kind", "", "Only show runs of this kind: manifest | compile")
	cmd.Flags().Bool("json", false, "Print runs as JSON")
	return cmd
}

type historyEntry struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Path           string `json:"path"`
	ManifestPath   string `json:"manifestPath,omitempty"`
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	ErrorCode      string `json:"errorCode,omitempty"`
	ExitCode       *int   `json:"exitCode"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
	DurationMS     int64  `json:"durationMs"`
	StartedAt      string `json:"startedAt"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	path, _ := cmd.Flags().GetString("path")
	kindFlag, _ := cmd.Flags().GetString("kind")
	asJSON, _ := cmd.Flags().GetBool("json")

	if limit < 0 {
		return exitError(exitUsage, "--limit must not be negative")
	}
	kind, err := parseHistoryKind(kindFlag)
	if err != nil {
		return exitError(exitUsage, "%v", err)
	}

	loaded, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !loaded.Config.History.Enabled {
		return exitError(exitUsage, "probe history is disabled (history.enabled: false)")
	}

	store, err := history.NewSQLiteStore(history.SQLiteStoreConfig{DSN: loaded.Config.History.Path})
	if err != nil {
		return exitError(exitRuntime, "opening history: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	records, err := store.List(cmd.Context(), history.Filter{
		Path:  path,
		Kind:  kind,
		Limit: limit,
	})
	if err != nil {
		return exitError(exitRuntime, "listing history: %v", err)
	}

	if asJSON {
		entries := make([]historyEntry, 0, len(records))
		for _, r := range records {
			entries = append(entries, toHistoryEntry(r))
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding history: %v", err)
		}
		_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
		return nil
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No probe runs recorded.")
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "STARTED\tKIND\tRESULT\tEXIT\tDURATION\tPATH")
	for _, r := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Kind,
			displayOutcome(r),
			displayExitCode(r.ExitCode),
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
			r.Path,
		)
	}
	return writer.Flush()
}

func parseHistoryKind(value string) (history.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return "", nil
	case string(history.KindManifest):
		return history.KindManifest, nil
	case string(history.KindCompile), "compilation":
		return history.KindCompile, nil
	default:
		return "", fmt.Errorf("unsupported --kind %q (want manifest or compile)", value)
	}
}

func toHistoryEntry(r history.Record) historyEntry {
	return historyEntry{
		ID:             r.ID,
		Kind:           string(r.Kind),
		Path:           r.Path,
		ManifestPath:   r.ManifestPath,
		Success:        r.Success,
		Message:        r.Message,
		ErrorCode:      r.ErrorCode,
		ExitCode:       r.ExitCode,
		TimeoutSeconds: r.TimeoutSeconds,
		DurationMS:     r.DurationMS,
		StartedAt:      r.StartedAt.UTC().Format(time.RFC3339Nano),
	}
}

func displayOutcome(r history.Record) string {
	switch {
	case r.ErrorCode != "":
		return r.ErrorCode
	case r.Success:
		return "ok"
	default:
		return "failed"
	}
}

func displayExitCode(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}
