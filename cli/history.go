package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pace-labs/wodflow/bus"
	"github.com/pace-labs/wodflow/runtime"
)

// NewHistoryCmd creates the "history" subcommand.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs from a record store",
		Long: "List the runs archived in a record store written by run --record, " +
			"or with --run the full notification journal of a single run.",
		Args: cobra.NoArgs,
		RunE: runHistory,
	}

	cmd.Flags().String("db", "", "SQLite path of the record store (required)")
	cmd.Flags().String("run", "", "Show one run's journal instead of the run list")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, _ := cmd.Flags().GetString("db")
	if db == "" {
		return exitError(exitUsage, "--db is required")
	}
	runID, _ := cmd.Flags().GetString("run")
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitUsage, "unknown format %q (want text or json)", format)
	}

	store, err := bus.NewSQLiteStore(bus.SQLiteStoreConfig{DSN: db})
	if err != nil {
		return exitError(exitRuntime, "opening record store: %v", err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if runID != "" {
		return printRunJournal(cmd.Context(), out, store, runID, format)
	}
	return printRunList(cmd.Context(), out, store, format)
}

// runView is the JSON shape of one run summary.
type runView struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Count    int       `json:"count"`
}

func printRunList(ctx context.Context, w io.Writer, store bus.NotificationStore, format string) error {
	runs, err := store.Runs(ctx)
	if err != nil {
		return exitError(exitRuntime, "listing runs: %v", err)
	}

	if format == "json" {
		views := make([]runView, 0, len(runs))
		for _, r := range runs {
			views = append(views, runView{
				RunID:    r.RunID,
				Started:  r.Started,
				Finished: r.Finished,
				Count:    r.Count,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %-8s  %d notifications\n",
			r.RunID,
			r.Started.UTC().Format(time.RFC3339),
			r.Finished.Sub(r.Started).Round(time.Second),
			r.Count)
	}
	return nil
}

// notificationView is the JSON shape of one journal entry.
type notificationView struct {
	Seq       uint64         `json:"seq"`
	Kind      string         `json:"kind"`
	Block     string         `json:"block,omitempty"`
	Statement int            `json:"statement"`
	Label     string         `json:"label,omitempty"`
	Depth     int            `json:"depth"`
	Time      time.Time      `json:"time"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func printRunJournal(ctx context.Context, w io.Writer, store bus.NotificationStore, runID, format string) error {
	ns, err := store.List(ctx, runID, 0, 0)
	if err != nil {
		return exitError(exitRuntime, "listing run %s: %v", runID, err)
	}
	if len(ns) == 0 {
		return exitError(exitRuntime, "run %s not found", runID)
	}

	if format == "json" {
		views := make([]notificationView, 0, len(ns))
		for _, n := range ns {
			views = append(views, notificationView{
				Seq:       n.Seq,
				Kind:      string(n.Kind),
				Block:     n.Block.String(),
				Statement: int(n.Statement),
				Label:     n.Label,
				Depth:     n.Depth,
				Time:      n.Time,
				Payload:   n.Payload,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	for _, n := range ns {
		fmt.Fprintln(w, formatJournalLine(n))
	}
	return nil
}

func formatJournalLine(n runtime.Notification) string {
	line := fmt.Sprintf("%6d  %s  %-15s", n.Seq, n.Time.UTC().Format(time.RFC3339), n.Kind)
	if n.Label != "" {
		line += "  " + n.Label
	}
	return line
}
