package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/playtime/internal/storage"
	"github.com/goodtune/playtime/internal/usage"
	"github.com/spf13/cobra"
)

// historyDisplayLimit caps how many rows are printed; the rest are summarized.
const historyDisplayLimit = 20

var (
	historyUser  uint64
	historyDays  int
	historyLabel string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history --user ID [flags]",
	Short: "Show a subject's recorded sessions",
	Long:  `Show the sessions recorded for a subject, most recent first.`,
	Example: `  playtime history --user 42
  playtime history --user 42 --days 30 --label Chess`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Uint64Var(&historyUser, "user", 0, "Subject id (required)")
	historyCmd.Flags().IntVar(&historyDays, "days", 7, "Only show sessions from the last N days (0 for all)")
	historyCmd.Flags().StringVar(&historyLabel, "label", "", "Only show sessions for this activity")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Maximum number of sessions to read (0 for all)")
	_ = historyCmd.MarkFlagRequired("user")
	addServerFlag(historyCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyUser == 0 {
		return fmt.Errorf("--user must be a non-zero subject id")
	}

	reader, closeReader, err := openReader(context.Background())
	if err != nil {
		return err
	}
	defer closeReader()

	filter := storage.LogFilter{
		SubjectID: historyUser,
		Label:     historyLabel,
		Limit:     historyLimit,
	}
	if historyDays > 0 {
		since := time.Now().AddDate(0, 0, -historyDays)
		filter.Since = &since
	}

	entries, err := reader.History(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}

	printHistory(os.Stdout, historyUser, historyDays, entries)
	return nil
}

func printHistory(w io.Writer, subject uint64, days int, entries []storage.LogEntry) {
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow)

	window := "all time"
	if days > 0 {
		window = fmt.Sprintf("last %d day(s)", days)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = cyan.Fprintf(w, "History for subject %d (%s)\n", subject, window)
	_, _ = fmt.Fprintln(w)

	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No sessions recorded.")
		return
	}

	var total int64
	for _, e := range entries {
		total += e.MinutesAdded
	}

	shown := entries
	if len(shown) > historyDisplayLimit {
		shown = shown[:historyDisplayLimit]
	}
	for _, e := range shown {
		_, _ = fmt.Fprintf(w, "%s  %-30s %s\n",
			e.OccurredAt.Local().Format("2006-01-02 15:04"),
			e.Label,
			usage.FormatMinutes(e.MinutesAdded, true))
	}
	if more := len(entries) - len(shown); more > 0 {
		_, _ = yellow.Fprintf(w, "... and %d more\n", more)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Total: %s over %d session(s)\n", usage.FormatMinutes(total, false), len(entries))
}
