package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/goodtune/playtime/internal/storage"
	"github.com/goodtune/playtime/internal/usage"
	"github.com/spf13/cobra"
)

var (
	leaderboardUser uint64
	leaderboardTop  int
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard [flags] LABEL",
	Short: "Show who has spent the most time in an activity",
	Long:  `Show the overall time recorded for an activity and the subjects who spent the most time in it.`,
	Example: `  playtime leaderboard "Texas Hold'em"
  playtime leaderboard --top 3 Chess
  playtime leaderboard --user 42 Chess`,
	Args: cobra.ExactArgs(1),
	RunE: runLeaderboard,
}

func init() {
	leaderboardCmd.Flags().Uint64Var(&leaderboardUser, "user", 0, "Show a single subject's time instead of the ranking")
	leaderboardCmd.Flags().IntVar(&leaderboardTop, "top", 10, "Number of subjects to rank (0 for all)")
	addServerFlag(leaderboardCmd)
	rootCmd.AddCommand(leaderboardCmd)
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	label := args[0]

	ctx := context.Background()

	reader, closeReader, err := openReader(ctx)
	if err != nil {
		return err
	}
	defer closeReader()

	if leaderboardUser != 0 {
		minutes, found, err := reader.UserMinutes(ctx, label, leaderboardUser)
		if errors.Is(err, storage.ErrNotFound) {
			printNoRecords(os.Stdout, label)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read usage record: %w", err)
		}
		printUserMinutes(os.Stdout, label, leaderboardUser, minutes, found)
		return nil
	}

	record, err := reader.Record(ctx, label)
	if errors.Is(err, storage.ErrNotFound) {
		printNoRecords(os.Stdout, label)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read usage record: %w", err)
	}

	entries, err := reader.Leaderboard(ctx, label, leaderboardTop)
	if err != nil {
		return fmt.Errorf("failed to rank subjects: %w", err)
	}

	printLeaderboard(os.Stdout, record, entries)
	return nil
}

func printNoRecords(w io.Writer, label string) {
	red := color.New(color.FgRed)
	_, _ = red.Fprintf(w, "Activity `%s` has no available records.\n", label)
}

func printUserMinutes(w io.Writer, label string, subject uint64, minutes int64, found bool) {
	cyan := color.New(color.FgCyan, color.Bold)
	if !found {
		_, _ = fmt.Fprintf(w, "Subject %d has no time recorded for %s.\n", subject, label)
		return
	}
	_, _ = fmt.Fprintf(w, "Subject %d has spent ", subject)
	_, _ = cyan.Fprint(w, usage.FormatMinutes(minutes, false))
	_, _ = fmt.Fprintf(w, " in %s.\n", label)
}

func printLeaderboard(w io.Writer, record *storage.UsageRecord, entries []usage.LeaderboardEntry) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	_, _ = fmt.Fprintln(w)
	_, _ = cyan.Fprintf(w, "%s\n", record.Label)
	_, _ = fmt.Fprintf(w, "Overall: %s across %d subject(s)\n", usage.FormatMinutes(record.OverallMinutes, false), len(record.PerUserMinutes))
	_, _ = fmt.Fprintln(w)

	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No subjects ranked yet.")
		return
	}

	for _, e := range entries {
		line := fmt.Sprintf("%3d. %-20d %s\n", e.Rank, e.SubjectID, usage.FormatMinutes(e.Minutes, false))
		if e.Rank == 1 {
			_, _ = green.Fprint(w, line)
			continue
		}
		_, _ = fmt.Fprint(w, line)
	}
	_, _ = fmt.Fprintln(w)
}
