package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/goodtune/playtime/internal/activity"
	"github.com/goodtune/playtime/internal/config"
	"github.com/spf13/cobra"
)

var checkKind string

var checkCmd = &cobra.Command{
	Use:   "check [flags] NAME",
	Short: "Check whether an activity would be tracked",
	Long:  `Check whether Playtime would time an activity report with the given name and kind under the current configuration.`,
	Example: `  playtime check Chess
  playtime check --kind listening Spotify
  playtime -c config.yaml check --kind custom "Working late"`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkKind, "kind", "playing", "Activity kind (playing, streaming, listening, watching, custom, competing, or empty)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a := activity.Activity{Name: args[0], Kind: activity.ParseKind(checkKind)}
	printCheckResult(os.Stdout, newFilter(cfg.Tracking), cfg.Tracking, a)
	return nil
}

// printCheckResult prints the tracking decision with colors
func printCheckResult(w io.Writer, filter *activity.Filter, cfg config.TrackingConfig, a activity.Activity) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	kind := string(a.Kind)
	if !a.HasKind() {
		kind = "(none)"
	}

	_, _ = fmt.Fprintln(w)
	_, _ = cyan.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = cyan.Fprintln(w, "ACTIVITY TRACKING CHECK")
	_, _ = cyan.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "Name:       %s\n", a.Name)
	_, _ = fmt.Fprintf(w, "Kind:       %s\n", kind)
	_, _ = fmt.Fprintf(w, "Threshold:  %s\n", cfg.MinSessionDuration)
	_, _ = fmt.Fprintln(w)

	_, _ = cyan.Fprint(w, "Decision:   ")
	switch {
	case filter.IsEligible(a):
		_, _ = green.Fprintln(w, "TRACKED")
		_, _ = fmt.Fprintln(w, "            → A session opens when this activity starts")
		_, _ = fmt.Fprintf(w, "            → Sessions shorter than %s are not counted\n", cfg.MinSessionDuration)
	case filter.Denied(a.Name):
		_, _ = red.Fprintln(w, "IGNORED")
		_, _ = fmt.Fprintln(w, "            → Name is on the denylist")
	default:
		_, _ = red.Fprintln(w, "IGNORED")
		_, _ = fmt.Fprintf(w, "            → Kind %s is not one of %v\n", kind, cfg.EligibleKinds)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = cyan.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = fmt.Fprintln(w)
}
