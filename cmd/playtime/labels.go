package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var labelsLimit int

var labelsCmd = &cobra.Command{
	Use:   "labels [QUERY]",
	Short: "List recorded activities",
	Long:  `List recorded activity labels, optionally only those containing QUERY (case-insensitive).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLabels,
}

func init() {
	labelsCmd.Flags().IntVar(&labelsLimit, "limit", 25, "Maximum number of labels to show (0 for all)")
	addServerFlag(labelsCmd)
	rootCmd.AddCommand(labelsCmd)
}

func runLabels(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	reader, closeReader, err := openReader(context.Background())
	if err != nil {
		return err
	}
	defer closeReader()

	labels, err := reader.SearchLabels(context.Background(), query, labelsLimit)
	if err != nil {
		return fmt.Errorf("failed to search labels: %w", err)
	}

	printLabels(os.Stdout, query, labels)
	return nil
}

func printLabels(w io.Writer, query string, labels []string) {
	if len(labels) == 0 {
		if query == "" {
			_, _ = fmt.Fprintln(w, "No activities recorded yet.")
		} else {
			_, _ = fmt.Fprintf(w, "No activities match %q.\n", query)
		}
		return
	}
	for _, label := range labels {
		_, _ = fmt.Fprintln(w, label)
	}
}
