package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/credit-applier/internal/journal"
)

var (
	historyLimit int
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs, or the outcomes of one run",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to list")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Run ID whose outcomes to list")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	file, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}
	cfg := resolve(file, credentialsPath)

	ctx := context.Background()
	j, err := journal.Open(ctx, cfg.DatabaseURL, cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() { _ = j.Close() }()

	out := cmd.OutOrStdout()
	if historyRun != "" {
		runID, err := uuid.Parse(historyRun)
		if err != nil {
			return fmt.Errorf("invalid run ID: %w", err)
		}
		outcomes, err := j.ListOutcomes(ctx, runID)
		if err != nil {
			return err
		}
		printOutcomes(out, outcomes)
		return nil
	}

	runs, err := j.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	printRuns(out, runs)
	return nil
}

func printRuns(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s  %s  %-8s  %-8s  %s\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.State, finished, r.Source)
		if r.Summary != "" {
			_, _ = fmt.Fprintf(w, "    %s\n", r.Summary)
		}
	}
}

func printOutcomes(w io.Writer, outcomes []journal.Outcome) {
	if len(outcomes) == 0 {
		_, _ = fmt.Fprintln(w, "No outcomes recorded for this run.")
		return
	}
	for _, o := range outcomes {
		line := fmt.Sprintf("row %-4d %-30s %-18s %-8s %d/%d", o.Row, o.Name, o.Category, o.Outcome, o.UnitsApplied, o.Units)
		if o.Error != "" {
			line += "  " + o.Error
		} else if o.Detail != "" {
			line += "  " + o.Detail
		}
		_, _ = fmt.Fprintln(w, line)
	}
}
