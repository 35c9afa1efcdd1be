package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ricorrenti/internal/cli"
	"ricorrenti/internal/core"
	"ricorrenti/internal/ledger/console"
	"ricorrenti/internal/storage"
)

func newRunsCmd(root *rootOptions) *cobra.Command {
	var (
		rows  int
		runID string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show an analysis run stored in SQLite (the latest by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := root.loadLenient()
			if err != nil {
				return err
			}

			repo, err := cli.InitSQLite(logger.Slog(), cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			out := cmd.OutOrStdout()
			var run *storage.Run
			if runID != "" {
				run, err = repo.Run(ctx, runID)
			} else {
				run, err = repo.LatestRun(ctx)
			}
			if errors.Is(err, storage.ErrNoRuns) {
				fmt.Fprintln(out, "No analysis runs stored yet.")
				return nil
			}
			if err != nil {
				return err
			}
			groups, err := repo.RecurringGroups(ctx, run.ID)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Run %s at %s: %d groups from %d transactions (%s matching)\n",
				run.ID, run.GeneratedAt.Format(time.RFC3339), run.Groups, run.Transactions, run.MatchMode)
			if !cmd.Flags().Changed("rows") {
				rows = len(groups)
			}
			return console.NewSink(out, rows).WriteReport(ctx, &core.Report{
				RunID:       run.ID,
				GeneratedAt: run.GeneratedAt,
				MatchMode:   run.MatchMode,
				Groups:      groups,
			})
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 0, "limit the number of groups shown (default: all)")
	cmd.Flags().StringVar(&runID, "id", "", "show this run instead of the latest")
	return cmd
}
