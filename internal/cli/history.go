package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"daily-stock-analysis/internal/notify"
	"daily-stock-analysis/internal/store"
)

func (a *App) openStore() (*store.SQLiteStore, *time.Location, error) {
	if err := a.requireConfig(); err != nil {
		return nil, nil, err
	}
	if !a.Config.Store.Enabled {
		return nil, nil, fmt.Errorf("store is disabled (store.enabled = false)")
	}
	loc, err := a.Config.Location()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewSQLiteStore(a.Config.Store.Path, loc)
	if err != nil {
		return nil, nil, err
	}
	return st, loc, nil
}

func newRunsCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent checkpoint runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, loc, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.GetRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No runs recorded yet")
				return nil
			}
			table := NewTable(output, "STARTED", "CHECKPOINT", "SYMBOLS", "NOTIFIED", "SUPPRESSED", "NO DATA", "FAILURES", "TOOK")
			for _, r := range runs {
				failures := fmt.Sprintf("%d", r.DispatchFailures)
				if r.DispatchFailures > 0 {
					failures = output.Red(failures)
				}
				table.AddRow(
					FormatDateTime(r.StartedAt, loc),
					r.Checkpoint,
					fmt.Sprintf("%d", r.Attempted),
					fmt.Sprintf("%d", r.Notified),
					fmt.Sprintf("%d (%s)", r.Suppressed, FormatReasons(r.SuppressionReasons)),
					fmt.Sprintf("%d", len(r.Skipped)),
					failures,
					FormatDuration(r.Duration),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

func newSignalsCmd(app *App) *cobra.Command {
	var (
		symbol   string
		since    time.Duration
		notified bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "signals",
		Short: "List stored signals and their filter outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, loc, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			filter := store.SignalFilter{
				Symbol:       symbol,
				NotifiedOnly: notified,
				Limit:        limit,
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			records, err := st.GetSignals(cmd.Context(), filter)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Dim("No signals found")
				return nil
			}
			table := NewTable(output, "TIME", "SYMBOL", "ACTION", "SCORE", "PRICE", "OUTCOME", "REASONS")
			for _, r := range records {
				outcome := output.Green("notified")
				if !r.Notified {
					outcome = r.SuppressionReason
				}
				table.AddRow(
					FormatDateTime(r.ComputedAt, loc),
					r.Symbol,
					output.Action(r.Action),
					fmt.Sprintf("%d", r.Score),
					notify.FormatPrice(r.Price),
					outcome,
					TruncateString(strings.Join(r.Reasons, "; "), 50),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "only this symbol")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "only signals newer than this (0 for all)")
	cmd.Flags().BoolVar(&notified, "notified", false, "only notified signals")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of signals")
	return cmd
}

func newPruneCmd(app *App) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete stored quote samples older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 1 {
				return fmt.Errorf("--keep-days must be at least 1")
			}
			st, _, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			before := time.Now().AddDate(0, 0, -keep)
			n, err := st.PruneSamples(cmd.Context(), before)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"deleted": n, "before": before})
			}
			output.Success("Deleted %d samples older than %s", n, before.Format("2006-01-02"))
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep-days", 90, "days of samples to keep")
	return cmd
}
