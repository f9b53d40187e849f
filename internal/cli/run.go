package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"daily-stock-analysis/internal/logging"
	"daily-stock-analysis/internal/models"
	"daily-stock-analysis/internal/notify"
	"daily-stock-analysis/internal/scheduler"
)

func newRunCmd(app *App) *cobra.Command {
	var dryRun, terminal, once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the checkpoint scheduler until interrupted",
		Long: `Run the checkpoint scheduler in the foreground.

The scheduler sleeps until the next configured checkpoint, skips days that are
not trading days and runs the watch list through the pipeline otherwise.
SIGINT/SIGTERM stop the loop; a run in progress is allowed to finish.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireConfig(); err != nil {
				return err
			}
			if len(app.Config.Watchlist.Symbols) == 0 {
				return fmt.Errorf("watch list is empty: set watchlist.symbols in %s/config.toml or STOCK_LIST", app.Config.Dir())
			}

			ctx := cmd.Context()
			rt, err := app.buildRuntime(ctx, buildOptions{DryRun: dryRun, Terminal: terminal, Bell: terminal})
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			sched, err := rt.Scheduler(app.Config)
			if err != nil {
				return err
			}

			if once {
				err := sched.RunOnce(ctx)
				if errors.Is(err, scheduler.ErrNotTradingDay) {
					NewOutput(cmd).Warning("Today is not a trading day, nothing to do")
					return nil
				}
				return err
			}

			err = sched.Run(ctx)
			st := sched.Status()
			logger := logging.FromContext(ctx)
			logger.Info().
				Int("runs", st.Runs).
				Int("skipped", st.Skipped).
				Int("failed", st.Failed).
				Msg("Scheduler stopped")
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify and filter but never notify")
	cmd.Flags().BoolVar(&terminal, "terminal", false, "also print notifications to the terminal with a bell on strong actions")
	cmd.Flags().BoolVar(&once, "once", false, "run a single checkpoint now (if today is a trading day) and exit")

	return cmd
}

func newOnceCmd(app *App) *cobra.Command {
	var (
		symbols []string
		srcs    []string
		force   bool
		dryRun  bool
		noStore bool
	)

	cmd := &cobra.Command{
		Use:   "once [SYMBOL...]",
		Short: "Evaluate the watch list once and print the signals",
		Example: `  intraday once
  intraday once 600519 000001 --dry-run
  intraday once --sources paper --force --no-store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireConfig(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			list := append(append([]string{}, symbols...), args...)
			if len(list) == 0 {
				list = app.Config.Watchlist.Symbols
			}
			if len(list) == 0 {
				return fmt.Errorf("no symbols given and the watch list is empty")
			}

			ctx := cmd.Context()
			rt, err := app.buildRuntime(ctx, buildOptions{
				DryRun:   dryRun,
				Terminal: !output.IsJSON(),
				NoStore:  noStore,
				Sources:  srcs,
			})
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			now := time.Now().In(rt.Location)
			if !force && !rt.Calendar.IsTradingDay(ctx, now) {
				output.Warning("%s is not a trading day (%s mode); use --force to evaluate anyway",
					now.Format("2006-01-02"), rt.Calendar.Mode())
				return nil
			}

			summary := rt.Pipeline.Run(ctx, list)
			if output.IsJSON() {
				return output.JSON(summary)
			}
			printSummary(output, summary, rt.Location)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&symbols, "symbols", "s", nil, "symbols to evaluate instead of the watch list")
	cmd.Flags().StringSliceVar(&srcs, "sources", nil, "quote sources in priority order (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "evaluate even on non-trading days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify and filter but never notify")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not read or write the local store")

	return cmd
}

func printSummary(output *Output, s *models.RunSummary, loc *time.Location) {
	output.Println()
	table := NewTable(output, "SYMBOL", "NAME", "PRICE", "CHANGE", "ACTION", "SCORE", "REASONS")
	for _, sig := range s.Signals {
		table.AddRow(
			sig.Symbol,
			TruncateString(sig.Quote.Name, 8),
			notify.FormatPrice(sig.Quote.LastPrice),
			notify.FormatChange(sig.Quote),
			output.Action(sig.Action),
			fmt.Sprintf("%d", sig.Score),
			TruncateString(strings.Join(sig.Reasons, "; "), 60),
		)
	}
	table.Render()
	output.Println()

	output.Bold("Run %s at %s", s.Checkpoint, FormatDateTime(s.StartedAt, loc))
	output.Printf("  Attempted:  %d in %s\n", s.Attempted, FormatDuration(s.Duration))
	output.Printf("  Notified:   %d\n", s.Notified)
	output.Printf("  Suppressed: %d (%s)\n", s.Suppressed, FormatReasons(s.SuppressionReasons))
	if len(s.Skipped) > 0 {
		output.Warning("  No data:    %s", strings.Join(s.Skipped, ", "))
	}
	if len(s.Abandoned) > 0 {
		output.Warning("  Abandoned:  %s", strings.Join(s.Abandoned, ", "))
	}
	if s.DispatchFailures > 0 {
		output.Error("  Dispatch failures: %d", s.DispatchFailures)
	}
}

func newNextCmd(app *App) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the upcoming checkpoint runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireConfig(); err != nil {
				return err
			}
			output := NewOutput(cmd)
			ctx := cmd.Context()

			loc, err := app.Config.Location()
			if err != nil {
				return err
			}
			cal, err := app.buildCalendar(loc)
			if err != nil {
				return err
			}
			checkpoints, err := scheduler.ParseCheckpoints(app.Config.Schedule.Checkpoints)
			if err != nil {
				return err
			}

			type upcoming struct {
				At         time.Time `json:"at"`
				TradingDay bool      `json:"trading_day"`
			}
			var runs []upcoming
			at := time.Now()
			for len(runs) < count {
				at = scheduler.NextRun(at, checkpoints, loc)
				runs = append(runs, upcoming{At: at, TradingDay: cal.IsTradingDay(ctx, at)})
				at = at.Add(time.Minute)
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			table := NewTable(output, "WHEN", "IN", "STATUS")
			for _, r := range runs {
				status := output.Green("run")
				if !r.TradingDay {
					status = output.Yellow("skip (not a trading day)")
				}
				table.AddRow(FormatDateTime(r.At, loc), FormatDuration(time.Until(r.At)), status)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 6, "number of checkpoints to show")
	return cmd
}

func newCalendarCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar [YYYY-MM-DD]",
		Short: "Show whether a date is a trading day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireConfig(); err != nil {
				return err
			}
			output := NewOutput(cmd)
			ctx := cmd.Context()

			loc, err := app.Config.Location()
			if err != nil {
				return err
			}
			cal, err := app.buildCalendar(loc)
			if err != nil {
				return err
			}

			day := time.Now().In(loc)
			if len(args) == 1 {
				if day, err = time.ParseInLocation("2006-01-02", args[0], loc); err != nil {
					return fmt.Errorf("invalid date %q: %w", args[0], err)
				}
			}

			trading := cal.IsTradingDay(ctx, day)
			holiday, isHoliday := cal.HolidayName(ctx, day)
			next := cal.NextTradingDay(ctx, day)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"date":             day.Format("2006-01-02"),
					"trading_day":      trading,
					"trading_now":      len(args) == 0 && cal.IsTradingNow(ctx, day),
					"holiday":          holiday,
					"mode":             cal.Mode(),
					"next_trading_day": next.Format("2006-01-02"),
				})
			}

			output.Printf("Date:              %s (%s)\n", day.Format("2006-01-02"), day.Weekday())
			if trading {
				output.Printf("Trading day:       %s\n", output.Green("yes"))
			} else {
				output.Printf("Trading day:       %s\n", output.Red("no"))
			}
			if isHoliday {
				output.Printf("Holiday:           %s\n", holiday)
			}
			if len(args) == 0 {
				output.Printf("Market open now:   %v\n", cal.IsTradingNow(ctx, day))
			}
			output.Printf("Next trading day:  %s\n", next.Format("2006-01-02"))
			if cal.Mode() != cal.ConfiguredMode() {
				output.Warning("Holiday table unavailable, answering in %s mode", cal.Mode())
			} else {
				output.Dim("Mode: %s", cal.Mode())
			}
			return nil
		},
	}
}

func newQuoteCmd(app *App) *cobra.Command {
	var (
		srcs  []string
		fresh bool
	)

	cmd := &cobra.Command{
		Use:   "quote SYMBOL...",
		Short: "Fetch current quotes through the source chain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireConfig(); err != nil {
				return err
			}
			output := NewOutput(cmd)
			ctx := cmd.Context()

			rt, err := app.buildRuntime(ctx, buildOptions{NoStore: true, Sources: srcs})
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			var quotes []*models.Quote
			table := NewTable(output, "SYMBOL", "NAME", "PRICE", "CHANGE", "VOLUME", "SOURCE", "TIME")
			for _, arg := range args {
				if fresh {
					if err := rt.Fetcher.Invalidate(ctx, arg); err != nil {
						output.Warning("%s: cache invalidation failed: %v", arg, err)
					}
				}
				q, err := rt.Fetcher.Fetch(ctx, arg)
				if err != nil {
					output.Error("%s: %v", arg, err)
					continue
				}
				quotes = append(quotes, q)
				table.AddRow(q.Symbol, q.Name, notify.FormatPrice(q.LastPrice), notify.FormatChange(*q),
					FormatVolume(q.Volume), q.Source, FormatDateTime(q.Timestamp, rt.Location))
			}

			if output.IsJSON() {
				return output.JSON(quotes)
			}
			if len(quotes) > 0 {
				table.Render()
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&srcs, "sources", nil, "quote sources in priority order (default from config)")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "drop cached quotes before fetching")
	return cmd
}

func closeRuntime(rt *Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rt.Close(ctx)
}
