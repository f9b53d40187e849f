// Package cli provides the command-line interface for the intraday watcher.
package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"daily-stock-analysis/internal/config"
	"daily-stock-analysis/internal/logging"
)

// Version information
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// annotationConfigOptional marks commands that run without a valid config.
const annotationConfigOptional = "config-optional"

// NewRootCmd creates the root command for the CLI. Configuration is loaded
// once the --config flag has been parsed.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "intraday",
		Short: "Intraday watch-list scheduler for A-share signals",
		Long: `intraday evaluates a watch list at fixed checkpoints of every trading day.

At each checkpoint it fetches a quote per symbol with source fallback, updates
MA, MACD, RSI and volume-ratio indicators, scores the result into a BUY/SELL
style action and notifies the configured channels when the signal passes the
notification filter.

Use 'intraday run' to start the scheduler and 'intraday once' for a single pass.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				if cmd.Annotations[annotationConfigOptional] == "" {
					return err
				}
				app.configErr = err
				return nil
			}
			app.Config = cfg

			logCfg := cfg.Logging
			jsonMode, _ := cmd.Flags().GetBool("json")
			if jsonMode {
				// stdout carries the JSON document
				logCfg.Console = false
			}
			app.Logger = logging.NewLoggerWithConfig(logCfg)

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(logging.WithLogger(ctx, app.Logger))
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/daily-stock-analysis)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newOnceCmd(app))
	rootCmd.AddCommand(newNextCmd(app))
	rootCmd.AddCommand(newCalendarCmd(app))
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newRunsCmd(app))
	rootCmd.AddCommand(newSignalsCmd(app))
	rootCmd.AddCommand(newPruneCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{annotationConfigOptional: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("intraday v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}
