package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"daily-stock-analysis/internal/config"
	"daily-stock-analysis/internal/security"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireConfig(); err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{annotationConfigOptional: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir, "file": filepath.Join(dir, "config.toml")})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration files",
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireConfig(); err != nil {
				if output.IsJSON() {
					output.JSON(map[string]interface{}{"valid": false, "error": err.Error()})
				} else {
					output.Error("Configuration validation failed: %v", err)
				}
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg with secrets masked.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	mask := security.MaskCredential
	c.Notifications.Telegram.BotToken = mask(c.Notifications.Telegram.BotToken)
	c.Notifications.Email.Password = mask(c.Notifications.Email.Password)
	c.Cache.RedisPassword = mask(c.Cache.RedisPassword)
	c.Credentials.Kite.APIKey = mask(c.Credentials.Kite.APIKey)
	c.Credentials.Kite.AccessToken = mask(c.Credentials.Kite.AccessToken)
	return c
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Watch List")
	if len(cfg.Watchlist.Symbols) == 0 {
		output.Warning("  (empty, set watchlist.symbols or STOCK_LIST)")
	} else {
		output.Printf("  Symbols:          %s\n", strings.Join(cfg.Watchlist.Symbols, ", "))
	}
	output.Println()

	output.Bold("Schedule")
	output.Printf("  Checkpoints:      %s\n", strings.Join(cfg.Schedule.Checkpoints, ", "))
	output.Printf("  Timezone:         %s\n", cfg.Schedule.Timezone)
	output.Printf("  Heartbeat:        %s (%s)\n", onOff(cfg.Schedule.Heartbeat), cfg.Schedule.HeartbeatInterval)
	output.Printf("  Holiday mode:     %s\n", cfg.Calendar.HolidayMode)
	if cfg.Calendar.HolidayFile != "" {
		output.Printf("  Holiday file:     %s\n", cfg.Calendar.HolidayFile)
	}
	output.Printf("  Sessions:         %s\n", strings.Join(cfg.Calendar.Sessions, ", "))
	output.Println()

	output.Bold("Quotes")
	output.Printf("  Sources:          %s\n", strings.Join(cfg.Fetcher.Sources, " → "))
	output.Printf("  Timeout:          %s\n", cfg.Fetcher.Timeout)
	output.Printf("  Spacing:          %s-%s\n", cfg.Fetcher.JitterMin, cfg.Fetcher.JitterMax)
	output.Printf("  Cache:            %s, ttl %s\n", cfg.Cache.Backend, cfg.Cache.TTL)
	output.Println()

	output.Bold("Signals")
	output.Printf("  Bands:            strong_buy>=%d buy>=%d sell<=%d strong_sell<=%d\n",
		cfg.Scoring.StrongBuy, cfg.Scoring.Buy, cfg.Scoring.Sell, cfg.Scoring.StrongSell)
	output.Printf("  Score threshold:  %d\n", cfg.Filter.ScoreThreshold)
	output.Printf("  Whitelist:        %s\n", strings.Join(cfg.Filter.ActionWhitelist, ", "))
	output.Printf("  Volume anomaly:   %.1fx\n", cfg.Filter.VolumeAnomaly)
	output.Printf("  Cooldown:         %s (reset: %s)\n", cfg.Filter.Cooldown, cfg.Filter.ResetPolicy)
	output.Printf("  Concurrency:      %d\n", cfg.Pipeline.MaxConcurrency)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %s\n", onOff(cfg.Notifications.Enabled))
	output.Printf("  Log:              %s\n", onOff(cfg.Notifications.Log))
	output.Printf("  Webhook:          %s\n", onOff(cfg.Notifications.Webhook.Enabled))
	output.Printf("  Telegram:         %s\n", onOff(cfg.Notifications.Telegram.Enabled))
	output.Printf("  Email:            %s\n", onOff(cfg.Notifications.Email.Enabled))
	output.Println()

	output.Bold("Storage")
	output.Printf("  Store:            %s (%s)\n", onOff(cfg.Store.Enabled), cfg.Store.Path)
	output.Printf("  Metrics:          %s (%s)\n", onOff(cfg.Metrics.Enabled), cfg.Metrics.Addr)
}
