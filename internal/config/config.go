// Package config provides configuration management for the intraday watcher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"daily-stock-analysis/internal/analysis/scoring"
	"daily-stock-analysis/internal/calendar"
	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/logging"
	"daily-stock-analysis/internal/models"
	"daily-stock-analysis/internal/quote/sources"
	"daily-stock-analysis/internal/scheduler"
	"daily-stock-analysis/internal/signalfilter"
)

// Config holds all application configuration.
type Config struct {
	Watchlist     WatchlistConfig    `mapstructure:"watchlist"`
	Schedule      ScheduleConfig     `mapstructure:"schedule"`
	Calendar      CalendarConfig     `mapstructure:"calendar"`
	Fetcher       FetcherConfig      `mapstructure:"fetcher"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Indicators    IndicatorConfig    `mapstructure:"indicators"`
	Scoring       ScoringConfig      `mapstructure:"scoring"`
	Filter        FilterConfig       `mapstructure:"filter"`
	Pipeline      PipelineConfig     `mapstructure:"pipeline"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Store         StoreConfig        `mapstructure:"store"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Logging       logging.LogConfig  `mapstructure:"logging"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately

	configDir string
}

// WatchlistConfig lists the symbols evaluated at every checkpoint.
type WatchlistConfig struct {
	Symbols []string `mapstructure:"symbols"`
}

// ScheduleConfig holds checkpoint scheduling configuration.
type ScheduleConfig struct {
	Checkpoints       []string      `mapstructure:"checkpoints"` // "HH:MM", ascending
	Timezone          string        `mapstructure:"timezone"`
	Heartbeat         bool          `mapstructure:"heartbeat"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// CalendarConfig holds trading calendar configuration.
type CalendarConfig struct {
	HolidayMode string   `mapstructure:"holiday_mode"` // simple, advanced
	HolidayFile string   `mapstructure:"holiday_file"`
	Sessions    []string `mapstructure:"sessions"` // "HH:MM-HH:MM"
}

// FetcherConfig holds quote source configuration.
type FetcherConfig struct {
	Sources          []string      `mapstructure:"sources"` // priority order
	Timeout          time.Duration `mapstructure:"timeout"`
	JitterMin        time.Duration `mapstructure:"jitter_min"`
	JitterMax        time.Duration `mapstructure:"jitter_max"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"` // 0 disables
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
	PaperSeed        int64         `mapstructure:"paper_seed"`
}

// CacheConfig holds quote cache configuration.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, redis
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

// IndicatorConfig holds indicator engine configuration.
type IndicatorConfig struct {
	RSIPeriod        int `mapstructure:"rsi_period"`
	BaselineSessions int `mapstructure:"baseline_sessions"`
	BaselineWindow   int `mapstructure:"baseline_window"` // minutes either side
	HistorySessions  int `mapstructure:"history_sessions"`
}

// ScoringConfig holds the action band thresholds.
type ScoringConfig struct {
	StrongBuy  int `mapstructure:"strong_buy"`
	Buy        int `mapstructure:"buy"`
	Sell       int `mapstructure:"sell"`
	StrongSell int `mapstructure:"strong_sell"`
}

// Thresholds converts the band configuration for the classifier.
func (s ScoringConfig) Thresholds() scoring.Thresholds {
	return scoring.Thresholds{
		StrongBuy:  s.StrongBuy,
		Buy:        s.Buy,
		Sell:       s.Sell,
		StrongSell: s.StrongSell,
	}
}

// FilterConfig holds notification filter configuration.
type FilterConfig struct {
	ScoreThreshold  int           `mapstructure:"score_threshold"`
	ActionWhitelist []string      `mapstructure:"action_whitelist"`
	VolumeAnomaly   float64       `mapstructure:"volume_anomaly"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	ResetPolicy     string        `mapstructure:"reset_policy"` // none, session, max_age
	MaxAge          time.Duration `mapstructure:"max_age"`
}

// PipelineConfig holds checkpoint run configuration.
type PipelineConfig struct {
	MaxConcurrency int  `mapstructure:"max_concurrency"`
	DryRun         bool `mapstructure:"dry_run"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Log      bool           `mapstructure:"log"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// EmailConfig holds email notification configuration.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig holds Prometheus exporter configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Zerodha Kite Connect credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/daily-stock-analysis"
	}
	return filepath.Join(home, ".config", "daily-stock-analysis")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{configDir: configDir}

	// Load main config
	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(configDir, "intraday.db")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration obtained when no file or environment
// override is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// Dir returns the directory the configuration was loaded from.
func (c *Config) Dir() string {
	return c.configDir
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("watchlist.symbols", []string{})

	v.SetDefault("schedule.checkpoints", []string{"09:30", "13:00", "14:45"})
	v.SetDefault("schedule.timezone", "Asia/Shanghai")
	v.SetDefault("schedule.heartbeat", true)
	v.SetDefault("schedule.heartbeat_interval", time.Hour)

	v.SetDefault("calendar.holiday_mode", "simple")
	v.SetDefault("calendar.holiday_file", "")
	v.SetDefault("calendar.sessions", []string{"09:30-11:30", "13:00-15:00"})

	v.SetDefault("fetcher.sources", []string{"tencent", "sina"})
	v.SetDefault("fetcher.timeout", 10*time.Second)
	v.SetDefault("fetcher.jitter_min", 2*time.Second)
	v.SetDefault("fetcher.jitter_max", 3*time.Second)
	v.SetDefault("fetcher.breaker_threshold", 0)
	v.SetDefault("fetcher.breaker_cooldown", 5*time.Minute)
	v.SetDefault("fetcher.paper_seed", 1)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "intraday:quote:")

	v.SetDefault("indicators.rsi_period", 12)
	v.SetDefault("indicators.baseline_sessions", 5)
	v.SetDefault("indicators.baseline_window", 5)
	v.SetDefault("indicators.history_sessions", 30)

	v.SetDefault("scoring.strong_buy", 80)
	v.SetDefault("scoring.buy", 65)
	v.SetDefault("scoring.sell", 35)
	v.SetDefault("scoring.strong_sell", 20)

	v.SetDefault("filter.score_threshold", 60)
	v.SetDefault("filter.action_whitelist", []string{"STRONG_BUY", "BUY", "STRONG_SELL"})
	v.SetDefault("filter.volume_anomaly", 3.0)
	v.SetDefault("filter.cooldown", 30*time.Minute)
	v.SetDefault("filter.reset_policy", "max_age")
	v.SetDefault("filter.max_age", 24*time.Hour)

	v.SetDefault("pipeline.max_concurrency", 3)
	v.SetDefault("pipeline.dry_run", false)

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.log", true)
	v.SetDefault("notifications.email.smtp_port", 587)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.console", logDefaults.Console)
	v.SetDefault("logging.file", logDefaults.File)
	v.SetDefault("logging.file_path", logDefaults.FilePath)
	v.SetDefault("logging.max_size", logDefaults.MaxSize)
	v.SetDefault("logging.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.max_age", logDefaults.MaxAge)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	// INTRADAY_SCHEDULE_TIMEZONE overrides schedule.timezone and so on.
	v.SetEnvPrefix("INTRADAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, create template and continue on defaults
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Credentials are optional; only the kite source needs them.
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	// Kite credentials
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}

	// Telegram
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notifications.Telegram.ChatID = v
	}

	// Comma separated lists are easier to pass through the environment
	if v := os.Getenv("STOCK_LIST"); v != "" {
		cfg.Watchlist.Symbols = splitList(v)
	}
	if v := os.Getenv("INTRADAY_CHECKPOINTS"); v != "" {
		cfg.Schedule.Checkpoints = splitList(v)
	}
	if v := os.Getenv("INTRADAY_SOURCES"); v != "" {
		cfg.Fetcher.Sources = splitList(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, apperrors.NewValidationError("schedule.timezone", c.Schedule.Timezone, err.Error())
	}
	return loc, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := scheduler.ParseCheckpoints(c.Schedule.Checkpoints); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Schedule.Heartbeat && c.Schedule.HeartbeatInterval < time.Minute {
		return apperrors.NewValidationError("schedule.heartbeat_interval", c.Schedule.HeartbeatInterval, "must be at least 1m")
	}

	if _, err := calendar.ParseMode(c.Calendar.HolidayMode); err != nil {
		return err
	}
	if _, err := calendar.ParseSessions(c.Calendar.Sessions); err != nil {
		return err
	}

	// Validate fetcher
	if len(c.Fetcher.Sources) == 0 {
		return apperrors.NewValidationError("fetcher.sources", c.Fetcher.Sources, "at least one source is required")
	}
	seen := make(map[string]bool, len(c.Fetcher.Sources))
	for _, name := range c.Fetcher.Sources {
		if !sources.IsKnown(name) {
			return apperrors.NewValidationError("fetcher.sources", name, "unknown source")
		}
		if seen[name] {
			return apperrors.NewValidationError("fetcher.sources", name, "duplicate source")
		}
		seen[name] = true
	}
	if c.Fetcher.Timeout <= 0 {
		return apperrors.NewValidationError("fetcher.timeout", c.Fetcher.Timeout, "must be positive")
	}
	if c.Fetcher.JitterMin < 0 || c.Fetcher.JitterMax < c.Fetcher.JitterMin {
		return apperrors.NewValidationError("fetcher.jitter_max", c.Fetcher.JitterMax, "jitter bounds must satisfy 0 <= jitter_min <= jitter_max")
	}
	if c.Fetcher.BreakerThreshold < 0 {
		return apperrors.NewValidationError("fetcher.breaker_threshold", c.Fetcher.BreakerThreshold, "must be non-negative")
	}

	// Validate cache
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return apperrors.NewValidationError("cache.redis_addr", c.Cache.RedisAddr, "required for the redis backend")
		}
	default:
		return apperrors.NewValidationError("cache.backend", c.Cache.Backend, "must be 'memory' or 'redis'")
	}
	if c.Cache.TTL <= 0 {
		return apperrors.NewValidationError("cache.ttl", c.Cache.TTL, "must be positive")
	}

	if c.Indicators.RSIPeriod < 2 {
		return apperrors.NewValidationError("indicators.rsi_period", c.Indicators.RSIPeriod, "must be at least 2")
	}
	if c.Indicators.BaselineSessions < 0 || c.Indicators.BaselineWindow < 0 {
		return apperrors.NewValidationError("indicators.baseline_sessions", c.Indicators.BaselineSessions, "baseline settings must be non-negative")
	}

	if err := c.Scoring.Thresholds().Validate(); err != nil {
		return err
	}

	// Validate filter
	if c.Filter.ScoreThreshold < 0 || c.Filter.ScoreThreshold > 100 {
		return apperrors.NewValidationError("filter.score_threshold", c.Filter.ScoreThreshold, "must be between 0 and 100")
	}
	for _, a := range c.Filter.ActionWhitelist {
		if _, err := models.ParseAction(a); err != nil {
			return apperrors.NewValidationError("filter.action_whitelist", a, err.Error())
		}
	}
	if c.Filter.VolumeAnomaly <= 0 {
		return apperrors.NewValidationError("filter.volume_anomaly", c.Filter.VolumeAnomaly, "must be positive")
	}
	if c.Filter.Cooldown < 0 {
		return apperrors.NewValidationError("filter.cooldown", c.Filter.Cooldown, "must be non-negative")
	}
	policy, err := signalfilter.ParseResetPolicy(c.Filter.ResetPolicy)
	if err != nil {
		return err
	}
	if policy == signalfilter.ResetMaxAge && c.Filter.MaxAge < c.Filter.Cooldown {
		return apperrors.NewValidationError("filter.max_age", c.Filter.MaxAge, "must not be shorter than filter.cooldown")
	}

	if c.Pipeline.MaxConcurrency <= 0 {
		return apperrors.NewValidationError("pipeline.max_concurrency", c.Pipeline.MaxConcurrency, "must be positive")
	}

	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return apperrors.NewValidationError("notifications.webhook.url", "", "required when the webhook is enabled")
	}
	if c.Notifications.Telegram.Enabled && (c.Notifications.Telegram.BotToken == "" || c.Notifications.Telegram.ChatID == "") {
		return apperrors.NewValidationError("notifications.telegram", "", "bot_token and chat_id are required when telegram is enabled")
	}

	return nil
}

// ActionWhitelist returns the parsed filter whitelist.
func (c *Config) ActionWhitelist() []models.Action {
	out := make([]models.Action, 0, len(c.Filter.ActionWhitelist))
	for _, a := range c.Filter.ActionWhitelist {
		if action, err := models.ParseAction(a); err == nil {
			out = append(out, action)
		}
	}
	return out
}
