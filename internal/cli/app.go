package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"daily-stock-analysis/internal/analysis/indicators"
	"daily-stock-analysis/internal/analysis/scoring"
	"daily-stock-analysis/internal/calendar"
	"daily-stock-analysis/internal/config"
	"daily-stock-analysis/internal/logging"
	"daily-stock-analysis/internal/metrics"
	"daily-stock-analysis/internal/notify"
	"daily-stock-analysis/internal/pipeline"
	"daily-stock-analysis/internal/quote"
	"daily-stock-analysis/internal/quote/sources"
	"daily-stock-analysis/internal/scheduler"
	"daily-stock-analysis/internal/signalfilter"
	"daily-stock-analysis/internal/store"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	// configErr is kept for commands that can run on an invalid config.
	configErr error
}

// buildOptions tweaks the runtime for a single command.
type buildOptions struct {
	DryRun   bool
	Terminal bool
	Bell     bool
	NoStore  bool
	Sources  []string
}

// Runtime is the wired set of components behind the run commands.
type Runtime struct {
	Location   *time.Location
	Calendar   *calendar.Calendar
	Fetcher    *quote.Fetcher
	Engine     *indicators.Engine
	Filter     *signalfilter.Filter
	Dispatcher *notify.Dispatcher
	Pipeline   *pipeline.Pipeline
	Store      *store.SQLiteStore
	Metrics    *metrics.Recorder

	logger  zerolog.Logger
	closers []func(context.Context) error
}

func (a *App) buildCalendar(loc *time.Location) (*calendar.Calendar, error) {
	cfg := a.Config
	mode, err := calendar.ParseMode(cfg.Calendar.HolidayMode)
	if err != nil {
		return nil, err
	}
	sessions, err := calendar.ParseSessions(cfg.Calendar.Sessions)
	if err != nil {
		return nil, err
	}

	opts := calendar.Options{
		Mode:     mode,
		Location: loc,
		Sessions: sessions,
		Logger:   a.Logger,
	}
	if cfg.Calendar.HolidayFile != "" {
		opts.Table = calendar.NewYAMLHolidayTable(cfg.Calendar.HolidayFile)
	} else if mode == calendar.ModeAdvanced {
		a.Logger.Warn().Msg("Advanced holiday mode without calendar.holiday_file, falling back to weekday detection")
	}
	return calendar.New(opts), nil
}

// buildRuntime wires every component from the configuration. Optional
// collaborators that fail to start (store, redis, metrics) are logged and
// left out.
func (a *App) buildRuntime(ctx context.Context, bo buildOptions) (*Runtime, error) {
	cfg := a.Config
	logger := a.Logger

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Location: loc, logger: logger}

	if rt.Calendar, err = a.buildCalendar(loc); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		rt.Metrics = metrics.New()
		srv := rt.Metrics.Serve(cfg.Metrics.Addr)
		rt.closers = append(rt.closers, srv.Shutdown)
		logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint enabled")
	}

	if cfg.Store.Enabled && !bo.NoStore {
		st, err := store.NewSQLiteStore(cfg.Store.Path, loc)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open store, history and baselines unavailable")
		} else {
			rt.Store = st
			rt.closers = append(rt.closers, func(context.Context) error { return st.Close() })
			logger.Debug().Str("path", cfg.Store.Path).Msg("SQLite store initialized")
		}
	}

	if rt.Fetcher, err = a.buildFetcher(ctx, rt, bo); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	rt.Engine = indicators.NewEngine(indicators.Config{
		RSIPeriod: cfg.Indicators.RSIPeriod,
		Location:  loc,
	})
	classifier := scoring.NewClassifier(cfg.Scoring.Thresholds())

	policy, err := signalfilter.ParseResetPolicy(cfg.Filter.ResetPolicy)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.Filter = signalfilter.New(signalfilter.Config{
		ScoreThreshold: cfg.Filter.ScoreThreshold,
		Whitelist:      cfg.ActionWhitelist(),
		VolumeAnomaly:  cfg.Filter.VolumeAnomaly,
		Cooldown:       cfg.Filter.Cooldown,
		ResetPolicy:    policy,
		MaxAge:         cfg.Filter.MaxAge,
		Location:       loc,
	}, signalfilter.WithLogger(logging.WithComponent(logger, "filter")))

	rt.Dispatcher = notify.NewDispatcher(cfg.Notifications, logging.WithComponent(logger, "notify"))
	if bo.Terminal {
		rt.Dispatcher.AddChannel(notify.NewTerminalChannel(nil, bo.Bell))
	}

	opts := pipeline.Options{
		Symbols:          cfg.Watchlist.Symbols,
		MaxConcurrency:   cfg.Pipeline.MaxConcurrency,
		HistorySessions:  cfg.Indicators.HistorySessions,
		BaselineSessions: cfg.Indicators.BaselineSessions,
		BaselineWindow:   time.Duration(cfg.Indicators.BaselineWindow) * time.Minute,
		Location:         loc,
		DryRun:           cfg.Pipeline.DryRun || bo.DryRun,
		Logger:           logging.WithComponent(logger, "pipeline"),
	}
	// Typed nil pointers must not reach the optional interfaces.
	if rt.Store != nil {
		opts.Store = rt.Store
	}
	if rt.Metrics != nil {
		opts.Recorder = rt.Metrics
	}
	rt.Pipeline = pipeline.New(rt.Fetcher, rt.Engine, classifier, rt.Filter, rt.Dispatcher, opts)

	return rt, nil
}

func (a *App) buildFetcher(ctx context.Context, rt *Runtime, bo buildOptions) (*quote.Fetcher, error) {
	cfg := a.Config

	registry := sources.NewRegistry(sources.Config{
		HTTPClient:      &http.Client{Timeout: cfg.Fetcher.Timeout + 5*time.Second},
		KiteAPIKey:      cfg.Credentials.Kite.APIKey,
		KiteAccessToken: cfg.Credentials.Kite.AccessToken,
		PaperSeed:       cfg.Fetcher.PaperSeed,
	})
	names := cfg.Fetcher.Sources
	if len(bo.Sources) > 0 {
		names = bo.Sources
	}
	srcs, err := registry.Select(names)
	if err != nil {
		return nil, err
	}

	opts := quote.Options{
		Timeout:  cfg.Fetcher.Timeout,
		CacheTTL: cfg.Cache.TTL,
		Throttle: quote.NewThrottle(cfg.Fetcher.JitterMin, cfg.Fetcher.JitterMax),
		Breaker: quote.BreakerConfig{
			FailureThreshold: cfg.Fetcher.BreakerThreshold,
			Cooldown:         cfg.Fetcher.BreakerCooldown,
		},
		Logger: a.Logger,
	}
	if rt.Metrics != nil {
		opts.Recorder = rt.Metrics
	}

	switch cfg.Cache.Backend {
	case "redis":
		rc := quote.NewRedisCache(quote.RedisConfig{
			Addr:      cfg.Cache.RedisAddr,
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			a.Logger.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("Redis unavailable, using in-process quote cache")
			_ = rc.Close()
			opts.Cache = quote.NewMemoryCache(nil)
		} else {
			opts.Cache = rc
			rt.closers = append(rt.closers, func(context.Context) error { return rc.Close() })
		}
	default:
		opts.Cache = quote.NewMemoryCache(nil)
	}

	return quote.NewFetcher(srcs, opts), nil
}

// Scheduler creates the checkpoint scheduler driving the pipeline.
func (rt *Runtime) Scheduler(cfg *config.Config) (*scheduler.Scheduler, error) {
	checkpoints, err := scheduler.ParseCheckpoints(cfg.Schedule.Checkpoints)
	if err != nil {
		return nil, err
	}
	var heartbeat time.Duration
	if cfg.Schedule.Heartbeat {
		heartbeat = cfg.Schedule.HeartbeatInterval
	}
	return scheduler.New(scheduler.Options{
		Checkpoints: checkpoints,
		Location:    rt.Location,
		Calendar:    rt.Calendar,
		Runner:      rt.Pipeline,
		Logger:      logging.WithComponent(rt.logger, "scheduler"),
		Heartbeat:   heartbeat,
	})
}

// Close releases the runtime's resources in reverse order of creation.
func (rt *Runtime) Close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("Error during shutdown")
		}
	}
	rt.closers = nil
}

func (a *App) requireConfig() error {
	if a.configErr != nil {
		return fmt.Errorf("configuration: %w", a.configErr)
	}
	if a.Config == nil {
		return fmt.Errorf("configuration not loaded")
	}
	return nil
}
