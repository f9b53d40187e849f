// Package pipeline runs one checkpoint over the watch list: fetch, update
// indicators, classify, filter and dispatch, with bounded parallelism.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"daily-stock-analysis/internal/analysis/indicators"
	"daily-stock-analysis/internal/logging"
	"daily-stock-analysis/internal/models"
	"daily-stock-analysis/internal/notify"
)

// RunSummary is the outcome of one run.
type RunSummary = models.RunSummary

// QuoteFetcher obtains one quote per symbol.
type QuoteFetcher interface {
	Fetch(ctx context.Context, symbol string) (*models.Quote, error)
}

// Classifier turns a quote and its indicators into a signal.
type Classifier interface {
	Signal(q models.Quote, snap models.IndicatorSnapshot, now time.Time) models.Signal
}

// Filter decides whether a signal is notified.
type Filter interface {
	Decide(sig models.Signal) models.NotificationDecision
}

// Dispatcher delivers accepted signals.
type Dispatcher interface {
	Dispatch(ctx context.Context, sig models.Signal, rc notify.RenderContext) []notify.DeliveryResult
}

// Store persists samples, signals and runs. It is optional.
type Store interface {
	SaveSample(ctx context.Context, symbol, source string, sample models.Sample) error
	History(ctx context.Context, symbol string, before time.Time, sessions int) ([]models.Sample, error)
	VolumeBaseline(ctx context.Context, symbol string, at time.Time, sessions int, window time.Duration) (float64, error)
	SaveSignal(ctx context.Context, decision models.NotificationDecision) error
	SaveRun(ctx context.Context, summary *models.RunSummary) error
}

// Recorder receives pipeline metrics. It is optional.
type Recorder interface {
	Signal(action models.Action)
	Decision(d models.NotificationDecision)
	Dispatch(channel string, ok bool)
	Run(s *models.RunSummary)
}

// Options configures a Pipeline.
type Options struct {
	Symbols          []string
	MaxConcurrency   int
	HistorySessions  int
	BaselineSessions int
	BaselineWindow   time.Duration
	Location         *time.Location
	// DryRun classifies and filters but never dispatches.
	DryRun bool

	Store    Store
	Recorder Recorder
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Pipeline wires the per-symbol stages together.
type Pipeline struct {
	fetcher    QuoteFetcher
	engine     *indicators.Engine
	classifier Classifier
	filter     Filter
	dispatcher Dispatcher
	opts       Options
}

// New creates a pipeline.
func New(fetcher QuoteFetcher, engine *indicators.Engine, classifier Classifier, filter Filter, dispatcher Dispatcher, opts Options) *Pipeline {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 3
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		fetcher:    fetcher,
		engine:     engine,
		classifier: classifier,
		filter:     filter,
		dispatcher: dispatcher,
		opts:       opts,
	}
}

// Symbols returns the configured watch list.
func (p *Pipeline) Symbols() []string {
	return p.opts.Symbols
}

type status int

const (
	statusAbandoned status = iota
	statusSkipped
	statusDone
)

type symbolResult struct {
	status           status
	decision         models.NotificationDecision
	dispatchFailures int
}

// RunCheckpoint runs the configured watch list. It fails only when no symbol
// produced a signal.
func (p *Pipeline) RunCheckpoint(ctx context.Context, label string) error {
	summary := p.run(ctx, label, p.opts.Symbols)
	if summary.Attempted > 0 && summary.Completed() == 0 && len(summary.Abandoned) == 0 {
		return fmt.Errorf("no data for any of %d symbols", summary.Attempted)
	}
	return nil
}

// Run processes symbols once and returns the summary.
func (p *Pipeline) Run(ctx context.Context, symbols []string) *RunSummary {
	return p.run(ctx, "manual", symbols)
}

func (p *Pipeline) run(ctx context.Context, label string, symbols []string) *RunSummary {
	start := p.opts.Now()
	logger := logging.WithCheckpoint(p.opts.Logger, label)
	logger.Info().Int("symbols", len(symbols)).Int("max_concurrency", p.opts.MaxConcurrency).Msg("Run started")

	// Symbols already started finish on a context that ignores shutdown so
	// their fetches complete or time out on their own.
	work := context.WithoutCancel(ctx)
	results := make([]symbolResult, len(symbols))

	var g errgroup.Group
	g.SetLimit(p.opts.MaxConcurrency)
	for i, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		i, symbol := i, symbol
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = p.processSymbol(work, label, symbol, logger)
			return nil
		})
	}
	_ = g.Wait()

	summary := &RunSummary{
		Checkpoint:         label,
		StartedAt:          start,
		SuppressionReasons: make(map[string]int),
	}
	for i, r := range results {
		switch r.status {
		case statusAbandoned:
			summary.Abandoned = append(summary.Abandoned, symbols[i])
			continue
		case statusSkipped:
			summary.Skipped = append(summary.Skipped, symbols[i])
		case statusDone:
			summary.Signals = append(summary.Signals, r.decision.Signal)
			if r.decision.ShouldNotify {
				summary.Notified++
			} else {
				summary.Suppressed++
				summary.SuppressionReasons[r.decision.SuppressionReason]++
			}
			summary.DispatchFailures += r.dispatchFailures
		}
		summary.Attempted++
	}
	summary.Duration = p.opts.Now().Sub(start)

	logger.Info().
		Int("attempted", summary.Attempted).
		Int("notified", summary.Notified).
		Int("suppressed", summary.Suppressed).
		Strs("skipped", summary.Skipped).
		Strs("abandoned", summary.Abandoned).
		Int("dispatch_failures", summary.DispatchFailures).
		Dur("elapsed", summary.Duration).
		Msg("Run finished")

	if p.opts.Store != nil {
		if err := p.opts.Store.SaveRun(work, summary); err != nil {
			logger.Warn().Err(err).Msg("Failed to persist run summary")
		}
	}
	if p.opts.Recorder != nil {
		p.opts.Recorder.Run(summary)
	}
	return summary
}

func (p *Pipeline) processSymbol(ctx context.Context, label, symbol string, parent zerolog.Logger) symbolResult {
	logger := logging.WithSymbol(parent, symbol)

	q, err := p.fetcher.Fetch(ctx, symbol)
	if err != nil {
		logger.Warn().Err(err).Msg("No data available, skipping symbol")
		return symbolResult{status: statusSkipped}
	}

	baseline := p.prepareSeries(ctx, symbol, q, logger)
	snap := p.engine.Update(symbol, *q, baseline)

	if p.opts.Store != nil {
		if err := p.opts.Store.SaveSample(ctx, symbol, q.Source, models.SampleFromQuote(*q)); err != nil {
			logger.Warn().Err(err).Msg("Failed to persist sample")
		}
	}

	sig := p.classifier.Signal(*q, snap, p.opts.Now())
	logging.LogSignal(logger, sig)

	decision := p.filter.Decide(sig)
	logging.LogDecision(logger, decision)

	if p.opts.Recorder != nil {
		p.opts.Recorder.Signal(sig.Action)
		p.opts.Recorder.Decision(decision)
	}
	if p.opts.Store != nil {
		if err := p.opts.Store.SaveSignal(ctx, decision); err != nil {
			logger.Warn().Err(err).Msg("Failed to persist signal")
		}
	}

	res := symbolResult{status: statusDone, decision: decision}
	if !decision.ShouldNotify || p.dispatcher == nil {
		return res
	}
	if p.opts.DryRun {
		logger.Info().Msg("Dry run, notification not dispatched")
		return res
	}

	rc := notify.RenderContext{Checkpoint: label, Location: p.opts.Location}
	for _, dr := range p.dispatcher.Dispatch(ctx, sig, rc) {
		if !dr.OK() {
			res.dispatchFailures++
		}
		if p.opts.Recorder != nil {
			p.opts.Recorder.Dispatch(dr.Channel, dr.OK())
		}
	}
	return res
}

// prepareSeries seeds the symbol's series from stored history at the start
// of a session and returns the volume baseline for the quote's time of day.
// Store failures degrade to an unseeded series and no baseline.
func (p *Pipeline) prepareSeries(ctx context.Context, symbol string, q *models.Quote, logger zerolog.Logger) float64 {
	if p.opts.Store == nil {
		return 0
	}

	session := models.SessionKey(q.Timestamp, p.opts.Location)
	if p.engine.NeedsSeed(symbol, session) {
		history, err := p.opts.Store.History(ctx, symbol, q.Timestamp, p.opts.HistorySessions)
		if err != nil {
			logger.Warn().Err(err).Msg("History unavailable, starting empty series")
		} else {
			p.engine.Seed(symbol, session, history)
			logger.Debug().Int("samples", len(history)).Msg("Series seeded from history")
		}
	}

	baseline, err := p.opts.Store.VolumeBaseline(ctx, symbol, q.Timestamp, p.opts.BaselineSessions, p.opts.BaselineWindow)
	if err != nil {
		logger.Warn().Err(err).Msg("Volume baseline unavailable")
		return 0
	}
	return baseline
}
