package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/logging"
	"daily-stock-analysis/internal/models"
)

// Fetch outcomes reported to the Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeSkipped = "skipped"
)

// Recorder receives fetch telemetry.
type Recorder interface {
	FetchAttempt(source, outcome string, d time.Duration)
	CacheHit()
	SymbolUnavailable()
}

type nopRecorder struct{}

func (nopRecorder) FetchAttempt(string, string, time.Duration) {}
func (nopRecorder) CacheHit()                                  {}
func (nopRecorder) SymbolUnavailable()                         {}

// Options configures a Fetcher.
type Options struct {
	Timeout  time.Duration // per source call
	CacheTTL time.Duration
	Cache    Cache // nil disables caching
	Throttle *Throttle
	Breaker  BreakerConfig
	Now      func() time.Time
	Logger   zerolog.Logger
	Recorder Recorder
}

// DefaultOptions returns the defaults used when options are left zero.
func DefaultOptions() Options {
	return Options{
		Timeout:  10 * time.Second,
		CacheTTL: 10 * time.Minute,
	}
}

// Fetcher obtains quotes from sources in priority order.
type Fetcher struct {
	sources  []Source
	breakers map[string]*Breaker
	cache    Cache
	ttl      time.Duration
	timeout  time.Duration
	throttle *Throttle
	now      func() time.Time
	logger   zerolog.Logger
	recorder Recorder
}

// NewFetcher creates a fetcher trying sources in the given order.
func NewFetcher(sources []Source, opts Options) *Fetcher {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaults.CacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	breakers := make(map[string]*Breaker, len(sources))
	for _, s := range sources {
		breakers[s.Name()] = NewBreaker(s.Name(), opts.Breaker, opts.Now)
	}

	return &Fetcher{
		sources:  sources,
		breakers: breakers,
		cache:    opts.Cache,
		ttl:      opts.CacheTTL,
		timeout:  opts.Timeout,
		throttle: opts.Throttle,
		now:      opts.Now,
		logger:   logging.WithComponent(opts.Logger, "fetcher"),
		recorder: opts.Recorder,
	}
}

// Sources returns the source names in priority order.
func (f *Fetcher) Sources() []string {
	names := make([]string, len(f.sources))
	for i, s := range f.sources {
		names[i] = s.Name()
	}
	return names
}

// Breaker returns the circuit breaker of a source.
func (f *Fetcher) Breaker(source string) *Breaker {
	return f.breakers[source]
}

// Invalidate drops the cached quote for symbol.
func (f *Fetcher) Invalidate(ctx context.Context, symbol string) error {
	if f.cache == nil {
		return nil
	}
	return f.cache.Delete(ctx, symbol)
}

// Fetch returns a quote for symbol. A fresh cached quote is returned without
// consulting any source. Otherwise each source is tried once in order; the
// first success is cached and returned. When every source fails the error is
// a *errors.FetchError matching errors.ErrNoDataAvailable.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	log := logging.WithSymbol(f.logger, symbol)

	if f.cache != nil {
		q, ok, err := f.cache.Get(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Msg("Quote cache read failed")
		} else if ok {
			f.recorder.CacheHit()
			return q, nil
		}
	}

	fetchErr := &apperrors.FetchError{Symbol: symbol}
	for _, src := range f.sources {
		name := src.Name()

		if !f.breakers[name].Allow() {
			fetchErr.Attempts = append(fetchErr.Attempts, apperrors.NewSourceError(name, symbol, apperrors.ErrCircuitOpen))
			f.recorder.FetchAttempt(name, OutcomeSkipped, 0)
			continue
		}

		if err := f.throttle.Wait(ctx, name); err != nil {
			fetchErr.Attempts = append(fetchErr.Attempts, apperrors.NewSourceError(name, symbol, err))
			break
		}

		start := time.Now()
		q, err := f.call(ctx, src, symbol)
		elapsed := time.Since(start)
		logging.LogFetch(log, name, symbol, elapsed, err)

		if err != nil {
			f.breakers[name].Failure()
			outcome := OutcomeError
			if errors.Is(err, apperrors.ErrTimeout) {
				outcome = OutcomeTimeout
			}
			f.recorder.FetchAttempt(name, outcome, elapsed)
			fetchErr.Attempts = append(fetchErr.Attempts, apperrors.NewSourceError(name, symbol, err))
			continue
		}

		f.breakers[name].Success()
		f.recorder.FetchAttempt(name, OutcomeSuccess, elapsed)

		if f.cache != nil {
			if err := f.cache.Set(ctx, q, f.ttl); err != nil {
				log.Warn().Err(err).Msg("Quote cache write failed")
			}
		}
		return q, nil
	}

	f.recorder.SymbolUnavailable()
	log.Warn().Err(fetchErr).Int("attempts", len(fetchErr.Attempts)).Msg("All quote sources failed")
	return nil, fetchErr
}

// call runs one source with the per-source timeout. The source is abandoned
// when the timeout fires even if it ignores its context.
func (f *Fetcher) call(ctx context.Context, src Source, symbol string) (*models.Quote, error) {
	cctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	type result struct {
		q   *models.Quote
		err error
	}
	done := make(chan result, 1)
	go func() {
		q, err := src.GetQuote(cctx, symbol)
		done <- result{q: q, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %v", apperrors.ErrTimeout, r.err)
			}
			return nil, r.err
		}
		return f.normalize(r.q, src.Name(), symbol)
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", apperrors.ErrTimeout, f.timeout)
		}
		return nil, cctx.Err()
	}
}

func (f *Fetcher) normalize(q *models.Quote, source, symbol string) (*models.Quote, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: empty response", apperrors.ErrMalformedQuote)
	}
	if q.LastPrice <= 0 {
		return nil, fmt.Errorf("%w: non-positive price %v", apperrors.ErrMalformedQuote, q.LastPrice)
	}
	out := *q
	// Sources may echo a normalized code; the cache is keyed by the request.
	out.Symbol = symbol
	if out.Source == "" {
		out.Source = source
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = f.now()
	}
	return &out, nil
}
