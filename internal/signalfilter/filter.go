// Package signalfilter decides which signals are worth a notification.
//
// A signal passes when its action is whitelisted, its score clears the
// threshold and the (symbol, action) pair is not cooling down. An abnormal
// volume ratio bypasses the whitelist and threshold but still respects the
// cooldown.
package signalfilter

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/models"
)

// ResetPolicy controls when dedup state is forgotten.
type ResetPolicy string

const (
	// ResetNone keeps dedup state for the lifetime of the process.
	ResetNone ResetPolicy = "none"
	// ResetSession clears dedup state on the first decision of a new day.
	ResetSession ResetPolicy = "session"
	// ResetMaxAge evicts entries older than MaxAge.
	ResetMaxAge ResetPolicy = "max_age"
)

// ParseResetPolicy parses a reset policy name.
func ParseResetPolicy(s string) (ResetPolicy, error) {
	switch p := ResetPolicy(s); p {
	case ResetNone, ResetSession, ResetMaxAge:
		return p, nil
	}
	return "", apperrors.NewValidationError("filter.reset_policy", s, "must be one of none, session, max_age")
}

// Suppression reasons carried on NotificationDecision.
const (
	ReasonNotWhitelisted = "not_whitelisted"
	ReasonBelowThreshold = "below_threshold"
	ReasonCooldown       = "cooldown"
)

// Config holds the filter parameters.
type Config struct {
	ScoreThreshold int
	Whitelist      []models.Action
	VolumeAnomaly  float64
	Cooldown       time.Duration
	ResetPolicy    ResetPolicy
	MaxAge         time.Duration
	// Location defines the day boundary for ResetSession.
	Location *time.Location
}

// DefaultConfig returns the default filter parameters.
func DefaultConfig() Config {
	return Config{
		ScoreThreshold: 60,
		Whitelist:      []models.Action{models.ActionStrongBuy, models.ActionBuy, models.ActionStrongSell},
		VolumeAnomaly:  3.0,
		Cooldown:       30 * time.Minute,
		ResetPolicy:    ResetMaxAge,
		MaxAge:         24 * time.Hour,
		Location:       time.Local,
	}
}

// Stats is a point-in-time view of the filter.
type Stats struct {
	CachedKeys     int             `json:"cached_keys"`
	ScoreThreshold int             `json:"score_threshold"`
	VolumeAnomaly  float64         `json:"volume_anomaly"`
	Cooldown       time.Duration   `json:"cooldown"`
	Whitelist      []models.Action `json:"whitelist"`
	ResetPolicy    ResetPolicy     `json:"reset_policy"`
}

type dedupKey struct {
	symbol string
	action models.Action
}

// Filter is safe for concurrent use.
type Filter struct {
	cfg       Config
	whitelist map[models.Action]bool
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.Mutex
	last    map[dedupKey]time.Time
	session string
}

// Option configures a Filter.
type Option func(*Filter)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// WithLogger attaches a logger for decision traces.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Filter) { f.logger = logger }
}

// New creates a filter. Zero-valued fields of cfg are not defaulted; use
// DefaultConfig as the starting point.
func New(cfg Config, opts ...Option) *Filter {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ResetPolicy == "" {
		cfg.ResetPolicy = ResetNone
	}
	f := &Filter{
		cfg:       cfg,
		whitelist: make(map[models.Action]bool, len(cfg.Whitelist)),
		now:       time.Now,
		logger:    zerolog.Nop(),
		last:      make(map[dedupKey]time.Time),
	}
	for _, a := range cfg.Whitelist {
		f.whitelist[a] = true
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Decide evaluates a signal. A notify decision records the pair so the next
// signal with the same symbol and action waits out the cooldown.
func (f *Filter) Decide(sig models.Signal) models.NotificationDecision {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.expire(now)
	key := dedupKey{symbol: sig.Symbol, action: sig.Action}

	if vr := sig.Indicators.VolumeRatio; vr != nil && *vr > f.cfg.VolumeAnomaly {
		if remaining, cooling := f.cooling(key, now); cooling {
			f.logger.Debug().Str("symbol", sig.Symbol).Dur("remaining", remaining).
				Msg("Volume anomaly suppressed by cooldown")
			return suppress(sig, ReasonCooldown)
		}
		f.record(key, now)
		f.logger.Debug().Str("symbol", sig.Symbol).Float64("volume_ratio", *vr).Msg("Volume anomaly")
		return models.NotificationDecision{Signal: sig, ShouldNotify: true}
	}

	if !f.whitelist[sig.Action] {
		return suppress(sig, ReasonNotWhitelisted)
	}
	if sig.Score < f.cfg.ScoreThreshold {
		return suppress(sig, ReasonBelowThreshold)
	}
	if _, cooling := f.cooling(key, now); cooling {
		return suppress(sig, ReasonCooldown)
	}

	f.record(key, now)
	return models.NotificationDecision{Signal: sig, ShouldNotify: true}
}

func suppress(sig models.Signal, reason string) models.NotificationDecision {
	return models.NotificationDecision{Signal: sig, SuppressionReason: reason}
}

// cooling reports whether the key was notified less than Cooldown ago.
// Must be called with f.mu held.
func (f *Filter) cooling(key dedupKey, now time.Time) (time.Duration, bool) {
	t, ok := f.last[key]
	if !ok {
		return 0, false
	}
	elapsed := now.Sub(t)
	if elapsed >= f.cfg.Cooldown {
		return 0, false
	}
	return f.cfg.Cooldown - elapsed, true
}

// record stores now for key. A clock that steps backwards never rewinds an
// existing entry.
func (f *Filter) record(key dedupKey, now time.Time) {
	if t, ok := f.last[key]; ok && t.After(now) {
		return
	}
	f.last[key] = now
}

func (f *Filter) expire(now time.Time) {
	switch f.cfg.ResetPolicy {
	case ResetSession:
		session := models.SessionKey(now, f.cfg.Location)
		if f.session != "" && f.session != session && len(f.last) > 0 {
			f.logger.Info().Int("entries", len(f.last)).Str("session", session).Msg("Dedup state cleared for new session")
			f.last = make(map[dedupKey]time.Time)
		}
		f.session = session
	case ResetMaxAge:
		if f.cfg.MaxAge <= 0 {
			return
		}
		// An entry lives at least as long as its cooldown.
		age := f.cfg.MaxAge
		if age < f.cfg.Cooldown {
			age = f.cfg.Cooldown
		}
		for k, t := range f.last {
			if now.Sub(t) >= age {
				delete(f.last, k)
			}
		}
	}
}

// Reset forgets all dedup state.
func (f *Filter) Reset() {
	f.mu.Lock()
	f.last = make(map[dedupKey]time.Time)
	f.mu.Unlock()
}

// Stats returns the current filter configuration and dedup size.
func (f *Filter) Stats() Stats {
	f.mu.Lock()
	n := len(f.last)
	f.mu.Unlock()

	wl := make([]models.Action, 0, len(f.whitelist))
	for _, a := range models.AllActions {
		if f.whitelist[a] {
			wl = append(wl, a)
		}
	}
	return Stats{
		CachedKeys:     n,
		ScoreThreshold: f.cfg.ScoreThreshold,
		VolumeAnomaly:  f.cfg.VolumeAnomaly,
		Cooldown:       f.cfg.Cooldown,
		Whitelist:      wl,
		ResetPolicy:    f.cfg.ResetPolicy,
	}
}

// SortedReasons returns the keys of a reason histogram in a stable order.
func SortedReasons(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
