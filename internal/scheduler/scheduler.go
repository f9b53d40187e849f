// Package scheduler fires the watch-list pipeline at fixed wall-clock
// checkpoints on trading days.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"daily-stock-analysis/internal/calendar"
	apperrors "daily-stock-analysis/internal/errors"
)

// ErrNotTradingDay is returned by RunOnce on a non-trading day.
var ErrNotTradingDay = errors.New("not a trading day")

// Checkpoint is a wall-clock time of day in the scheduler's timezone.
type Checkpoint struct {
	Hour   int
	Minute int
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the checkpoint on the calendar day of t, in loc.
func (c Checkpoint) On(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

func (c Checkpoint) minutes() int {
	return c.Hour*60 + c.Minute
}

// ParseCheckpoints parses "HH:MM" strings. The list must be non-empty,
// strictly ascending and free of duplicates.
func ParseCheckpoints(specs []string) ([]Checkpoint, error) {
	if len(specs) == 0 {
		return nil, apperrors.NewValidationError("schedule.checkpoints", specs, "at least one checkpoint is required")
	}
	out := make([]Checkpoint, 0, len(specs))
	for i, spec := range specs {
		cp, err := parseCheckpoint(spec)
		if err != nil {
			return nil, apperrors.NewValidationError("schedule.checkpoints", spec, err.Error())
		}
		if i > 0 {
			prev := out[i-1]
			if cp == prev {
				return nil, apperrors.NewValidationError("schedule.checkpoints", spec, "duplicate checkpoint")
			}
			if cp.minutes() < prev.minutes() {
				return nil, apperrors.NewValidationError("schedule.checkpoints", spec, "checkpoints must be in ascending order")
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

func parseCheckpoint(s string) (Checkpoint, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return Checkpoint{}, fmt.Errorf("expected HH:MM")
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return Checkpoint{}, fmt.Errorf("hour out of range")
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return Checkpoint{}, fmt.Errorf("minute out of range")
	}
	return Checkpoint{Hour: h, Minute: m}, nil
}

// NextRun returns the earliest checkpoint at or after now, wrapping to the
// next calendar day when today's checkpoints have passed. Checkpoints must be
// sorted. The zero time is returned for an empty list.
func NextRun(now time.Time, checkpoints []Checkpoint, loc *time.Location) time.Time {
	if len(checkpoints) == 0 {
		return time.Time{}
	}
	local := now.In(loc)
	y, m, d := local.Date()
	for _, cp := range checkpoints {
		t := time.Date(y, m, d, cp.Hour, cp.Minute, 0, 0, loc)
		if !t.Before(local) {
			return t
		}
	}
	first := checkpoints[0]
	return time.Date(y, m, d+1, first.Hour, first.Minute, 0, 0, loc)
}

// Runner executes one checkpoint run. label identifies the checkpoint.
type Runner interface {
	RunCheckpoint(ctx context.Context, label string) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, label string) error

// RunCheckpoint calls f.
func (f RunnerFunc) RunCheckpoint(ctx context.Context, label string) error {
	return f(ctx, label)
}

// TradingCalendar gates checkpoints. Scheduled checkpoints must fall inside
// a trading session; a manual run only needs a trading day.
type TradingCalendar interface {
	IsTradingDay(ctx context.Context, t time.Time) bool
	IsTradingNow(ctx context.Context, t time.Time) bool
	Mode() calendar.Mode
}

// Options configures a Scheduler.
type Options struct {
	Checkpoints []Checkpoint
	Location    *time.Location
	Calendar    TradingCalendar
	Runner      Runner
	Logger      zerolog.Logger

	// Heartbeat is the interval of the liveness log; zero disables it.
	Heartbeat time.Duration

	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Status is a snapshot of the scheduler's progress.
type Status struct {
	Next    time.Time
	Runs    int
	Skipped int
	Failed  int
	Started time.Time
}

// Scheduler drives the idle, wait, gate, run cycle.
type Scheduler struct {
	opts Options

	mu     sync.Mutex
	status Status
}

// New creates a scheduler.
func New(opts Options) (*Scheduler, error) {
	if len(opts.Checkpoints) == 0 {
		return nil, apperrors.NewValidationError("schedule.checkpoints", nil, "at least one checkpoint is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	if opts.Calendar == nil {
		return nil, fmt.Errorf("scheduler: calendar is required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}
	return &Scheduler{opts: opts}, nil
}

// Status returns the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run loops until ctx is cancelled. A run in progress when ctx is cancelled
// is allowed to finish; Run then returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	now := s.opts.Now()
	s.mu.Lock()
	s.status.Started = now
	s.mu.Unlock()

	s.banner(ctx, now)

	if s.opts.Heartbeat > 0 {
		hb, err := s.startHeartbeat()
		if err != nil {
			s.opts.Logger.Warn().Err(err).Msg("Heartbeat disabled")
		} else {
			defer hb.Stop()
		}
	}

	var last time.Time
	for {
		now := s.opts.Now()
		next := NextRun(now, s.opts.Checkpoints, s.opts.Location)
		if !last.IsZero() && !next.After(last) {
			next = NextRun(last.Add(time.Nanosecond), s.opts.Checkpoints, s.opts.Location)
		}
		s.mu.Lock()
		s.status.Next = next
		s.mu.Unlock()

		s.opts.Logger.Info().
			Time("next_run", next).
			Dur("wait", next.Sub(now).Round(time.Second)).
			Msg("Waiting for next checkpoint")

		select {
		case <-ctx.Done():
			s.opts.Logger.Info().Msg("Scheduler stopped")
			return nil
		case <-s.opts.After(next.Sub(now)):
		}

		last = next
		s.fire(ctx, next)

		if ctx.Err() != nil {
			s.opts.Logger.Info().Msg("Scheduler stopped")
			return nil
		}
	}
}

// fire gates one checkpoint through the calendar and runs it.
func (s *Scheduler) fire(ctx context.Context, at time.Time) {
	label := Checkpoint{Hour: at.Hour(), Minute: at.Minute()}.String()
	logger := s.opts.Logger.With().Str("checkpoint", label).Logger()

	if !s.opts.Calendar.IsTradingDay(ctx, at) {
		s.mu.Lock()
		s.status.Skipped++
		s.mu.Unlock()
		logger.Info().Str("date", at.Format("2006-01-02")).Msg("Skipping checkpoint on non-trading day")
		return
	}
	if !s.opts.Calendar.IsTradingNow(ctx, at) {
		s.mu.Lock()
		s.status.Skipped++
		s.mu.Unlock()
		logger.Warn().Msg("Skipping checkpoint outside trading hours")
		return
	}
	s.run(ctx, label, logger)
}

func (s *Scheduler) run(ctx context.Context, label string, logger zerolog.Logger) error {
	start := s.opts.Now()
	logger.Info().Msg("Checkpoint run started")

	err := s.opts.Runner.RunCheckpoint(ctx, label)

	s.mu.Lock()
	s.status.Runs++
	if err != nil {
		s.status.Failed++
	}
	s.mu.Unlock()

	elapsed := s.opts.Now().Sub(start)
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("Checkpoint run failed")
		return err
	}
	logger.Info().Dur("elapsed", elapsed).Msg("Checkpoint run finished")
	return nil
}

// RunOnce runs the pipeline immediately, labelled with the current time.
// It returns ErrNotTradingDay without running when today is not a trading day.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.opts.Now().In(s.opts.Location)
	label := Checkpoint{Hour: now.Hour(), Minute: now.Minute()}.String()
	if !s.opts.Calendar.IsTradingDay(ctx, now) {
		return ErrNotTradingDay
	}
	return s.run(ctx, label, s.opts.Logger.With().Str("checkpoint", label).Logger())
}

func (s *Scheduler) banner(ctx context.Context, now time.Time) {
	labels := make([]string, len(s.opts.Checkpoints))
	for i, cp := range s.opts.Checkpoints {
		labels[i] = cp.String()
	}
	s.opts.Logger.Info().
		Strs("checkpoints", labels).
		Str("timezone", s.opts.Location.String()).
		Str("holiday_mode", string(s.opts.Calendar.Mode())).
		Bool("trading_day", s.opts.Calendar.IsTradingDay(ctx, now)).
		Msg("Scheduler started")
}

// heartbeat logs liveness with the next planned run.
func (s *Scheduler) heartbeat() {
	st := s.Status()
	s.opts.Logger.Info().
		Time("next_run", st.Next).
		Int("runs", st.Runs).
		Int("skipped", st.Skipped).
		Dur("uptime", s.opts.Now().Sub(st.Started).Round(time.Second)).
		Msg("Scheduler heartbeat")
}

func (s *Scheduler) startHeartbeat() (*gocron.Scheduler, error) {
	cron := gocron.NewScheduler(s.opts.Location)
	cron.SingletonModeAll()
	if _, err := cron.Every(s.opts.Heartbeat).WaitForSchedule().Do(s.heartbeat); err != nil {
		return nil, fmt.Errorf("schedule heartbeat: %w", err)
	}
	cron.StartAsync()
	return cron, nil
}
