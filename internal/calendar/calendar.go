// Package calendar decides whether a date is a trading day and whether an
// instant falls inside a trading session.
package calendar

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "daily-stock-analysis/internal/errors"
)

// Mode selects how trading days are determined.
type Mode string

const (
	// ModeSimple treats Monday to Friday as trading days.
	ModeSimple Mode = "simple"
	// ModeAdvanced additionally consults a holiday table.
	ModeAdvanced Mode = "advanced"
)

// ParseMode parses a holiday mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSimple:
		return ModeSimple, nil
	case ModeAdvanced:
		return ModeAdvanced, nil
	default:
		return "", apperrors.NewValidationError("calendar.holiday_mode", s, "must be 'simple' or 'advanced'")
	}
}

// Session is a continuous trading window expressed in minutes after midnight.
// Both ends are inclusive.
type Session struct {
	Start int
	End   int
}

func (s Session) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", s.Start/60, s.Start%60, s.End/60, s.End%60)
}

// Contains reports whether the minute of day lies inside the window.
func (s Session) Contains(minute int) bool {
	return minute >= s.Start && minute <= s.End
}

// DefaultSessions returns the A-share continuous trading windows.
func DefaultSessions() []Session {
	return []Session{
		{Start: 9*60 + 30, End: 11*60 + 30},
		{Start: 13 * 60, End: 15 * 60},
	}
}

// ParseSessions parses "HH:MM-HH:MM" windows. Windows must be ascending and
// must not overlap.
func ParseSessions(specs []string) ([]Session, error) {
	out := make([]Session, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, "-")
		if len(parts) != 2 {
			return nil, apperrors.NewValidationError("calendar.sessions", spec, "expected HH:MM-HH:MM")
		}
		start, err := parseClock(parts[0])
		if err != nil {
			return nil, apperrors.NewValidationError("calendar.sessions", spec, err.Error())
		}
		end, err := parseClock(parts[1])
		if err != nil {
			return nil, apperrors.NewValidationError("calendar.sessions", spec, err.Error())
		}
		if end <= start {
			return nil, apperrors.NewValidationError("calendar.sessions", spec, "session must end after it starts")
		}
		if n := len(out); n > 0 && start <= out[n-1].End {
			return nil, apperrors.NewValidationError("calendar.sessions", spec, "sessions must be ascending and non-overlapping")
		}
		out = append(out, Session{Start: start, End: end})
	}
	return out, nil
}

func parseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// YearTable holds the exchange holidays and make-up working days of one year,
// keyed by YYYY-MM-DD.
type YearTable struct {
	Holidays map[string]string
	Workdays map[string]bool
}

// HolidayTable supplies holiday data per calendar year.
type HolidayTable interface {
	Holidays(ctx context.Context, year int) (*YearTable, error)
}

// Options configures a Calendar.
type Options struct {
	Mode     Mode
	Table    HolidayTable
	Location *time.Location
	Sessions []Session // nil means DefaultSessions, empty means the whole day
	Logger   zerolog.Logger
}

// Calendar answers trading-day questions in a fixed timezone.
type Calendar struct {
	mode     Mode
	table    HolidayTable
	loc      *time.Location
	sessions []Session
	logger   zerolog.Logger

	mu       sync.Mutex
	years    map[int]*YearTable
	degraded bool
}

// New creates a calendar.
func New(opts Options) *Calendar {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = DefaultSessions()
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeSimple
	}
	return &Calendar{
		mode:     mode,
		table:    opts.Table,
		loc:      loc,
		sessions: sessions,
		logger:   opts.Logger.With().Str("component", "calendar").Logger(),
		years:    make(map[int]*YearTable),
	}
}

// ConfiguredMode returns the mode the calendar was created with.
func (c *Calendar) ConfiguredMode() Mode {
	return c.mode
}

// Mode returns the effective mode. An advanced calendar without a usable
// holiday table reports ModeSimple until a lookup succeeds again.
func (c *Calendar) Mode() Mode {
	if c.mode != ModeAdvanced || c.table == nil {
		return ModeSimple
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded {
		return ModeSimple
	}
	return ModeAdvanced
}

// Location returns the calendar timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Sessions returns the configured trading windows.
func (c *Calendar) Sessions() []Session {
	out := make([]Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// IsTradingDay reports whether the calendar date of t (in the calendar
// timezone) is a trading day.
func (c *Calendar) IsTradingDay(ctx context.Context, t time.Time) bool {
	t = t.In(c.loc)
	weekday := t.Weekday() != time.Saturday && t.Weekday() != time.Sunday

	if c.mode != ModeAdvanced {
		return weekday
	}
	if c.table == nil {
		c.logger.Warn().Msg("Advanced holiday mode without a holiday table, using weekdays")
		return weekday
	}

	year, err := c.year(ctx, t.Year())
	if err != nil {
		c.logger.Warn().Err(err).Int("year", t.Year()).Msg("Holiday table unavailable, falling back to weekdays")
		return weekday
	}

	key := t.Format("2006-01-02")
	if year.Workdays[key] {
		return true
	}
	if _, ok := year.Holidays[key]; ok {
		return false
	}
	return weekday
}

// HolidayName returns the holiday name for the date of t, if known.
func (c *Calendar) HolidayName(ctx context.Context, t time.Time) (string, bool) {
	if c.mode != ModeAdvanced || c.table == nil {
		return "", false
	}
	t = t.In(c.loc)
	year, err := c.year(ctx, t.Year())
	if err != nil {
		return "", false
	}
	name, ok := year.Holidays[t.Format("2006-01-02")]
	return name, ok
}

// IsTradingNow reports whether t is on a trading day and inside a session.
func (c *Calendar) IsTradingNow(ctx context.Context, t time.Time) bool {
	if !c.IsTradingDay(ctx, t) {
		return false
	}
	if len(c.sessions) == 0 {
		return true
	}
	local := t.In(c.loc)
	minute := local.Hour()*60 + local.Minute()
	for _, s := range c.sessions {
		if s.Contains(minute) {
			return true
		}
	}
	return false
}

// NextTradingDay returns the start of the first trading day strictly after t.
func (c *Calendar) NextTradingDay(ctx context.Context, t time.Time) time.Time {
	local := t.In(c.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	// A year of holidays is never longer than a few weeks.
	for i := 0; i < 366; i++ {
		day = day.AddDate(0, 0, 1)
		if c.IsTradingDay(ctx, day) {
			return day
		}
	}
	return day
}

func (c *Calendar) year(ctx context.Context, year int) (*YearTable, error) {
	c.mu.Lock()
	if y, ok := c.years[year]; ok {
		c.mu.Unlock()
		return y, nil
	}
	c.mu.Unlock()

	y, err := c.table.Holidays(ctx, year)
	if err == nil && y == nil {
		err = fmt.Errorf("%w: no data for %d", apperrors.ErrHolidayTableUnavailable, year)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		// Failures are not cached so the next lookup retries.
		c.degraded = true
		return nil, err
	}
	c.degraded = false
	c.years[year] = y
	return y, nil
}
