package calendar

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	apperrors "daily-stock-analysis/internal/errors"
)

type stubTable struct {
	years map[int]*YearTable
	err   error
	calls int
}

func (s *stubTable) Holidays(_ context.Context, year int) (*YearTable, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	y, ok := s.years[year]
	if !ok {
		return nil, apperrors.ErrHolidayTableUnavailable
	}
	return y, nil
}

func shanghai(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestSimpleModeWeekdays(t *testing.T) {
	loc := shanghai(t)
	cal := New(Options{Mode: ModeSimple, Location: loc, Logger: zerolog.Nop()})
	ctx := context.Background()

	tests := []struct {
		date string
		want bool
	}{
		{"2025-10-13", true},  // Monday
		{"2025-10-17", true},  // Friday
		{"2025-10-18", false}, // Saturday
		{"2025-10-19", false}, // Sunday
		{"2025-10-01", true},  // National Day is still a weekday in simple mode
	}
	for _, tt := range tests {
		d, _ := time.ParseInLocation("2006-01-02", tt.date, loc)
		if got := cal.IsTradingDay(ctx, d); got != tt.want {
			t.Errorf("IsTradingDay(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestAdvancedModeHolidaysAndWorkdays(t *testing.T) {
	loc := shanghai(t)
	table := &stubTable{years: map[int]*YearTable{
		2025: {
			Holidays: map[string]string{"2025-10-01": "National Day", "2025-10-02": "National Day"},
			Workdays: map[string]bool{"2025-09-28": true},
		},
	}}
	cal := New(Options{Mode: ModeAdvanced, Table: table, Location: loc, Logger: zerolog.Nop()})
	ctx := context.Background()

	cases := map[string]bool{
		"2025-10-01": false, // holiday on a Wednesday
		"2025-10-03": true,
		"2025-09-28": true, // Sunday make-up day
		"2025-10-04": false,
	}
	for date, want := range cases {
		d, _ := time.ParseInLocation("2006-01-02", date, loc)
		if got := cal.IsTradingDay(ctx, d); got != want {
			t.Errorf("IsTradingDay(%s) = %v, want %v", date, got, want)
		}
	}
	if table.calls != 1 {
		t.Errorf("holiday table consulted %d times, want 1 (cached per year)", table.calls)
	}
	if cal.Mode() != ModeAdvanced {
		t.Errorf("Mode() = %s, want advanced", cal.Mode())
	}

	d, _ := time.ParseInLocation("2006-01-02", "2025-10-01", loc)
	if name, ok := cal.HolidayName(ctx, d); !ok || name != "National Day" {
		t.Errorf("HolidayName = %q, %v", name, ok)
	}
}

func TestAdvancedModeFailsOpen(t *testing.T) {
	loc := shanghai(t)
	table := &stubTable{err: errors.New("boom")}
	cal := New(Options{Mode: ModeAdvanced, Table: table, Location: loc, Logger: zerolog.Nop()})
	ctx := context.Background()

	monday, _ := time.ParseInLocation("2006-01-02", "2025-10-13", loc)
	saturday, _ := time.ParseInLocation("2006-01-02", "2025-10-18", loc)

	if !cal.IsTradingDay(ctx, monday) {
		t.Error("weekday should be a trading day when the holiday table fails")
	}
	if cal.IsTradingDay(ctx, saturday) {
		t.Error("weekend should not be a trading day when the holiday table fails")
	}
	if cal.Mode() != ModeSimple {
		t.Errorf("effective mode = %s, want simple after a failure", cal.Mode())
	}
	if table.calls != 2 {
		t.Errorf("failures must not be cached: calls = %d, want 2", table.calls)
	}

	// Recovery restores advanced mode.
	table.err = nil
	table.years = map[int]*YearTable{2025: {Holidays: map[string]string{}, Workdays: map[string]bool{}}}
	cal.IsTradingDay(ctx, monday)
	if cal.Mode() != ModeAdvanced {
		t.Errorf("effective mode = %s, want advanced after recovery", cal.Mode())
	}
}

func TestAdvancedModeWithoutTable(t *testing.T) {
	cal := New(Options{Mode: ModeAdvanced, Location: time.UTC, Logger: zerolog.Nop()})
	if cal.Mode() != ModeSimple {
		t.Errorf("Mode() = %s, want simple", cal.Mode())
	}
	monday := time.Date(2025, 10, 13, 10, 0, 0, 0, time.UTC)
	if !cal.IsTradingDay(context.Background(), monday) {
		t.Error("expected weekday to trade")
	}
}

func TestIsTradingNowSessions(t *testing.T) {
	loc := shanghai(t)
	cal := New(Options{Mode: ModeSimple, Location: loc, Logger: zerolog.Nop()})
	ctx := context.Background()

	at := func(h, m int) time.Time { return time.Date(2025, 10, 13, h, m, 0, 0, loc) }
	tests := []struct {
		t    time.Time
		want bool
	}{
		{at(9, 29), false},
		{at(9, 30), true},
		{at(11, 30), true},
		{at(12, 0), false},
		{at(13, 0), true},
		{at(15, 0), true},
		{at(15, 1), false},
	}
	for _, tt := range tests {
		if got := cal.IsTradingNow(ctx, tt.t); got != tt.want {
			t.Errorf("IsTradingNow(%s) = %v, want %v", tt.t.Format("15:04"), got, tt.want)
		}
	}

	// Same instant expressed in UTC is evaluated in the calendar timezone.
	if !cal.IsTradingNow(ctx, at(10, 0).UTC()) {
		t.Error("expected UTC instant to be converted to the calendar timezone")
	}

	saturday := time.Date(2025, 10, 18, 10, 0, 0, 0, loc)
	if cal.IsTradingNow(ctx, saturday) {
		t.Error("Saturday should never be trading")
	}

	whole := New(Options{Mode: ModeSimple, Location: loc, Sessions: []Session{}, Logger: zerolog.Nop()})
	if !whole.IsTradingNow(ctx, at(20, 0)) {
		t.Error("empty session list should mean the whole trading day")
	}
}

func TestParseSessions(t *testing.T) {
	got, err := ParseSessions([]string{"09:30-11:30", "13:00-15:00"})
	if err != nil {
		t.Fatalf("ParseSessions: %v", err)
	}
	if len(got) != 2 || got[0] != DefaultSessions()[0] || got[1] != DefaultSessions()[1] {
		t.Errorf("ParseSessions = %v", got)
	}

	bad := [][]string{
		{"09:30"},
		{"11:30-09:30"},
		{"09:30-11:30", "11:00-12:00"},
		{"25:00-26:00"},
		{"9:30-11:30"},
	}
	for _, specs := range bad {
		if _, err := ParseSessions(specs); !errors.Is(err, apperrors.ErrConfigInvalid) {
			t.Errorf("ParseSessions(%v) err = %v, want config error", specs, err)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("Advanced"); err != nil || m != ModeAdvanced {
		t.Errorf("ParseMode(Advanced) = %v, %v", m, err)
	}
	if _, err := ParseMode("lunar"); !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("ParseMode(lunar) err = %v", err)
	}
}

func TestYAMLHolidayTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "holidays.yaml")
	content := `holidays:
  - date: "2025-10-01"
    name: National Day
  - date: "2026-01-01"
    name: New Year
workdays:
  - "2025-09-28"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	table := NewYAMLHolidayTable(path)
	y, err := table.Holidays(context.Background(), 2025)
	if err != nil {
		t.Fatalf("Holidays(2025): %v", err)
	}
	if y.Holidays["2025-10-01"] != "National Day" || !y.Workdays["2025-09-28"] {
		t.Errorf("unexpected year table: %+v", y)
	}
	if _, ok := y.Holidays["2026-01-01"]; ok {
		t.Error("entries of other years must be filtered out")
	}

	if _, err := table.Holidays(context.Background(), 2030); !errors.Is(err, apperrors.ErrHolidayTableUnavailable) {
		t.Errorf("Holidays(2030) err = %v, want unavailable", err)
	}

	missing := NewYAMLHolidayTable(filepath.Join(dir, "missing.yaml"))
	if _, err := missing.Holidays(context.Background(), 2025); !errors.Is(err, apperrors.ErrHolidayTableUnavailable) {
		t.Errorf("missing file err = %v, want unavailable", err)
	}
}

func TestNextTradingDay(t *testing.T) {
	loc := shanghai(t)
	cal := New(Options{Mode: ModeSimple, Location: loc, Logger: zerolog.Nop()})
	friday := time.Date(2025, 10, 17, 16, 0, 0, 0, loc)
	got := cal.NextTradingDay(context.Background(), friday)
	want := time.Date(2025, 10, 20, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("NextTradingDay = %s, want %s", got, want)
	}
}

// Property: simple mode never treats a weekend as a trading day and always
// treats a weekday as one.
func TestProperty_SimpleModeMatchesWeekday(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cal := New(Options{Mode: ModeSimple, Location: time.UTC, Logger: zerolog.Nop()})
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("trading day iff weekday", prop.ForAll(
		func(days int, minute int) bool {
			ts := base.AddDate(0, 0, days).Add(time.Duration(minute) * time.Minute)
			wd := ts.Weekday()
			want := wd != time.Saturday && wd != time.Sunday
			return cal.IsTradingDay(context.Background(), ts) == want
		},
		gen.IntRange(0, 3650),
		gen.IntRange(0, 24*60-1),
	))

	properties.TestingRun(t)
}
