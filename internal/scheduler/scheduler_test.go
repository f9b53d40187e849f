package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"daily-stock-analysis/internal/calendar"
	apperrors "daily-stock-analysis/internal/errors"
)

func shanghai(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	return loc
}

func mustCheckpoints(t *testing.T, specs ...string) []Checkpoint {
	t.Helper()
	cps, err := ParseCheckpoints(specs)
	if err != nil {
		t.Fatalf("ParseCheckpoints(%v): %v", specs, err)
	}
	return cps
}

func TestParseCheckpoints(t *testing.T) {
	cps := mustCheckpoints(t, "09:30", "13:00", "14:45")
	if len(cps) != 3 || cps[2] != (Checkpoint{Hour: 14, Minute: 45}) {
		t.Errorf("got %v", cps)
	}

	bad := [][]string{
		nil,
		{"9:30"},
		{"24:00"},
		{"09:60"},
		{"ab:cd"},
		{"09:30", "09:30"},
		{"13:00", "09:30"},
	}
	for _, specs := range bad {
		if _, err := ParseCheckpoints(specs); !errors.Is(err, apperrors.ErrConfigInvalid) {
			t.Errorf("ParseCheckpoints(%v) err = %v, want config error", specs, err)
		}
	}
}

func TestNextRun(t *testing.T) {
	loc := shanghai(t)
	cps := mustCheckpoints(t, "09:30", "13:00", "14:45")
	at := func(day, h, m, s int) time.Time {
		return time.Date(2025, 10, day, h, m, s, 0, loc)
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before first", at(13, 8, 0, 0), at(13, 9, 30, 0)},
		{"exactly at checkpoint", at(13, 9, 30, 0), at(13, 9, 30, 0)},
		{"just after checkpoint", at(13, 9, 30, 1), at(13, 13, 0, 0)},
		{"between", at(13, 12, 0, 0), at(13, 13, 0, 0)},
		{"after last wraps", at(13, 15, 0, 0), at(14, 9, 30, 0)},
		{"utc input", time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC), at(13, 9, 30, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextRun(tt.now, cps, loc); !got.Equal(tt.want) {
				t.Errorf("NextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}

	if !NextRun(at(13, 8, 0, 0), nil, loc).IsZero() {
		t.Error("no checkpoints should give the zero time")
	}

	// Month end wraps into the next month.
	end := time.Date(2025, 10, 31, 16, 0, 0, 0, loc)
	if got := NextRun(end, cps, loc); !got.Equal(time.Date(2025, 11, 1, 9, 30, 0, 0, loc)) {
		t.Errorf("month wrap = %v", got)
	}
}

// Property: the next run is never before now, is less than a day away and
// lands on a configured checkpoint.
func TestProperty_NextRunBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	loc := time.FixedZone("CST", 8*3600)
	cps := []Checkpoint{{9, 30}, {13, 0}, {14, 45}}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, loc)

	properties.Property("next run is a checkpoint within 24h", prop.ForAll(
		func(offsetSec int64) bool {
			now := base.Add(time.Duration(offsetSec) * time.Second)
			next := NextRun(now, cps, loc)
			if next.Before(now) || next.Sub(now) > 24*time.Hour {
				return false
			}
			for _, cp := range cps {
				if next.Hour() == cp.Hour && next.Minute() == cp.Minute && next.Second() == 0 {
					return true
				}
			}
			return false
		},
		gen.Int64Range(0, 365*24*3600),
	))

	properties.TestingRun(t)
}

type fakeCalendar struct {
	mode    calendar.Mode
	trading func(time.Time) bool
	// hours reports whether t is inside a session; nil means all day.
	hours func(time.Time) bool
}

func (c *fakeCalendar) IsTradingDay(_ context.Context, t time.Time) bool {
	return c.trading(t)
}

func (c *fakeCalendar) IsTradingNow(_ context.Context, t time.Time) bool {
	return c.trading(t) && (c.hours == nil || c.hours(t))
}

func (c *fakeCalendar) Mode() calendar.Mode { return c.mode }

func weekdays(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// fakeClock jumps straight to the requested deadline.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

type recordingRunner struct {
	mu     sync.Mutex
	clock  *fakeClock
	labels []string
	at     []time.Time
	stopAt int
	cancel context.CancelFunc
	err    error
}

func (r *recordingRunner) RunCheckpoint(ctx context.Context, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, label)
	r.at = append(r.at, r.clock.Now())
	if len(r.labels) >= r.stopAt {
		r.cancel()
	}
	return r.err
}

func TestRunFiresCheckpointsAndSkipsWeekends(t *testing.T) {
	loc := shanghai(t)
	// Friday afternoon, after the 13:00 checkpoint.
	clock := &fakeClock{now: time.Date(2025, 10, 17, 13, 30, 0, 0, loc)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &recordingRunner{clock: clock, stopAt: 3, cancel: cancel}
	s, err := New(Options{
		Checkpoints: mustCheckpoints(t, "09:30", "13:00", "14:45"),
		Location:    loc,
		Calendar:    &fakeCalendar{mode: calendar.ModeSimple, trading: weekdays},
		Runner:      runner,
		Logger:      zerolog.Nop(),
		Now:         clock.Now,
		After:       clock.After,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []time.Time{
		time.Date(2025, 10, 17, 14, 45, 0, 0, loc),
		time.Date(2025, 10, 20, 9, 30, 0, 0, loc),
		time.Date(2025, 10, 20, 13, 0, 0, 0, loc),
	}
	if len(runner.at) != len(want) {
		t.Fatalf("runs at %v, want %v", runner.at, want)
	}
	for i := range want {
		if !runner.at[i].Equal(want[i]) {
			t.Errorf("run %d at %v, want %v", i, runner.at[i], want[i])
		}
	}
	if runner.labels[0] != "14:45" || runner.labels[1] != "09:30" {
		t.Errorf("labels = %v", runner.labels)
	}

	st := s.Status()
	// Saturday and Sunday each skip three checkpoints.
	if st.Runs != 3 || st.Skipped != 6 {
		t.Errorf("status = %+v, want 3 runs and 6 skips", st)
	}
}

func TestRunSkipsCheckpointOutsideTradingHours(t *testing.T) {
	loc := time.UTC
	clock := &fakeClock{now: time.Date(2025, 10, 13, 8, 0, 0, 0, loc)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Lunch break between 11:30 and 13:00.
	outsideLunch := func(t time.Time) bool {
		m := t.Hour()*60 + t.Minute()
		return m <= 11*60+30 || m >= 13*60
	}
	runner := &recordingRunner{clock: clock, stopAt: 2, cancel: cancel}
	s, err := New(Options{
		Checkpoints: mustCheckpoints(t, "10:00", "12:00", "13:00"),
		Location:    loc,
		Calendar:    &fakeCalendar{mode: calendar.ModeSimple, trading: weekdays, hours: outsideLunch},
		Runner:      runner,
		Logger:      zerolog.Nop(),
		Now:         clock.Now,
		After:       clock.After,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(runner.labels) != 2 || runner.labels[0] != "10:00" || runner.labels[1] != "13:00" {
		t.Errorf("labels = %v, want [10:00 13:00]", runner.labels)
	}
	if st := s.Status(); st.Runs != 2 || st.Skipped != 1 {
		t.Errorf("status = %+v, want 2 runs and 1 skip", st)
	}
}

func TestRunFiresEachCheckpointOnce(t *testing.T) {
	loc := time.UTC
	// A clock that does not advance on its own: After returns immediately
	// without moving time, so the loop must step past the fired checkpoint.
	start := time.Date(2025, 10, 13, 9, 30, 0, 0, loc)
	var mu sync.Mutex
	now := start
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired []time.Time
	runner := RunnerFunc(func(context.Context, string) error {
		mu.Lock()
		fired = append(fired, now)
		if len(fired) == 2 {
			cancel()
		}
		mu.Unlock()
		return nil
	})

	s, err := New(Options{
		Checkpoints: mustCheckpoints(t, "09:30", "13:00"),
		Location:    loc,
		Calendar:    &fakeCalendar{mode: calendar.ModeSimple, trading: weekdays},
		Runner:      runner,
		Logger:      zerolog.Nop(),
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		},
		After: func(d time.Duration) <-chan time.Time {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
			ch := make(chan time.Time, 1)
			ch <- now
			return ch
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(fired) != 2 || !fired[0].Equal(start) || !fired[1].Equal(start.Add(210*time.Minute)) {
		t.Errorf("fired at %v", fired)
	}
}

func TestRunStopsOnCancelWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New(Options{
		Checkpoints: []Checkpoint{{9, 30}},
		Location:    time.UTC,
		Calendar:    &fakeCalendar{mode: calendar.ModeSimple, trading: weekdays},
		Runner:      RunnerFunc(func(context.Context, string) error { t.Error("runner must not be called"); return nil }),
		Logger:      zerolog.Nop(),
		After:       func(time.Duration) <-chan time.Time { return make(chan time.Time) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(ctx); err != nil {
		t.Errorf("Run after cancel = %v, want nil", err)
	}
}

func TestRunOnce(t *testing.T) {
	loc := time.UTC
	saturday := time.Date(2025, 10, 18, 10, 0, 0, 0, loc)
	monday := time.Date(2025, 10, 20, 10, 5, 0, 0, loc)

	var label string
	runner := RunnerFunc(func(_ context.Context, l string) error {
		label = l
		return nil
	})
	opts := Options{
		Checkpoints: []Checkpoint{{9, 30}},
		Location:    loc,
		Calendar:    &fakeCalendar{mode: calendar.ModeSimple, trading: weekdays},
		Runner:      runner,
		Logger:      zerolog.Nop(),
	}

	opts.Now = func() time.Time { return saturday }
	s, _ := New(opts)
	if err := s.RunOnce(context.Background()); !errors.Is(err, ErrNotTradingDay) {
		t.Errorf("RunOnce on Saturday = %v", err)
	}

	opts.Now = func() time.Time { return monday }
	s, _ = New(opts)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if label != "10:05" {
		t.Errorf("label = %q", label)
	}

	failing := RunnerFunc(func(context.Context, string) error { return errors.New("boom") })
	opts.Runner = failing
	s, _ = New(opts)
	if err := s.RunOnce(context.Background()); err == nil {
		t.Error("runner error should propagate")
	}
	if st := s.Status(); st.Runs != 1 || st.Failed != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	cal := &fakeCalendar{mode: calendar.ModeSimple, trading: weekdays}
	runner := RunnerFunc(func(context.Context, string) error { return nil })

	if _, err := New(Options{Calendar: cal, Runner: runner}); err == nil {
		t.Error("missing checkpoints should fail")
	}
	if _, err := New(Options{Checkpoints: []Checkpoint{{9, 30}}, Calendar: cal}); err == nil {
		t.Error("missing runner should fail")
	}
	if _, err := New(Options{Checkpoints: []Checkpoint{{9, 30}}, Runner: runner}); err == nil {
		t.Error("missing calendar should fail")
	}
}
