package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "intraday.db"), time.UTC)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 10, day, hour, minute, 0, 0, time.UTC)
}

func TestHistoryReturnsLastSamplePerPriorSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	samples := []models.Sample{
		{Timestamp: at(13, 9, 30), Price: 10.0, Volume: 100},
		{Timestamp: at(13, 14, 45), Price: 10.5, Volume: 900},
		{Timestamp: at(14, 9, 30), Price: 10.6, Volume: 120},
		{Timestamp: at(14, 13, 0), Price: 10.8, Volume: 700},
		{Timestamp: at(15, 9, 30), Price: 11.0, Volume: 150},
		// Current session, must be excluded.
		{Timestamp: at(16, 9, 30), Price: 99, Volume: 1},
	}
	for _, smp := range samples {
		if err := s.SaveSample(ctx, "sh600519", "tencent", smp); err != nil {
			t.Fatalf("SaveSample: %v", err)
		}
	}

	history, err := s.History(ctx, "sh600519", at(16, 10, 0), 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []float64{10.5, 10.8, 11.0}
	if len(history) != len(want) {
		t.Fatalf("History = %+v, want prices %v", history, want)
	}
	for i, p := range want {
		if history[i].Price != p {
			t.Errorf("history[%d].Price = %v, want %v", i, history[i].Price, p)
		}
	}

	// Limit keeps the most recent sessions.
	history, _ = s.History(ctx, "sh600519", at(16, 10, 0), 2)
	if len(history) != 2 || history[0].Price != 10.8 {
		t.Errorf("limited history = %+v", history)
	}

	if h, _ := s.History(ctx, "other", at(16, 10, 0), 5); len(h) != 0 {
		t.Errorf("unknown symbol history = %+v", h)
	}
}

func TestSaveSampleReplacesSameTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ts := at(13, 9, 30)
	s.SaveSample(ctx, "x", "sina", models.Sample{Timestamp: ts, Price: 1, Volume: 1})
	s.SaveSample(ctx, "x", "sina", models.Sample{Timestamp: ts, Price: 2, Volume: 2})

	h, err := s.History(ctx, "x", at(14, 9, 30), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 1 || h[0].Price != 2 {
		t.Errorf("History = %+v, want one replaced sample", h)
	}
}

func TestVolumeBaseline(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Cumulative volumes around 10:00 on three prior sessions.
	for day, vol := range map[int]int64{13: 1000, 14: 2000, 15: 3000} {
		s.SaveSample(ctx, "x", "paper", models.Sample{Timestamp: at(day, 10, 0), Price: 10, Volume: vol})
		// Outside the window.
		s.SaveSample(ctx, "x", "paper", models.Sample{Timestamp: at(day, 14, 0), Price: 10, Volume: vol * 10})
	}

	got, err := s.VolumeBaseline(ctx, "x", at(16, 10, 3), 5, 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2000 {
		t.Errorf("baseline = %v, want 2000", got)
	}

	got, _ = s.VolumeBaseline(ctx, "x", at(16, 10, 0), 2, 5*time.Minute)
	if got != 2500 {
		t.Errorf("baseline over last two sessions = %v, want 2500", got)
	}

	got, _ = s.VolumeBaseline(ctx, "x", at(16, 11, 0), 5, 5*time.Minute)
	if got != 0 {
		t.Errorf("baseline with no samples in window = %v, want 0", got)
	}
}

func TestPruneSamples(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.SaveSample(ctx, "x", "paper", models.Sample{Timestamp: at(1, 10, 0), Price: 1, Volume: 1})
	s.SaveSample(ctx, "x", "paper", models.Sample{Timestamp: at(20, 10, 0), Price: 2, Volume: 2})

	n, err := s.PruneSamples(ctx, at(10, 0, 0))
	if err != nil || n != 1 {
		t.Errorf("PruneSamples = %d, %v; want 1", n, err)
	}
}

func TestSignalsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	notified := models.NotificationDecision{
		Signal: models.Signal{
			Symbol:     "sh600519",
			Action:     models.ActionBuy,
			Score:      70,
			Reasons:    []string{"bullish MA alignment", "MACD golden_cross"},
			Indicators: models.IndicatorSnapshot{MA5: models.Float(10.1), MACD: models.MACDGoldenCross},
			Quote:      models.Quote{LastPrice: 10.2},
			ComputedAt: at(13, 9, 30),
		},
		ShouldNotify: true,
	}
	suppressed := models.NotificationDecision{
		Signal:            models.Signal{Symbol: "sz000001", Action: models.ActionHold, Score: 55, ComputedAt: at(13, 9, 31)},
		SuppressionReason: "not_whitelisted",
	}
	for _, d := range []models.NotificationDecision{notified, suppressed} {
		if err := s.SaveSignal(ctx, d); err != nil {
			t.Fatalf("SaveSignal: %v", err)
		}
	}

	all, err := s.GetSignals(ctx, SignalFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Symbol != "sz000001" {
		t.Fatalf("GetSignals = %+v, want newest first", all)
	}
	if all[0].SuppressionReason != "not_whitelisted" || all[0].Notified {
		t.Errorf("suppressed record = %+v", all[0])
	}

	only, _ := s.GetSignals(ctx, SignalFilter{NotifiedOnly: true})
	if len(only) != 1 {
		t.Fatalf("notified only = %+v", only)
	}
	r := only[0]
	if r.Action != models.ActionBuy || r.Score != 70 || len(r.Reasons) != 2 || r.Price != 10.2 {
		t.Errorf("record = %+v", r)
	}
	if r.Indicators.MA5 == nil || *r.Indicators.MA5 != 10.1 || r.Indicators.MACD != models.MACDGoldenCross {
		t.Errorf("indicators = %+v", r.Indicators)
	}
	if !r.ComputedAt.Equal(at(13, 9, 30)) {
		t.Errorf("computed_at = %v", r.ComputedAt)
	}

	bySymbol, _ := s.GetSignals(ctx, SignalFilter{Symbol: "sz000001", Limit: 5})
	if len(bySymbol) != 1 {
		t.Errorf("by symbol = %+v", bySymbol)
	}
}

func TestRunsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run := &models.RunSummary{
		Checkpoint:         "09:30",
		StartedAt:          at(13, 9, 30),
		Duration:           1500 * time.Millisecond,
		Attempted:          3,
		Skipped:            []string{"sz000002"},
		Notified:           1,
		Suppressed:         1,
		SuppressionReasons: map[string]int{"below_threshold": 1},
		DispatchFailures:   1,
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	later := *run
	later.Checkpoint = "13:00"
	later.StartedAt = at(13, 13, 0)
	s.SaveRun(ctx, &later)

	runs, err := s.GetRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Checkpoint != "13:00" {
		t.Fatalf("GetRuns = %+v", runs)
	}
	got := runs[1]
	if got.Duration != run.Duration || got.Attempted != 3 || len(got.Skipped) != 1 || got.SuppressionReasons["below_threshold"] != 1 {
		t.Errorf("run = %+v", got)
	}
	if got.Abandoned != nil {
		t.Errorf("abandoned = %v, want nil", got.Abandoned)
	}
}

// Property: the volume baseline of identical prior sessions equals the
// stored cumulative volume.
func TestClosedStoreReportsDatabaseError(t *testing.T) {
	s := newTestStore(t)
	s.Close()

	err := s.SaveSample(context.Background(), "sh600519", "paper", models.Sample{Timestamp: at(13, 9, 30), Price: 10, Volume: 1})
	if !apperrors.Is(err, apperrors.ErrDatabaseError) {
		t.Errorf("err = %v, want a database error", err)
	}
}

func TestProperty_BaselineOfConstantSessions(t *testing.T) {
	s := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	counter := 0

	properties.Property("baseline equals constant volume", prop.ForAll(
		func(volume int64, sessions int) bool {
			ctx := context.Background()
			counter++
			symbol := fmt.Sprintf("prop%d", counter)
			for d := 1; d <= sessions; d++ {
				smp := models.Sample{Timestamp: at(d, 10, 0), Price: 10, Volume: volume}
				if err := s.SaveSample(ctx, symbol, "paper", smp); err != nil {
					return false
				}
			}
			got, err := s.VolumeBaseline(ctx, symbol, at(sessions+1, 10, 0), 20, time.Minute)
			return err == nil && math.Abs(got-float64(volume)) < 1e-6
		},
		gen.Int64Range(1, 1_000_000),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
