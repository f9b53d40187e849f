package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"daily-stock-analysis/internal/models"
	"daily-stock-analysis/internal/quote"
)

var _ quote.Recorder = (*Recorder)(nil)

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.FetchAttempt("tencent", quote.OutcomeError, 20*time.Millisecond)
	r.FetchAttempt("sina", quote.OutcomeSuccess, 30*time.Millisecond)
	r.CacheHit()
	r.SymbolUnavailable()
	r.Signal(models.ActionBuy)
	r.Decision(models.NotificationDecision{ShouldNotify: true})
	r.Decision(models.NotificationDecision{SuppressionReason: "cooldown"})
	r.Dispatch("telegram", false)
	r.Run(&models.RunSummary{StartedAt: time.Unix(1700000000, 0), Duration: 2 * time.Second, Abandoned: []string{"a", "b"}})

	if got := testutil.ToFloat64(r.fetchAttempts.WithLabelValues("tencent", quote.OutcomeError)); got != 1 {
		t.Errorf("tencent errors = %v", got)
	}
	if got := testutil.ToFloat64(r.cacheHits); got != 1 {
		t.Errorf("cache hits = %v", got)
	}
	if got := testutil.ToFloat64(r.decisions.WithLabelValues("false", "cooldown")); got != 1 {
		t.Errorf("cooldown decisions = %v", got)
	}
	if got := testutil.ToFloat64(r.dispatches.WithLabelValues("telegram", "failure")); got != 1 {
		t.Errorf("dispatch failures = %v", got)
	}
	if got := testutil.ToFloat64(r.abandoned); got != 2 {
		t.Errorf("abandoned = %v", got)
	}
	if got := testutil.ToFloat64(r.lastRunTimestamp); got != 1700000000 {
		t.Errorf("last run = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.Signal(models.ActionStrongBuy)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `intraday_signals_total{action="STRONG_BUY"} 1`) {
		t.Errorf("signals_total not exposed:\n%s", body)
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.CacheHit()
	if got := testutil.ToFloat64(b.cacheHits); got != 0 {
		t.Errorf("registries should not share state, got %v", got)
	}
}
