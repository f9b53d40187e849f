package quote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/models"
)

// fakeSource returns a fixed quote or error and counts calls.
type fakeSource struct {
	name  string
	price float64
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &models.Quote{Symbol: symbol, Name: "Test", LastPrice: s.price, PrevClose: s.price, Volume: 1000}, nil
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingRecorder struct {
	mu          sync.Mutex
	attempts    map[string]int
	hits        int
	unavailable int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{attempts: make(map[string]int)}
}

func (r *countingRecorder) FetchAttempt(source, outcome string, _ time.Duration) {
	r.mu.Lock()
	r.attempts[source+"/"+outcome]++
	r.mu.Unlock()
}

func (r *countingRecorder) CacheHit() {
	r.mu.Lock()
	r.hits++
	r.mu.Unlock()
}

func (r *countingRecorder) SymbolUnavailable() {
	r.mu.Lock()
	r.unavailable++
	r.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 10, 13, 9, 30, 0, 0, time.UTC)}
}

func TestFetchFallsBackInOrder(t *testing.T) {
	a := &fakeSource{name: "a", err: errors.New("down")}
	b := &fakeSource{name: "b", price: 12.5}
	c := &fakeSource{name: "c", price: 99}

	f := NewFetcher([]Source{a, b, c}, Options{Logger: zerolog.Nop()})
	q, err := f.Fetch(context.Background(), "sh600519")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Source != "b" || q.LastPrice != 12.5 {
		t.Errorf("got quote from %s at %v, want b at 12.5", q.Source, q.LastPrice)
	}
	if a.Calls() != 1 || b.Calls() != 1 || c.Calls() != 0 {
		t.Errorf("calls a=%d b=%d c=%d, want 1 1 0", a.Calls(), b.Calls(), c.Calls())
	}
}

func TestFetchAllFail(t *testing.T) {
	a := &fakeSource{name: "a", err: errors.New("refused")}
	b := &fakeSource{name: "b", err: apperrors.ErrSymbolNotFound}
	rec := newCountingRecorder()

	f := NewFetcher([]Source{a, b}, Options{Logger: zerolog.Nop(), Recorder: rec})
	_, err := f.Fetch(context.Background(), "sz000001")
	if !errors.Is(err, apperrors.ErrNoDataAvailable) {
		t.Fatalf("err = %v, want ErrNoDataAvailable", err)
	}
	var fe *apperrors.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err is not a FetchError: %T", err)
	}
	if len(fe.Attempts) != 2 || fe.Attempts[0].Source != "a" || fe.Attempts[1].Source != "b" {
		t.Errorf("attempts = %v", fe.Attempts)
	}
	if !errors.Is(err, apperrors.ErrSymbolNotFound) {
		t.Error("per-source causes should be reachable through errors.Is")
	}
	if rec.unavailable != 1 {
		t.Errorf("unavailable = %d, want 1", rec.unavailable)
	}
}

func TestFetchNoSources(t *testing.T) {
	f := NewFetcher(nil, Options{Logger: zerolog.Nop()})
	if _, err := f.Fetch(context.Background(), "x"); !errors.Is(err, apperrors.ErrNoDataAvailable) {
		t.Errorf("err = %v, want ErrNoDataAvailable", err)
	}
}

func TestFetchTimeoutAdvances(t *testing.T) {
	slow := &fakeSource{name: "slow", price: 1, delay: time.Second}
	fast := &fakeSource{name: "fast", price: 2}

	f := NewFetcher([]Source{slow, fast}, Options{Logger: zerolog.Nop(), Timeout: 20 * time.Millisecond})
	q, err := f.Fetch(context.Background(), "x")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Source != "fast" {
		t.Errorf("source = %s, want fast", q.Source)
	}
}

func TestFetchRejectsMalformedQuote(t *testing.T) {
	zero := &fakeSource{name: "zero", price: 0}
	good := &fakeSource{name: "good", price: 3}

	f := NewFetcher([]Source{zero, good}, Options{Logger: zerolog.Nop()})
	q, err := f.Fetch(context.Background(), "x")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Source != "good" {
		t.Errorf("source = %s, want good", q.Source)
	}
}

func TestCacheTTLBoundary(t *testing.T) {
	clock := newClock()
	src := &fakeSource{name: "a", price: 10}
	rec := newCountingRecorder()
	ttl := 10 * time.Minute

	f := NewFetcher([]Source{src}, Options{
		Logger:   zerolog.Nop(),
		Cache:    NewMemoryCache(clock.Now),
		CacheTTL: ttl,
		Now:      clock.Now,
		Recorder: rec,
	})
	ctx := context.Background()

	if _, err := f.Fetch(ctx, "x"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	clock.Advance(ttl - time.Nanosecond)
	if _, err := f.Fetch(ctx, "x"); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if src.Calls() != 1 {
		t.Fatalf("calls = %d before expiry, want 1", src.Calls())
	}
	if rec.hits != 1 {
		t.Errorf("cache hits = %d, want 1", rec.hits)
	}

	// Exactly at stored_at + ttl the entry is stale.
	clock.Advance(time.Nanosecond)
	if _, err := f.Fetch(ctx, "x"); err != nil {
		t.Fatalf("third fetch: %v", err)
	}
	if src.Calls() != 2 {
		t.Errorf("calls = %d at expiry, want 2", src.Calls())
	}
}

func TestInvalidate(t *testing.T) {
	src := &fakeSource{name: "a", price: 10}
	f := NewFetcher([]Source{src}, Options{Logger: zerolog.Nop(), Cache: NewMemoryCache(nil)})
	ctx := context.Background()

	f.Fetch(ctx, "x")
	if err := f.Invalidate(ctx, "x"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	f.Fetch(ctx, "x")
	if src.Calls() != 2 {
		t.Errorf("calls = %d, want 2 after invalidation", src.Calls())
	}
}

func TestThrottleNotAppliedOnCacheHit(t *testing.T) {
	clock := newClock()
	var slept []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		clock.Advance(d)
		return nil
	}
	throttle := NewThrottle(2*time.Second, 3*time.Second).WithClock(clock.Now, sleep).WithSeed(7)
	src := &fakeSource{name: "a", price: 10}

	f := NewFetcher([]Source{src}, Options{
		Logger:   zerolog.Nop(),
		Cache:    NewMemoryCache(clock.Now),
		Throttle: throttle,
		Now:      clock.Now,
	})
	ctx := context.Background()

	f.Fetch(ctx, "x") // live, no previous call so no wait
	f.Fetch(ctx, "x") // cache hit
	f.Fetch(ctx, "y") // live, must wait
	if len(slept) != 1 {
		t.Fatalf("slept %d times, want 1", len(slept))
	}
	if slept[0] < 2*time.Second || slept[0] > 3*time.Second {
		t.Errorf("spacing %s outside [2s, 3s]", slept[0])
	}
}

func TestThrottleSpacingWithinBounds(t *testing.T) {
	clock := newClock()
	var total time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		total += d
		return nil
	}
	th := NewThrottle(time.Second, 2*time.Second).WithClock(clock.Now, sleep).WithSeed(1)
	ctx := context.Background()

	// Five reservations at the same instant queue up four spacings.
	for i := 0; i < 5; i++ {
		if err := th.Wait(ctx, "a"); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	// Waits are 1x, 2x, 3x, 4x accumulated spacings: between 10s and 20s total.
	if total < 10*time.Second || total > 20*time.Second {
		t.Errorf("total wait %s outside expected range", total)
	}

	// Different sources do not share spacing.
	total = 0
	if err := th.Wait(ctx, "b"); err != nil || total != 0 {
		t.Errorf("first call to another source waited %s", total)
	}
}

func TestBreakerSkipsOpenSource(t *testing.T) {
	clock := newClock()
	bad := &fakeSource{name: "bad", err: errors.New("down")}
	good := &fakeSource{name: "good", price: 5}
	rec := newCountingRecorder()

	f := NewFetcher([]Source{bad, good}, Options{
		Logger:   zerolog.Nop(),
		Breaker:  BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute},
		Now:      clock.Now,
		Recorder: rec,
	})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := f.Fetch(ctx, fmt.Sprintf("s%d", i)); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if bad.Calls() != 2 {
		t.Errorf("bad source called %d times, want 2 before opening", bad.Calls())
	}
	if f.Breaker("bad").State() != CircuitOpen {
		t.Errorf("state = %s, want OPEN", f.Breaker("bad").State())
	}
	if rec.attempts["bad/skipped"] != 2 {
		t.Errorf("skipped = %d, want 2", rec.attempts["bad/skipped"])
	}

	// After the cooldown one trial call is let through.
	clock.Advance(time.Minute)
	f.Fetch(ctx, "trial")
	if bad.Calls() != 3 {
		t.Errorf("bad source called %d times, want 3 after cooldown", bad.Calls())
	}
	if f.Breaker("bad").State() != CircuitOpen {
		t.Errorf("failed trial should reopen the breaker, got %s", f.Breaker("bad").State())
	}
}

func TestRegistrySelect(t *testing.T) {
	r := NewRegistry(&fakeSource{name: "a"}, &fakeSource{name: "b"})
	got, err := r.Select([]string{"b", "a"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got[0].Name() != "b" || got[1].Name() != "a" {
		t.Errorf("order = %s,%s", got[0].Name(), got[1].Name())
	}
	if _, err := r.Select([]string{"missing"}); !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("err = %v, want config error", err)
	}
	if _, err := r.Select([]string{"a", "b", "a"}); !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("err = %v, want config error for a duplicate source", err)
	}
}

// Property: with k failing sources ahead of one working source, exactly k+1
// sources are queried and the working source's quote is returned.
func TestProperty_FallbackAttemptCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("k failures then success queries k+1 sources", prop.ForAll(
		func(k int, extra int) bool {
			var srcs []*fakeSource
			for i := 0; i < k; i++ {
				srcs = append(srcs, &fakeSource{name: fmt.Sprintf("bad%d", i), err: errors.New("fail")})
			}
			srcs = append(srcs, &fakeSource{name: "good", price: 42})
			for i := 0; i < extra; i++ {
				srcs = append(srcs, &fakeSource{name: fmt.Sprintf("spare%d", i), price: 1})
			}

			list := make([]Source, len(srcs))
			for i, s := range srcs {
				list[i] = s
			}
			f := NewFetcher(list, Options{Logger: zerolog.Nop()})
			q, err := f.Fetch(context.Background(), "x")
			if err != nil || q.Source != "good" {
				return false
			}

			called := 0
			for _, s := range srcs {
				called += s.Calls()
			}
			return called == k+1
		},
		gen.IntRange(0, 6),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

// The Redis cache needs a live server; set INTRADAY_TEST_REDIS_ADDR to run it.
func TestRedisCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("INTRADAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("INTRADAY_TEST_REDIS_ADDR not set")
	}

	clock := newClock()
	cache := NewRedisCache(RedisConfig{Addr: addr, KeyPrefix: fmt.Sprintf("test:%d:", time.Now().UnixNano())})
	cache.now = clock.Now
	defer cache.Close()

	ctx := context.Background()
	if err := cache.Ping(ctx); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	q := &models.Quote{Symbol: "sh600519", LastPrice: 1500, Source: "tencent"}
	if err := cache.Set(ctx, q, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := cache.Get(ctx, "sh600519")
	if err != nil || !ok || got.LastPrice != 1500 {
		t.Fatalf("Get = %v, %v, %v", got, ok, err)
	}

	clock.Advance(time.Minute)
	if _, ok, _ := cache.Get(ctx, "sh600519"); ok {
		t.Error("entry should be stale at stored_at + ttl")
	}
	cache.Delete(ctx, "sh600519")
}
