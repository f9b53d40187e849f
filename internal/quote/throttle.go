package quote

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Throttle spaces live calls to the same source by a random interval in
// [min, max]. Concurrent callers reserve consecutive slots.
type Throttle struct {
	min, max time.Duration

	mu    sync.Mutex
	next  map[string]time.Time
	rnd   *rand.Rand
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewThrottle creates a throttle. Zero bounds disable spacing.
func NewThrottle(min, max time.Duration) *Throttle {
	if max < min {
		max = min
	}
	return &Throttle{
		min:   min,
		max:   max,
		next:  make(map[string]time.Time),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
		sleep: sleepContext,
	}
}

// WithClock replaces the clock and sleep function, for tests.
func (t *Throttle) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Throttle {
	t.now = now
	t.sleep = sleep
	return t
}

// WithSeed makes the spacing sequence deterministic.
func (t *Throttle) WithSeed(seed int64) *Throttle {
	t.rnd = rand.New(rand.NewSource(seed))
	return t
}

// Wait blocks until the source may be called again, then reserves the
// following slot. It returns early with the context error on cancellation.
func (t *Throttle) Wait(ctx context.Context, source string) error {
	if t == nil || t.max <= 0 {
		return nil
	}

	t.mu.Lock()
	now := t.now()
	start := now
	if at, ok := t.next[source]; ok && at.After(now) {
		start = at
	}
	t.next[source] = start.Add(t.spacing())
	t.mu.Unlock()

	if wait := start.Sub(now); wait > 0 {
		return t.sleep(ctx, wait)
	}
	return nil
}

func (t *Throttle) spacing() time.Duration {
	if t.max == t.min {
		return t.min
	}
	return t.min + time.Duration(t.rnd.Int63n(int64(t.max-t.min)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
