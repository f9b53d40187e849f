package sources

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"daily-stock-analysis/internal/models"
)

// PaperSource produces synthetic quotes following a seeded random walk per
// symbol. It is used for dry runs and tests without network access.
type PaperSource struct {
	seed int64
	now  func() time.Time

	mu    sync.Mutex
	walks map[string]*walk
}

type walk struct {
	rnd       *rand.Rand
	prevClose float64
	price     float64
	volume    int64
}

// NewPaperSource creates a paper source. The same seed yields the same
// sequence of quotes for a symbol.
func NewPaperSource(seed int64) *PaperSource {
	return &PaperSource{seed: seed, now: time.Now, walks: make(map[string]*walk)}
}

// WithClock replaces the timestamp clock.
func (s *PaperSource) WithClock(now func() time.Time) *PaperSource {
	s.now = now
	return s
}

// Name returns the source name.
func (s *PaperSource) Name() string { return Paper }

// GetQuote advances the symbol's walk by one step.
func (s *PaperSource) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.walks[symbol]
	if !ok {
		h := fnv.New64a()
		h.Write([]byte(symbol))
		sum := int64(h.Sum64() & math.MaxInt64)
		rnd := rand.New(rand.NewSource(s.seed ^ sum))
		base := 5 + rnd.Float64()*95
		w = &walk{rnd: rnd, prevClose: base, price: base}
		s.walks[symbol] = w
	}

	// Daily limit of +/-10% around the previous close
	step := w.rnd.NormFloat64() * 0.006 * w.price
	w.price = math.Max(w.prevClose*0.9, math.Min(w.prevClose*1.1, w.price+step))
	w.price = math.Round(w.price*100) / 100
	traded := int64(1000 + w.rnd.Intn(50000))
	w.volume += traded

	return &models.Quote{
		Symbol:    symbol,
		Name:      "PAPER " + symbol,
		LastPrice: w.price,
		PrevClose: w.prevClose,
		Volume:    w.volume,
		Turnover:  float64(w.volume) * w.price,
		Timestamp: s.now(),
		Source:    Paper,
	}, nil
}
