package indicators

import (
	"sync"
	"time"

	"daily-stock-analysis/internal/models"
)

// Config holds the indicator parameters.
type Config struct {
	MAPeriods  [3]int // MA5, MA10, MA20
	RSIPeriod  int
	MACD       MACD
	MaxSamples int // series length cap
	Location   *time.Location
}

// DefaultConfig returns the default indicator parameters.
func DefaultConfig() Config {
	return Config{
		MAPeriods:  [3]int{5, 10, 20},
		RSIPeriod:  12,
		MACD:       DefaultMACD(),
		MaxSamples: 500,
		Location:   time.Local,
	}
}

type series struct {
	session string
	prices  []float64
	// cumulative volumes observed in the current session only
	volumes []int64
	last    time.Time // timestamp of the latest live sample
}

// Engine keeps one price series per symbol and derives snapshots from it.
// It is safe for concurrent use across symbols.
type Engine struct {
	cfg Config

	mu     sync.Mutex
	series map[string]*series
}

// NewEngine creates an indicator engine.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MAPeriods == [3]int{} {
		cfg.MAPeriods = def.MAPeriods
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.MACD == (MACD{}) {
		cfg.MACD = def.MACD
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = def.MaxSamples
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return &Engine{cfg: cfg, series: make(map[string]*series)}
}

// NeedsSeed reports whether the symbol has no series for session yet.
func (e *Engine) NeedsSeed(symbol, session string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.series[symbol]
	return !ok || s.session != session
}

// Seed replaces the symbol's series with history for session. History holds
// samples of prior sessions, oldest first.
func (e *Engine) Seed(symbol, session string, history []models.Sample) {
	prices := make([]float64, 0, len(history))
	for _, h := range history {
		if h.Price > 0 {
			prices = append(prices, h.Price)
		}
	}
	if len(prices) > e.cfg.MaxSamples {
		prices = prices[len(prices)-e.cfg.MaxSamples:]
	}

	e.mu.Lock()
	e.series[symbol] = &series{session: session, prices: prices}
	e.mu.Unlock()
}

// Reset drops the symbol's series.
func (e *Engine) Reset(symbol string) {
	e.mu.Lock()
	delete(e.series, symbol)
	e.mu.Unlock()
}

// Len returns the number of samples held for symbol.
func (e *Engine) Len(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.series[symbol]; ok {
		return len(s.prices)
	}
	return 0
}

// Update appends the quote to the symbol's series and returns the resulting
// snapshot. A quote from a different session than the series starts a new,
// empty series. A quote no newer than the latest sample, such as a cached
// quote seen at a second checkpoint, is not appended again. baseline is the
// average cumulative volume at the same time of day on prior sessions, or
// zero when unknown.
func (e *Engine) Update(symbol string, q models.Quote, baseline float64) models.IndicatorSnapshot {
	session := models.SessionKey(q.Timestamp, e.cfg.Location)

	e.mu.Lock()
	s, ok := e.series[symbol]
	if !ok || s.session != session {
		s = &series{session: session}
		e.series[symbol] = s
	}
	if s.last.IsZero() || q.Timestamp.After(s.last) {
		s.prices = append(s.prices, q.LastPrice)
		s.volumes = append(s.volumes, q.Volume)
		s.last = q.Timestamp
		if n := len(s.prices); n > e.cfg.MaxSamples {
			s.prices = append([]float64(nil), s.prices[n-e.cfg.MaxSamples:]...)
		}
		if n := len(s.volumes); n > e.cfg.MaxSamples {
			s.volumes = append([]int64(nil), s.volumes[n-e.cfg.MaxSamples:]...)
		}
	}
	prices := append([]float64(nil), s.prices...)
	volumes := append([]int64(nil), s.volumes...)
	e.mu.Unlock()

	return e.cfg.Snapshot(prices, volumes, baseline)
}

// Snapshot computes every indicator for the latest sample of prices.
// volumes are the cumulative volumes of the current session.
func (c Config) Snapshot(prices []float64, volumes []int64, baseline float64) models.IndicatorSnapshot {
	snap := models.IndicatorSnapshot{MACD: models.MACDNone}
	if len(prices) == 0 {
		return snap
	}

	if v, err := SMA(prices, c.MAPeriods[0]); err == nil {
		snap.MA5 = models.Float(v)
	}
	if v, err := SMA(prices, c.MAPeriods[1]); err == nil {
		snap.MA10 = models.Float(v)
	}
	if v, err := SMA(prices, c.MAPeriods[2]); err == nil {
		snap.MA20 = models.Float(v)
	}

	snap.MACD = c.MACD.Cross(prices)

	if v, err := RSI(prices, c.RSIPeriod); err == nil {
		snap.RSI = models.Float(v)
	}

	if len(volumes) > 0 {
		if baseline > 0 {
			if v, err := VolumeRatio(float64(volumes[len(volumes)-1]), baseline); err == nil {
				snap.VolumeRatio = models.Float(v)
			}
		} else if v, err := IntradayVolumeRatio(volumes); err == nil {
			snap.VolumeRatio = models.Float(v)
		}
	}

	if snap.MA5 != nil {
		if v, err := Bias(prices[len(prices)-1], *snap.MA5); err == nil {
			snap.BiasMA5 = models.Float(v)
		}
	}

	return snap
}
