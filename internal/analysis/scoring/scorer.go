// Package scoring turns an indicator snapshot into a scored, discrete action.
package scoring

import (
	"fmt"
	"time"

	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/models"
)

const (
	// Baseline is the score before any rule is applied.
	Baseline = 50

	// ReasonInsufficientHistory is the only reason given for an empty snapshot.
	ReasonInsufficientHistory = "insufficient history"
)

// Thresholds are the band boundaries mapping a score to an action:
// score >= StrongBuy is STRONG_BUY, >= Buy is BUY, <= StrongSell is
// STRONG_SELL, <= Sell is SELL, anything between Sell and Buy is HOLD or WAIT.
type Thresholds struct {
	StrongBuy  int
	Buy        int
	Sell       int
	StrongSell int
}

// DefaultThresholds returns the default bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StrongBuy:  80,
		Buy:        65,
		Sell:       35,
		StrongSell: 20,
	}
}

// Validate checks that the bands are strictly ordered inside [0, 100] so
// they partition the score range without gaps or overlaps.
func (t Thresholds) Validate() error {
	if t.StrongSell < 0 || t.StrongBuy > 100 {
		return apperrors.NewValidationError("scoring", t, "thresholds must lie within [0, 100]")
	}
	if !(t.StrongSell < t.Sell && t.Sell < t.Buy && t.Buy < t.StrongBuy) {
		return apperrors.NewValidationError("scoring", t, "thresholds must satisfy strong_sell < sell < buy < strong_buy")
	}
	return nil
}

// ActionFor maps a score to its action. bullish selects HOLD over WAIT in
// the neutral band.
func (t Thresholds) ActionFor(score int, bullish bool) models.Action {
	switch {
	case score >= t.StrongBuy:
		return models.ActionStrongBuy
	case score >= t.Buy:
		return models.ActionBuy
	case score <= t.StrongSell:
		return models.ActionStrongSell
	case score <= t.Sell:
		return models.ActionSell
	case bullish:
		return models.ActionHold
	default:
		return models.ActionWait
	}
}

// Rule is one entry of the scoring table. Delta and Reason are only
// consulted when Applies is true.
type Rule struct {
	Name    string
	Applies func(s models.IndicatorSnapshot) bool
	Delta   func(s models.IndicatorSnapshot) int
	Reason  func(s models.IndicatorSnapshot) string
}

func fixed(d int) func(models.IndicatorSnapshot) int {
	return func(models.IndicatorSnapshot) int { return d }
}

func bullishAlignment(s models.IndicatorSnapshot) bool {
	return s.MA5 != nil && s.MA10 != nil && s.MA20 != nil && *s.MA5 > *s.MA10 && *s.MA10 > *s.MA20
}

func bearishAlignment(s models.IndicatorSnapshot) bool {
	return s.MA5 != nil && s.MA10 != nil && s.MA20 != nil && *s.MA5 < *s.MA10 && *s.MA10 < *s.MA20
}

// DefaultRules returns the rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "ma_bullish",
			Applies: bullishAlignment,
			Delta:   fixed(15),
			Reason: func(s models.IndicatorSnapshot) string {
				return fmt.Sprintf("bullish MA alignment (MA5 %.2f > MA10 %.2f > MA20 %.2f)", *s.MA5, *s.MA10, *s.MA20)
			},
		},
		{
			Name:    "ma_bearish",
			Applies: bearishAlignment,
			Delta:   fixed(-15),
			Reason: func(s models.IndicatorSnapshot) string {
				return fmt.Sprintf("bearish MA alignment (MA5 %.2f < MA10 %.2f < MA20 %.2f)", *s.MA5, *s.MA10, *s.MA20)
			},
		},
		{
			Name:    "macd_golden",
			Applies: func(s models.IndicatorSnapshot) bool { return s.MACD == models.MACDGoldenCross },
			Delta:   fixed(15),
			Reason:  func(models.IndicatorSnapshot) string { return "MACD golden_cross" },
		},
		{
			Name:    "macd_dead",
			Applies: func(s models.IndicatorSnapshot) bool { return s.MACD == models.MACDDeadCross },
			Delta:   fixed(-15),
			Reason:  func(models.IndicatorSnapshot) string { return "MACD dead_cross" },
		},
		{
			Name:    "rsi_overbought",
			Applies: func(s models.IndicatorSnapshot) bool { return s.RSI != nil && *s.RSI > 70 },
			Delta:   fixed(-10),
			Reason:  func(s models.IndicatorSnapshot) string { return fmt.Sprintf("RSI overbought (%.1f)", *s.RSI) },
		},
		{
			Name:    "rsi_oversold",
			Applies: func(s models.IndicatorSnapshot) bool { return s.RSI != nil && *s.RSI < 30 },
			// Halved when the MAs are bearishly aligned.
			Delta: func(s models.IndicatorSnapshot) int {
				if bearishAlignment(s) {
					return 5
				}
				return 10
			},
			Reason: func(s models.IndicatorSnapshot) string { return fmt.Sprintf("RSI oversold (%.1f)", *s.RSI) },
		},
		{
			Name: "volume_surge",
			Applies: func(s models.IndicatorSnapshot) bool {
				return s.VolumeRatio != nil && *s.VolumeRatio > 3.0 && s.BiasMA5 != nil && *s.BiasMA5 != 0
			},
			Delta: func(s models.IndicatorSnapshot) int {
				if *s.BiasMA5 > 0 {
					return 10
				}
				return -10
			},
			Reason: func(s models.IndicatorSnapshot) string {
				dir := "above"
				if *s.BiasMA5 < 0 {
					dir = "below"
				}
				return fmt.Sprintf("volume surge %.1fx with price %s MA5", *s.VolumeRatio, dir)
			},
		},
		{
			Name:    "bias_high",
			Applies: func(s models.IndicatorSnapshot) bool { return s.BiasMA5 != nil && *s.BiasMA5 > 5 },
			Delta:   fixed(-5),
			Reason:  func(s models.IndicatorSnapshot) string { return fmt.Sprintf("price %.1f%% above MA5", *s.BiasMA5) },
		},
		{
			Name:    "bias_low",
			Applies: func(s models.IndicatorSnapshot) bool { return s.BiasMA5 != nil && *s.BiasMA5 < -5 },
			Delta:   fixed(5),
			Reason:  func(s models.IndicatorSnapshot) string { return fmt.Sprintf("price %.1f%% below MA5", -*s.BiasMA5) },
		},
	}
}

// Result is the outcome of classifying one snapshot.
type Result struct {
	Action  models.Action
	Score   int
	Reasons []string
}

// Classifier applies a rule table and maps the score to an action.
type Classifier struct {
	rules      []Rule
	thresholds Thresholds
}

// NewClassifier creates a classifier with the default rule table.
func NewClassifier(thresholds Thresholds) *Classifier {
	return NewClassifierWithRules(thresholds, DefaultRules())
}

// NewClassifierWithRules creates a classifier with a custom rule table.
func NewClassifierWithRules(thresholds Thresholds, rules []Rule) *Classifier {
	return &Classifier{rules: rules, thresholds: thresholds}
}

// Thresholds returns the band boundaries.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify scores a snapshot. Every rule is evaluated in order; the sum is
// clamped to [0, 100] only at the end.
func (c *Classifier) Classify(s models.IndicatorSnapshot) Result {
	if s.Empty() {
		return Result{
			Action:  models.ActionWait,
			Score:   Baseline,
			Reasons: []string{ReasonInsufficientHistory},
		}
	}

	score := Baseline
	positive := false
	reasons := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		if !r.Applies(s) {
			continue
		}
		d := r.Delta(s)
		score += d
		if d > 0 {
			positive = true
		}
		reasons = append(reasons, r.Reason(s))
	}

	score = clampScore(score)
	return Result{
		Action:  c.thresholds.ActionFor(score, positive),
		Score:   score,
		Reasons: reasons,
	}
}

// Signal classifies a snapshot and wraps it with its quote.
func (c *Classifier) Signal(q models.Quote, s models.IndicatorSnapshot, now time.Time) models.Signal {
	r := c.Classify(s)
	return models.Signal{
		Symbol:     q.Symbol,
		Action:     r.Action,
		Score:      r.Score,
		Reasons:    r.Reasons,
		Indicators: s,
		Quote:      q,
		ComputedAt: now,
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
