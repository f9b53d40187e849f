package models

import (
	"fmt"
	"time"
)

// Action is the discrete recommendation derived from a signal score.
type Action string

const (
	ActionStrongBuy  Action = "STRONG_BUY"
	ActionBuy        Action = "BUY"
	ActionHold       Action = "HOLD"
	ActionWait       Action = "WAIT"
	ActionSell       Action = "SELL"
	ActionStrongSell Action = "STRONG_SELL"
)

// AllActions lists every action from most bullish to most bearish.
var AllActions = []Action{
	ActionStrongBuy,
	ActionBuy,
	ActionHold,
	ActionWait,
	ActionSell,
	ActionStrongSell,
}

// ParseAction parses an action name.
func ParseAction(s string) (Action, error) {
	for _, a := range AllActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// IsBuy reports whether the action is on the buy side.
func (a Action) IsBuy() bool {
	return a == ActionStrongBuy || a == ActionBuy
}

// IsSell reports whether the action is on the sell side.
func (a Action) IsSell() bool {
	return a == ActionStrongSell || a == ActionSell
}

// MACDState is the cross state of the MACD line against its signal line.
type MACDState string

const (
	MACDGoldenCross MACDState = "golden_cross"
	MACDDeadCross   MACDState = "dead_cross"
	MACDNone        MACDState = "none"
)

// IndicatorSnapshot holds the technicals derived for one quote.
// Nil pointers mark indicators that could not be computed from the available history.
type IndicatorSnapshot struct {
	MA5         *float64  `json:"ma5,omitempty"`
	MA10        *float64  `json:"ma10,omitempty"`
	MA20        *float64  `json:"ma20,omitempty"`
	MACD        MACDState `json:"macd_state"`
	RSI         *float64  `json:"rsi,omitempty"`
	VolumeRatio *float64  `json:"volume_ratio,omitempty"`
	BiasMA5     *float64  `json:"bias_ma5,omitempty"`
}

// Empty reports whether no indicator could be computed.
func (s IndicatorSnapshot) Empty() bool {
	return s.MA5 == nil && s.MA10 == nil && s.MA20 == nil &&
		(s.MACD == "" || s.MACD == MACDNone) &&
		s.RSI == nil && s.VolumeRatio == nil && s.BiasMA5 == nil
}

// Float returns a pointer to v, for populating optional indicator values.
func Float(v float64) *float64 {
	return &v
}

// Signal is the scored result for one symbol at one checkpoint.
type Signal struct {
	Symbol     string            `json:"symbol"`
	Action     Action            `json:"action"`
	Score      int               `json:"score"`
	Reasons    []string          `json:"reasons"`
	Indicators IndicatorSnapshot `json:"indicators"`
	Quote      Quote             `json:"quote"`
	ComputedAt time.Time         `json:"computed_at"`
}

// NotificationDecision records whether a signal should be surfaced.
type NotificationDecision struct {
	Signal            Signal `json:"signal"`
	ShouldNotify      bool   `json:"should_notify"`
	SuppressionReason string `json:"suppression_reason,omitempty"`
}
