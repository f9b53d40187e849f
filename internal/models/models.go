// Package models provides domain models for the intraday watcher.
package models

import (
	"time"
)

// Quote represents a real-time market quote as returned by a data source.
// Quotes are never mutated after creation.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	LastPrice float64   `json:"last_price"`
	PrevClose float64   `json:"prev_close"`
	Volume    int64     `json:"volume"`
	Turnover  float64   `json:"turnover"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Change returns the absolute change against the previous close.
func (q Quote) Change() float64 {
	return q.LastPrice - q.PrevClose
}

// ChangePercent returns the percentage change against the previous close,
// or zero when the previous close is unknown.
func (q Quote) ChangePercent() float64 {
	if q.PrevClose == 0 {
		return 0
	}
	return (q.LastPrice - q.PrevClose) / q.PrevClose * 100
}

// Sample is one (price, volume) observation in a symbol's price series.
type Sample struct {
	Timestamp time.Time
	Price     float64
	Volume    int64
}

// SampleFromQuote converts a quote into a series sample.
func SampleFromQuote(q Quote) Sample {
	return Sample{
		Timestamp: q.Timestamp,
		Price:     q.LastPrice,
		Volume:    q.Volume,
	}
}

// SessionKey returns the trading session (calendar date) a timestamp belongs to
// in the given location, formatted as YYYY-MM-DD.
func SessionKey(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02")
}
