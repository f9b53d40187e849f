// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"daily-stock-analysis/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Samples
	SaveSample(ctx context.Context, symbol, source string, sample models.Sample) error
	History(ctx context.Context, symbol string, before time.Time, sessions int) ([]models.Sample, error)
	VolumeBaseline(ctx context.Context, symbol string, at time.Time, sessions int, window time.Duration) (float64, error)
	PruneSamples(ctx context.Context, before time.Time) (int64, error)

	// Signals
	SaveSignal(ctx context.Context, decision models.NotificationDecision) error
	GetSignals(ctx context.Context, filter SignalFilter) ([]SignalRecord, error)

	// Runs
	SaveRun(ctx context.Context, summary *models.RunSummary) error
	GetRuns(ctx context.Context, limit int) ([]models.RunSummary, error)

	// Lifecycle
	Close() error
}

// SignalFilter represents filters for querying stored signals.
type SignalFilter struct {
	Symbol       string
	Since        time.Time
	NotifiedOnly bool
	Limit        int
}

// SignalRecord is a persisted signal with its filter outcome.
type SignalRecord struct {
	ID                int64
	Symbol            string
	Action            models.Action
	Score             int
	Reasons           []string
	Indicators        models.IndicatorSnapshot
	Price             float64
	ComputedAt        time.Time
	Notified          bool
	SuppressionReason string
}
