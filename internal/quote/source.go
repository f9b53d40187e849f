// Package quote obtains real-time quotes from an ordered list of sources,
// falling back on failure and caching successes.
package quote

import (
	"context"
	"fmt"
	"sync"

	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/models"
)

// Source is a real-time quote provider.
type Source interface {
	Name() string
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// Registry holds the available sources by name.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry pre-populated with the given sources.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a source.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get returns the source registered under name.
func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Select returns the sources named in priority order. A name may appear
// only once.
func (r *Registry) Select(names []string) ([]Source, error) {
	out := make([]Source, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, apperrors.NewValidationError("fetcher.sources", name, "duplicate source")
		}
		seen[name] = true
		s, ok := r.Get(name)
		if !ok {
			return nil, apperrors.NewValidationError("fetcher.sources", name, fmt.Sprintf("source %q is not registered", name))
		}
		out = append(out, s)
	}
	return out, nil
}
