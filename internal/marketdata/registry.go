package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry dispatches fetches to the source registered under the data source id
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds or replaces the source for id
func (r *Registry) Register(id string, source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[id] = source
}

// IDs returns the registered ids in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FetchHistoricalData implements Source
func (r *Registry) FetchHistoricalData(ctx context.Context, start, end time.Time, dataSourceID string) (*Dataset, error) {
	r.mu.RLock()
	source, ok := r.sources[dataSourceID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, dataSourceID)
	}
	return source.FetchHistoricalData(ctx, start, end, dataSourceID)
}
