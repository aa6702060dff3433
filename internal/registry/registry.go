// Package registry keeps the dispatch working set in memory: batches and
// their optimized routes, indexed for the read endpoints. The core stays
// stateless across restarts; the registry only serves lookups within a
// process lifetime.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"dispatchcore/internal/model"
)

var ErrNotFound = errors.New("not found")

type Registry struct {
	mu      sync.Mutex
	batches map[string]model.Batch
	routes  map[string]model.Route // keyed by batch id
	order   []string               // batch ids in insertion order
}

func New() *Registry {
	return &Registry{
		batches: map[string]model.Batch{},
		routes:  map[string]model.Route{},
	}
}

// PutBatches records a batching run's output.
func (r *Registry) PutBatches(batches []model.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range batches {
		if _, seen := r.batches[b.ID]; !seen {
			r.order = append(r.order, b.ID)
		}
		r.batches[b.ID] = b
	}
}

func (r *Registry) GetBatch(id string) (model.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return model.Batch{}, ErrNotFound
	}
	return b, nil
}

// ListBatches returns batches newest first.
func (r *Registry) ListBatches(limit int) []model.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.order) {
		limit = len(r.order)
	}
	out := make([]model.Batch, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.batches[r.order[i]])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) PutRoute(route model.Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[route.BatchID] = route
}

func (r *Registry) GetRoute(batchID string) (model.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.routes[batchID]
	if !ok {
		return model.Route{}, ErrNotFound
	}
	return rt, nil
}

// PruneOlderThan drops batches created before the cutoff along with their
// routes and reports how many were removed.
func (r *Registry) PruneOlderThan(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		b := r.batches[id]
		if b.CreatedAt.Before(cutoff) {
			delete(r.batches, id)
			delete(r.routes, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}

// Stats reports registry sizes.
func (r *Registry) Stats() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]int{"batches": len(r.batches), "routes": len(r.routes)}
}
