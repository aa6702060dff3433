package travel

import (
	"context"
	"sync"

	"dispatchcore/internal/model"
)

// Manager drives the ordered provider chain. A provider's fallback-tagged
// result advances the chain; the final provider's result is always accepted.
type Manager struct {
	providers []*Provider
	cache     *Cache

	mu    sync.Mutex
	stats map[string]*chainStats
}

type chainStats struct {
	Success int64 `json:"success"`
	Failure int64 `json:"failure"`
}

func NewManager(cache *Cache, providers ...*Provider) *Manager {
	if len(providers) == 0 {
		providers = []*Provider{NewProvider(EstimateCalculator{}, cache)}
	}
	return &Manager{providers: providers, cache: cache, stats: map[string]*chainStats{}}
}

// GetTravelTime tries providers in configuration order.
func (m *Manager) GetTravelTime(ctx context.Context, req model.TravelTimeRequest) model.TravelTimeResult {
	if req.Mode == "" {
		req.Mode = model.ModeDriving
	}
	var res model.TravelTimeResult
	for i, p := range m.providers {
		res = p.GetTravelTime(ctx, req)
		if !IsFallback(res) {
			m.record(p.Name(), true)
			return res
		}
		m.record(p.Name(), false)
		if i == len(m.providers)-1 {
			// last in the chain: fallback or not, this is the answer
			return res
		}
	}
	return res
}

// GetTravelMatrix returns pairwise travel-time (seconds) and distance (km)
// matrices for the driving mode. The diagonal is zero.
func (m *Manager) GetTravelMatrix(ctx context.Context, locations []model.GeoPoint) ([][]int, [][]float64) {
	n := len(locations)
	times := make([][]int, n)
	dists := make([][]float64, n)
	for i := range times {
		times[i] = make([]int, n)
		dists[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			res := m.GetTravelTime(ctx, model.TravelTimeRequest{From: locations[i], To: locations[j], Mode: model.ModeDriving})
			times[i][j] = res.DurationSec
			dists[i][j] = res.DistanceMeters / 1000
		}
	}
	return times, dists
}

func (m *Manager) record(provider string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats[provider]
	if st == nil {
		st = &chainStats{}
		m.stats[provider] = st
	}
	if ok {
		st.Success++
	} else {
		st.Failure++
	}
}

// Stats aggregates chain outcomes, per-provider totals, and cache counters
// for the stats endpoint.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	chain := make(map[string]chainStats, len(m.stats))
	for k, v := range m.stats {
		chain[k] = *v
	}
	m.mu.Unlock()

	providers := make([]map[string]any, 0, len(m.providers))
	for _, p := range m.providers {
		providers = append(providers, map[string]any{"provider": p.Name(), "totals": p.Stats()})
	}
	out := map[string]any{
		"totalProviders": len(m.providers),
		"chain":          chain,
		"providers":      providers,
	}
	if m.cache != nil {
		out["cache"] = m.cache.Stats()
	}
	return out
}
