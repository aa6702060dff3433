package travel

import (
	"context"
	"log"
	"strings"
	"sync/atomic"

	"dispatchcore/internal/geo"
	"dispatchcore/internal/metrics"
	"dispatchcore/internal/model"
)

// calculator is the provider-specific part: one computed travel-time answer
// or an error. Errors never reach the caller; the wrapping Provider converts
// them into a haversine fallback result.
type calculator interface {
	Name() string
	Calculate(ctx context.Context, req model.TravelTimeRequest) (model.TravelTimeResult, error)
}

// Provider wraps a calculator with cache lookup, fallback conversion, and
// request/error accounting.
type Provider struct {
	calc  calculator
	cache *Cache

	requests atomic.Int64
	errors   atomic.Int64
}

func NewProvider(calc calculator, cache *Cache) *Provider {
	return &Provider{calc: calc, cache: cache}
}

func (p *Provider) Name() string { return p.calc.Name() }

// GetTravelTime answers from the cache when possible, otherwise computes and
// caches. A failed computation yields the provider's fallback estimate
// tagged "<name>_fallback".
func (p *Provider) GetTravelTime(ctx context.Context, req model.TravelTimeRequest) model.TravelTimeResult {
	p.requests.Add(1)
	if p.cache != nil {
		if res, ok := p.cache.Get(ctx, req); ok {
			metrics.TravelCacheLookups.WithLabelValues("hit").Inc()
			return res
		}
		metrics.TravelCacheLookups.WithLabelValues("miss").Inc()
	}

	res, err := p.calc.Calculate(ctx, req)
	if err != nil {
		p.errors.Add(1)
		log.Printf("travel: provider %s failed, using haversine estimate: %v", p.Name(), err)
		metrics.TravelProviderRequests.WithLabelValues(p.Name(), "error").Inc()
		return fallbackResult(p.Name(), req)
	}
	metrics.TravelProviderRequests.WithLabelValues(p.Name(), "ok").Inc()
	if p.cache != nil {
		p.cache.Set(ctx, req, res)
	}
	return res
}

// Stats reports running request/error totals.
func (p *Provider) Stats() map[string]int64 {
	return map[string]int64{
		"requests": p.requests.Load(),
		"errors":   p.errors.Load(),
	}
}

// IsFallback reports whether a result came from a provider's internal
// haversine fallback rather than its real backend.
func IsFallback(res model.TravelTimeResult) bool {
	return strings.HasSuffix(res.Provider, "_fallback")
}

// modeSpeedKmh are the straight-line speed assumptions per transport mode.
var modeSpeedKmh = map[string]float64{
	model.ModeDriving: 40,
	model.ModeWalking: 5,
	model.ModeCycling: 15,
}

func speedForMode(mode string) float64 {
	if v, ok := modeSpeedKmh[mode]; ok {
		return v
	}
	return modeSpeedKmh[model.ModeDriving]
}

// fallbackResult is the shared haversine-based estimate used when a
// provider's own computation fails.
func fallbackResult(providerName string, req model.TravelTimeRequest) model.TravelTimeResult {
	distanceKm := geo.HaversineKm(req.From, req.To)
	durationSec := int(distanceKm / speedForMode(req.Mode) * 3600)
	return model.TravelTimeResult{
		DurationSec:    durationSec,
		DistanceMeters: distanceKm * 1000,
		Mode:           req.Mode,
		Provider:       providerName + "_fallback",
	}
}
