package travel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchcore/internal/model"
)

type brokenCalculator struct{ name string }

func (c brokenCalculator) Name() string { return c.name }
func (c brokenCalculator) Calculate(context.Context, model.TravelTimeRequest) (model.TravelTimeResult, error) {
	return model.TravelTimeResult{}, fmt.Errorf("%s unreachable", c.name)
}

func TestEstimateCalculatorDriving(t *testing.T) {
	res, err := EstimateCalculator{}.Calculate(context.Background(), testRequest())
	require.NoError(t, err)

	// roughly 0.45 km at 40 km/h with the urban factor and
	// intersection delay applied
	km := res.DistanceMeters / 1000
	expected := int(km/40*3600*1.3 + km*30)
	assert.Equal(t, expected, res.DurationSec)
	assert.Equal(t, "estimate", res.Provider)
	assert.False(t, res.Cached)
}

func TestEstimateCalculatorModeSpeeds(t *testing.T) {
	req := testRequest()

	req.Mode = model.ModeWalking
	walk, err := EstimateCalculator{}.Calculate(context.Background(), req)
	require.NoError(t, err)

	req.Mode = model.ModeCycling
	cycle, err := EstimateCalculator{}.Calculate(context.Background(), req)
	require.NoError(t, err)

	assert.Greater(t, walk.DurationSec, cycle.DurationSec)
	km := walk.DistanceMeters / 1000
	assert.Equal(t, int(km/5*3600), walk.DurationSec)
	assert.Equal(t, int(km/15*3600), cycle.DurationSec)
}

func TestManagerDefaultsToEstimate(t *testing.T) {
	m := NewManager(NewCache(NewMemoryStore(), time.Minute))
	res := m.GetTravelTime(context.Background(), testRequest())

	assert.Equal(t, "estimate", res.Provider)
	assert.Greater(t, res.DurationSec, 0)
}

func TestManagerDefaultsModeToDriving(t *testing.T) {
	m := NewManager(NewCache(NewMemoryStore(), time.Minute))
	req := testRequest()
	req.Mode = ""

	res := m.GetTravelTime(context.Background(), req)
	assert.Equal(t, model.ModeDriving, res.Mode)
}

func TestManagerAdvancesPastFailingProvider(t *testing.T) {
	cache := NewCache(NewMemoryStore(), time.Minute)
	m := NewManager(cache,
		NewProvider(brokenCalculator{name: "osrm"}, nil),
		NewProvider(EstimateCalculator{}, cache),
	)

	res := m.GetTravelTime(context.Background(), testRequest())
	assert.Equal(t, "estimate", res.Provider)
	assert.False(t, IsFallback(res))
}

func TestManagerAcceptsLastProviderFallback(t *testing.T) {
	m := NewManager(nil,
		NewProvider(brokenCalculator{name: "osrm"}, nil),
		NewProvider(brokenCalculator{name: "graphhopper"}, nil),
	)

	res := m.GetTravelTime(context.Background(), testRequest())
	assert.Equal(t, "graphhopper_fallback", res.Provider)
	assert.True(t, IsFallback(res))
	assert.Greater(t, res.DurationSec, 0)
}

func TestGetTravelMatrix(t *testing.T) {
	m := NewManager(NewCache(NewMemoryStore(), time.Minute))
	locations := []model.GeoPoint{
		{Lat: 45.42, Lng: -75.70},
		{Lat: 45.43, Lng: -75.68},
		{Lat: 45.44, Lng: -75.66},
	}

	times, dists := m.GetTravelMatrix(context.Background(), locations)
	require.Len(t, times, 3)
	require.Len(t, dists, 3)
	for i := 0; i < 3; i++ {
		assert.Zero(t, times[i][i])
		assert.Zero(t, dists[i][i])
		for j := 0; j < 3; j++ {
			if i != j {
				assert.Greater(t, times[i][j], 0)
				assert.Greater(t, dists[i][j], 0.0)
			}
		}
	}
}

func TestManagerStats(t *testing.T) {
	cache := NewCache(NewMemoryStore(), time.Minute)
	m := NewManager(cache)
	m.GetTravelTime(context.Background(), testRequest())

	stats := m.Stats()
	assert.Equal(t, 1, stats["totalProviders"])
	assert.NotNil(t, stats["providers"])
	assert.NotNil(t, stats["cache"])
}
