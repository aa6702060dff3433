package travel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchcore/internal/model"
)

func testRequest() model.TravelTimeRequest {
	return model.TravelTimeRequest{
		From: model.GeoPoint{Lat: 45.4215, Lng: -75.6972},
		To:   model.GeoPoint{Lat: 45.4236, Lng: -75.7023},
		Mode: model.ModeDriving,
	}
}

func TestCacheKeyRoundsCoordinates(t *testing.T) {
	a := testRequest()
	b := testRequest()
	// differences past the fourth decimal collapse into the same key
	b.From.Lat += 0.00004

	assert.Equal(t, CacheKey(a), CacheKey(b))

	c := testRequest()
	c.From.Lat += 0.001
	assert.NotEqual(t, CacheKey(a), CacheKey(c))
}

func TestCacheKeyHourBucket(t *testing.T) {
	base := testRequest()

	early := testRequest()
	at := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)
	early.DepartureTime = &at

	sameHour := testRequest()
	at2 := time.Date(2026, 3, 1, 9, 55, 0, 0, time.UTC)
	sameHour.DepartureTime = &at2

	nextHour := testRequest()
	at3 := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	nextHour.DepartureTime = &at3

	assert.NotEqual(t, CacheKey(base), CacheKey(early))
	assert.Equal(t, CacheKey(early), CacheKey(sameHour))
	assert.NotEqual(t, CacheKey(early), CacheKey(nextHour))
}

func TestCacheRoundTrip(t *testing.T) {
	cache := NewCache(NewMemoryStore(), time.Minute)
	req := testRequest()

	_, ok := cache.Get(context.Background(), req)
	require.False(t, ok)

	cache.Set(context.Background(), req, model.TravelTimeResult{
		DurationSec:    600,
		DistanceMeters: 4000,
		Mode:           model.ModeDriving,
		Provider:       "estimate",
	})

	res, ok := cache.Get(context.Background(), req)
	require.True(t, ok)
	assert.True(t, res.Cached)
	assert.Equal(t, 600, res.DurationSec)
	assert.Equal(t, "estimate", res.Provider)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats["hits"])
	assert.Equal(t, int64(1), stats["misses"])
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	store.Set(context.Background(), "k", model.TravelTimeResult{DurationSec: 1}, 10*time.Millisecond)

	_, ok := store.Get(context.Background(), "k")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = store.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestMemoryStorePrunesExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < memoryStoreLimit; i++ {
		store.Set(ctx, fmt.Sprintf("expired-%d", i), model.TravelTimeResult{}, time.Nanosecond)
	}
	time.Sleep(time.Millisecond)
	// crossing the limit sweeps the expired entries out
	store.Set(ctx, "fresh", model.TravelTimeResult{DurationSec: 5}, time.Minute)

	assert.Equal(t, 1, store.Len())
	_, ok := store.Get(ctx, "fresh")
	assert.True(t, ok)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	store := NewRedisStore(rdb)
	ctx := context.Background()

	_, ok := store.Get(ctx, "travel:missing")
	require.False(t, ok)

	store.Set(ctx, "travel:abc", model.TravelTimeResult{
		DurationSec:    420,
		DistanceMeters: 2800,
		Mode:           model.ModeCycling,
		Provider:       "osrm",
	}, time.Hour)

	res, ok := store.Get(ctx, "travel:abc")
	require.True(t, ok)
	assert.Equal(t, 420, res.DurationSec)
	assert.Equal(t, "osrm", res.Provider)

	srv.FastForward(2 * time.Hour)
	_, ok = store.Get(ctx, "travel:abc")
	assert.False(t, ok)
}

func TestProviderCachesSuccessfulResults(t *testing.T) {
	cache := NewCache(NewMemoryStore(), time.Minute)
	p := NewProvider(EstimateCalculator{}, cache)
	req := testRequest()

	first := p.GetTravelTime(context.Background(), req)
	require.False(t, first.Cached)

	second := p.GetTravelTime(context.Background(), req)
	assert.True(t, second.Cached)
	assert.Equal(t, first.DurationSec, second.DurationSec)
	assert.Equal(t, first.DistanceMeters, second.DistanceMeters)
	assert.Equal(t, first.Provider, second.Provider)
}
