package batch

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchcore/internal/model"
)

func testBatcher(maxSize int) *GeoBatcher {
	return NewGeoBatcher(Config{MaxBatchSize: maxSize, BatchWindowMinutes: 15, Seed: 42}, NewKMeansClusterer(42))
}

func corridorOrder(id string, latOff, lngOff float64, createdAt time.Time) model.Order {
	return model.Order{
		ID:              id,
		Pickup:          model.GeoPoint{Lat: 45.38 + latOff, Lng: -75.70 + lngOff},
		Delivery:        model.GeoPoint{Lat: 45.39 + latOff, Lng: -75.68 + lngOff},
		CreatedAt:       createdAt,
		Priority:        1,
		PrepTimeMinutes: 15,
	}
}

func TestCreateBatchesEmptyInput(t *testing.T) {
	b := testBatcher(4)
	assert.Empty(t, b.CreateBatches(nil, time.Now(), 0))
}

func TestTimeWindowFiltering(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orders := []model.Order{
		corridorOrder("old", 0, 0, now.Add(-30*time.Minute)),
		corridorOrder("recent", 0.01, 0.01, now.Add(-5*time.Minute)),
	}
	batches := testBatcher(4).CreateBatches(orders, now, 10)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Orders, 1)
	assert.Equal(t, "recent", batches[0].Orders[0].ID)
}

func TestTimeWindowCanEmptyTheSet(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orders := []model.Order{
		corridorOrder("old1", 0, 0, now.Add(-40*time.Minute)),
		corridorOrder("old2", 0.01, 0, now.Add(-16*time.Minute)),
	}
	assert.Empty(t, testBatcher(4).CreateBatches(orders, now, 10))
}

func TestBatchSizeBound(t *testing.T) {
	now := time.Now()
	var orders []model.Order
	for i := 0; i < 20; i++ {
		orders = append(orders, corridorOrder(fmt.Sprintf("o%d", i), float64(i)*0.005, float64(i)*0.005, now.Add(-time.Duration(i)*time.Minute/2)))
	}
	batches := testBatcher(4).CreateBatches(orders, now, 25)
	require.NotEmpty(t, batches)
	total := 0
	for _, b := range batches {
		assert.GreaterOrEqual(t, len(b.Orders), 1)
		assert.LessOrEqual(t, len(b.Orders), 4)
		total += len(b.Orders)
	}
	assert.Equal(t, 20, total)
}

func TestCreateBatchesDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var orders []model.Order
	for i := 0; i < 12; i++ {
		orders = append(orders, corridorOrder(fmt.Sprintf("o%d", i), float64(i%4)*0.01, float64(i%3)*0.01, now.Add(-time.Duration(i)*time.Minute)))
	}
	membership := func(batches []model.Batch) [][]string {
		out := make([][]string, len(batches))
		for i, b := range batches {
			for _, o := range b.Orders {
				out[i] = append(out[i], o.ID)
			}
		}
		return out
	}
	first := testBatcher(4).CreateBatches(orders, now, 25)
	second := testBatcher(4).CreateBatches(orders, now, 25)
	assert.Equal(t, membership(first), membership(second))
}

func TestPrioritySortOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	low := corridorOrder("low", 0, 0, now.Add(-10*time.Minute))
	low.Priority = 1
	high := corridorOrder("high", 0.001, 0.001, now.Add(-5*time.Minute))
	high.Priority = 9
	batches := testBatcher(4).CreateBatches([]model.Order{low, high}, now, 10)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Orders, 2)
	assert.Equal(t, "high", batches[0].Orders[0].ID)
	assert.Equal(t, "low", batches[0].Orders[1].ID)
}

func TestCorridorFallbackSafety(t *testing.T) {
	now := time.Now()
	// All orders far from the corridor reference point.
	far := []model.Order{
		{ID: "far1", Pickup: model.GeoPoint{Lat: 46.0, Lng: -74.0}, Delivery: model.GeoPoint{Lat: 46.1, Lng: -73.9}, CreatedAt: now, Priority: 1},
		{ID: "far2", Pickup: model.GeoPoint{Lat: 46.1, Lng: -74.1}, Delivery: model.GeoPoint{Lat: 46.2, Lng: -74.0}, CreatedAt: now, Priority: 1},
	}
	batches := testBatcher(4).CreateBatches(far, now, 5)
	require.NotEmpty(t, batches)
	total := 0
	for _, b := range batches {
		total += len(b.Orders)
	}
	assert.Equal(t, 2, total)
}

func TestCorridorFilterDropsFarOrders(t *testing.T) {
	now := time.Now()
	near := corridorOrder("near", 0, 0, now)
	farOrder := model.Order{
		ID:        "far",
		Pickup:    model.GeoPoint{Lat: 45.50, Lng: -75.50},
		Delivery:  model.GeoPoint{Lat: 45.51, Lng: -75.48},
		CreatedAt: now,
		Priority:  1,
	}
	batches := testBatcher(4).CreateBatches([]model.Order{near, farOrder}, now, 5)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Orders, 1)
	assert.Equal(t, "near", batches[0].Orders[0].ID)
}

func TestSmallMaxBatchSizeBoundary(t *testing.T) {
	now := time.Now()
	var orders []model.Order
	for i := 0; i < 6; i++ {
		orders = append(orders, corridorOrder(fmt.Sprintf("o%d", i), float64(i)*0.02, float64(i)*0.02, now))
	}
	for _, maxSize := range []int{1, 2} {
		batches := testBatcher(maxSize).CreateBatches(orders, now, 25)
		require.NotEmpty(t, batches, "maxBatchSize=%d", maxSize)
		for _, b := range batches {
			assert.LessOrEqual(t, len(b.Orders), maxSize, "maxBatchSize=%d", maxSize)
			assert.GreaterOrEqual(t, len(b.Orders), 1)
		}
	}
}

func TestEstimateDuration(t *testing.T) {
	now := time.Now()
	orders := []model.Order{
		corridorOrder("a", 0, 0, now),
		corridorOrder("b", 0.001, 0.001, now),
	}
	orders[0].PrepTimeMinutes = 20
	orders[1].PrepTimeMinutes = 10
	// max(prep) + 5n + 8n + 12n = 20 + 10 + 16 + 24
	assert.Equal(t, 70, estimateDuration(orders))
}

func TestGridClustererDeterministic(t *testing.T) {
	var orders []model.Order
	for i := 0; i < 9; i++ {
		orders = append(orders, model.Order{
			ID:     fmt.Sprintf("o%d", i),
			Pickup: model.GeoPoint{Lat: 45.0 + float64(i%3)*0.1, Lng: -75.0 + float64(i/3)*0.1},
		})
	}
	g := GridClusterer{}
	first := g.Cluster(orders, 4)
	second := g.Cluster(orders, 4)
	assert.Equal(t, first, second)
	total := 0
	for _, cl := range first {
		total += len(cl)
	}
	assert.Equal(t, len(orders), total)
}

func TestClustererTrivialWhenFewOrders(t *testing.T) {
	orders := []model.Order{
		{ID: "a", Pickup: model.GeoPoint{Lat: 45.0, Lng: -75.0}},
		{ID: "b", Pickup: model.GeoPoint{Lat: 45.1, Lng: -75.1}},
	}
	for _, c := range []Clusterer{NewKMeansClusterer(42), GridClusterer{}} {
		clusters := c.Cluster(orders, 3)
		require.Len(t, clusters, 2)
		assert.Len(t, clusters[0], 1)
		assert.Len(t, clusters[1], 1)
	}
}

func TestKMeansClustererSeparatesGroups(t *testing.T) {
	var orders []model.Order
	for i := 0; i < 4; i++ {
		orders = append(orders, model.Order{ID: fmt.Sprintf("w%d", i), Pickup: model.GeoPoint{Lat: 45.38, Lng: -75.70 + float64(i)*0.001}})
	}
	for i := 0; i < 4; i++ {
		orders = append(orders, model.Order{ID: fmt.Sprintf("e%d", i), Pickup: model.GeoPoint{Lat: 45.38, Lng: -75.40 + float64(i)*0.001}})
	}
	clusters := NewKMeansClusterer(42).Cluster(orders, 2)
	require.Len(t, clusters, 2)
	for _, cl := range clusters {
		prefix := cl[0].ID[:1]
		for _, o := range cl {
			assert.Equal(t, prefix, o.ID[:1], "cluster mixes the two pickup groups")
		}
	}
}
