package batch

import (
	"math"
	"math/rand"
	"sort"

	"dispatchcore/internal/geo"
	"dispatchcore/internal/model"
)

// Clusterer partitions orders into at most k groups by pickup location.
// Implementations must be deterministic for a fixed construction seed.
type Clusterer interface {
	Cluster(orders []model.Order, k int) [][]model.Order
}

// KMeansClusterer runs Lloyd's algorithm over pickup coordinates with a
// fixed seed. Empty clusters are dropped from the result.
type KMeansClusterer struct {
	Seed          int64
	MaxIterations int
}

func NewKMeansClusterer(seed int64) *KMeansClusterer {
	return &KMeansClusterer{Seed: seed, MaxIterations: 50}
}

func (c *KMeansClusterer) Cluster(orders []model.Order, k int) [][]model.Order {
	if len(orders) <= k {
		out := make([][]model.Order, 0, len(orders))
		for _, o := range orders {
			out = append(out, []model.Order{o})
		}
		return out
	}

	rng := rand.New(rand.NewSource(c.Seed))
	centers := make([]model.GeoPoint, k)
	for i, idx := range rng.Perm(len(orders))[:k] {
		centers[i] = orders[idx].Pickup
	}

	maxIter := c.MaxIterations
	if maxIter <= 0 {
		maxIter = 50
	}
	assign := make([]int, len(orders))
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, o := range orders {
			best, bestDist := 0, math.MaxFloat64
			for ci, ctr := range centers {
				if d := geo.HaversineKm(o.Pickup, ctr); d < bestDist {
					best, bestDist = ci, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		// recompute centers as the mean pickup of each cluster
		var sumLat, sumLng = make([]float64, k), make([]float64, k)
		counts := make([]int, k)
		for i, o := range orders {
			ci := assign[i]
			sumLat[ci] += o.Pickup.Lat
			sumLng[ci] += o.Pickup.Lng
			counts[ci]++
		}
		for ci := range centers {
			if counts[ci] > 0 {
				centers[ci] = model.GeoPoint{Lat: sumLat[ci] / float64(counts[ci]), Lng: sumLng[ci] / float64(counts[ci])}
			}
		}
	}

	clusters := make([][]model.Order, k)
	for i, o := range orders {
		clusters[assign[i]] = append(clusters[assign[i]], o)
	}
	out := make([][]model.Order, 0, k)
	for _, cl := range clusters {
		if len(cl) > 0 {
			out = append(out, cl)
		}
	}
	return out
}

// GridClusterer is the deterministic fallback: it divides the pickup
// bounding box into ceil(sqrt(k))^2 cells and groups orders by cell.
type GridClusterer struct{}

func (GridClusterer) Cluster(orders []model.Order, k int) [][]model.Order {
	if len(orders) <= k {
		out := make([][]model.Order, 0, len(orders))
		for _, o := range orders {
			out = append(out, []model.Order{o})
		}
		return out
	}

	minLat, maxLat := orders[0].Pickup.Lat, orders[0].Pickup.Lat
	minLng, maxLng := orders[0].Pickup.Lng, orders[0].Pickup.Lng
	for _, o := range orders[1:] {
		minLat = math.Min(minLat, o.Pickup.Lat)
		maxLat = math.Max(maxLat, o.Pickup.Lat)
		minLng = math.Min(minLng, o.Pickup.Lng)
		maxLng = math.Max(maxLng, o.Pickup.Lng)
	}

	gridSize := int(math.Ceil(math.Sqrt(float64(k))))
	latStep := (maxLat - minLat) / float64(gridSize)
	lngStep := (maxLng - minLng) / float64(gridSize)

	cells := map[[2]int][]model.Order{}
	for _, o := range orders {
		var gi, gj int
		if latStep > 0 {
			gi = int((o.Pickup.Lat - minLat) / latStep)
		}
		if lngStep > 0 {
			gj = int((o.Pickup.Lng - minLng) / lngStep)
		}
		if gi > gridSize-1 {
			gi = gridSize - 1
		}
		if gj > gridSize-1 {
			gj = gridSize - 1
		}
		key := [2]int{gi, gj}
		cells[key] = append(cells[key], o)
	}

	// map iteration order is not stable; emit cells row-major
	keys := make([][2]int, 0, len(cells))
	for key := range cells {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	out := make([][]model.Order, 0, len(keys))
	for _, key := range keys {
		out = append(out, cells[key])
	}
	return out
}
