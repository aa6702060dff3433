package batch

import (
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"dispatchcore/internal/geo"
	"dispatchcore/internal/model"
)

// Defaults mirror the production dispatch configuration.
const (
	DefaultMaxBatchSize       = 8
	DefaultBatchWindowMinutes = 15
	DefaultMaxDeviationKm     = 5.0

	// consecutive batches of size <= 2 merge when their centroids are
	// within this distance
	mergeThresholdKm = 10.0

	pickupMinutesPerOrder   = 5
	deliveryMinutesPerOrder = 8
	travelMinutesPerOrder   = 12
)

// DefaultCorridorPoint is the Highway 7 artery reference used by the
// corridor-deviation filter (Ottawa region).
var DefaultCorridorPoint = model.GeoPoint{Lat: 45.38, Lng: -75.70}

// Config controls a GeoBatcher.
type Config struct {
	MaxBatchSize       int
	BatchWindowMinutes int
	CorridorPoint      model.GeoPoint
	Seed               int64
}

// GeoBatcher groups pending orders into geographically and temporally
// coherent batches. The clustering backend is injected: k-means in normal
// operation, grid partitioning as the deterministic fallback.
type GeoBatcher struct {
	cfg       Config
	clusterer Clusterer
}

func NewGeoBatcher(cfg Config, clusterer Clusterer) *GeoBatcher {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.BatchWindowMinutes <= 0 {
		cfg.BatchWindowMinutes = DefaultBatchWindowMinutes
	}
	if cfg.CorridorPoint == (model.GeoPoint{}) {
		cfg.CorridorPoint = DefaultCorridorPoint
	}
	if clusterer == nil {
		clusterer = GridClusterer{}
	}
	return &GeoBatcher{cfg: cfg, clusterer: clusterer}
}

// MaxBatchSize reports the configured batch size bound.
func (g *GeoBatcher) MaxBatchSize() int { return g.cfg.MaxBatchSize }

// CorridorPoint reports the corridor reference point.
func (g *GeoBatcher) CorridorPoint() model.GeoPoint { return g.cfg.CorridorPoint }

// CreateBatches groups orders into batches. Empty input or a fully
// time-window-expired input yields no batches; that is not an error.
// maxDeviationKm <= 0 selects the default corridor deviation.
func (g *GeoBatcher) CreateBatches(orders []model.Order, referenceTime time.Time, maxDeviationKm float64) []model.Batch {
	if len(orders) == 0 {
		return nil
	}
	if maxDeviationKm <= 0 {
		maxDeviationKm = DefaultMaxDeviationKm
	}

	eligible := g.filterByTimeWindow(orders, referenceTime)
	if len(eligible) == 0 {
		return nil
	}

	// Deterministic ordering: highest priority first, then oldest.
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	filtered := g.filterByCorridorDeviation(eligible, maxDeviationKm)
	if len(filtered) == 0 {
		log.Printf("batch: corridor filter (%.1f km) removed all %d orders, using unfiltered set", maxDeviationKm, len(eligible))
		filtered = eligible
	}

	nClusters := g.clusterCount(len(filtered))
	clusters := g.clusterer.Cluster(filtered, nClusters)
	clusters = g.validateClusterDeviation(clusters, maxDeviationKm)
	balanced := g.balance(clusters)
	merged := g.mergeSmall(balanced)

	batches := make([]model.Batch, 0, len(merged))
	for _, group := range merged {
		if len(group) == 0 {
			continue
		}
		b := model.Batch{
			ID:        uuid.New().String(),
			Orders:    group,
			Center:    geo.Centroid(group),
			CreatedAt: referenceTime,
		}
		b.EstimatedDurationMinutes = estimateDuration(group)
		batches = append(batches, b)
	}
	return batches
}

func (g *GeoBatcher) filterByTimeWindow(orders []model.Order, referenceTime time.Time) []model.Order {
	windowStart := referenceTime.Add(-time.Duration(g.cfg.BatchWindowMinutes) * time.Minute)
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if !o.CreatedAt.Before(windowStart) {
			out = append(out, o)
		}
	}
	return out
}

// filterByCorridorDeviation drops orders whose pickup and delivery are both
// farther than maxDeviationKm from the corridor reference point.
func (g *GeoBatcher) filterByCorridorDeviation(orders []model.Order, maxDeviationKm float64) []model.Order {
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		pickupDev := geo.HaversineKm(o.Pickup, g.cfg.CorridorPoint)
		deliveryDev := geo.HaversineKm(o.Delivery, g.cfg.CorridorPoint)
		if pickupDev <= maxDeviationKm || deliveryDev <= maxDeviationKm {
			out = append(out, o)
		}
	}
	return out
}

func (g *GeoBatcher) clusterCount(n int) int {
	if n <= g.cfg.MaxBatchSize {
		return 1
	}
	half := g.cfg.MaxBatchSize / 2
	if half < 1 {
		half = 1
	}
	k := n / half
	if k < 1 {
		k = 1
	}
	return k
}

// validateClusterDeviation rejects clusters whose centroid strays from the
// corridor, unless that would reject every cluster.
func (g *GeoBatcher) validateClusterDeviation(clusters [][]model.Order, maxDeviationKm float64) [][]model.Order {
	valid := make([][]model.Order, 0, len(clusters))
	for _, cl := range clusters {
		if len(cl) == 0 {
			continue
		}
		center := geo.Centroid(cl)
		if geo.HaversineKm(center, g.cfg.CorridorPoint) <= maxDeviationKm {
			valid = append(valid, cl)
		}
	}
	if len(valid) == 0 {
		return clusters
	}
	if len(valid) < len(clusters) {
		log.Printf("batch: corridor validation dropped %d of %d clusters", len(clusters)-len(valid), len(clusters))
	}
	return valid
}

func (g *GeoBatcher) balance(clusters [][]model.Order) [][]model.Order {
	out := make([][]model.Order, 0, len(clusters))
	for _, cl := range clusters {
		if len(cl) <= g.cfg.MaxBatchSize {
			out = append(out, cl)
			continue
		}
		for i := 0; i < len(cl); i += g.cfg.MaxBatchSize {
			end := i + g.cfg.MaxBatchSize
			if end > len(cl) {
				end = len(cl)
			}
			out = append(out, cl[i:end])
		}
	}
	return out
}

// mergeSmall pairwise-merges consecutive batches of size <= 2 when the
// combined batch stays within the size bound and the centroids are close.
func (g *GeoBatcher) mergeSmall(batches [][]model.Order) [][]model.Order {
	if len(batches) <= 1 {
		return batches
	}
	out := make([][]model.Order, 0, len(batches))
	i := 0
	for i < len(batches) {
		cur := batches[i]
		if len(cur) <= 2 && i+1 < len(batches) {
			next := batches[i+1]
			if len(cur)+len(next) <= g.cfg.MaxBatchSize {
				d := geo.HaversineKm(geo.Centroid(cur), geo.Centroid(next))
				if d <= mergeThresholdKm {
					merged := append(append([]model.Order{}, cur...), next...)
					out = append(out, merged)
					i += 2
					continue
				}
			}
		}
		out = append(out, cur)
		i++
	}
	return out
}

func estimateDuration(orders []model.Order) int {
	if len(orders) == 0 {
		return 0
	}
	maxPrep := 0
	for _, o := range orders {
		if o.PrepTimeMinutes > maxPrep {
			maxPrep = o.PrepTimeMinutes
		}
	}
	n := len(orders)
	return maxPrep + n*pickupMinutesPerOrder + n*deliveryMinutesPerOrder + n*travelMinutesPerOrder
}
