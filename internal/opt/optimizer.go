package opt

import (
	"context"
	"log"
	"math"
	"time"

	"dispatchcore/internal/geo"
	"dispatchcore/internal/metrics"
	"dispatchcore/internal/model"
)

const (
	// Route-level timing model: average speed plus fixed per-stop
	// handling time.
	routeSpeedKmh      = 25.0
	stopHandlingMin    = 8
	pickupServiceSec   = 5 * 60
	deliveryServiceSec = 8 * 60

	defaultVehicleCapacity = 10
	defaultMaxDurationSec  = 8 * 3600

	defaultTwoOptIterations = 100
	vrpOrderThreshold       = 3
)

// OptimizerConfig tunes the heuristic path.
type OptimizerConfig struct {
	TwoOptIterations int
	VehicleCapacity  int
}

func (c OptimizerConfig) withDefaults() OptimizerConfig {
	if c.TwoOptIterations <= 0 {
		c.TwoOptIterations = defaultTwoOptIterations
	}
	if c.VehicleCapacity <= 0 {
		c.VehicleCapacity = defaultVehicleCapacity
	}
	return c
}

// Optimizer turns a batch into an ordered route. The heuristic path runs
// nearest-neighbor plus 2-opt over straight-line distances; the vrp path
// delegates to the solver and falls back to the heuristic when the solver
// cannot produce a plan.
type Optimizer struct {
	cfg    OptimizerConfig
	solver *VRPSolver
}

// NewOptimizer wires the optimizer. solver may be nil, which disables the
// vrp path entirely.
func NewOptimizer(cfg OptimizerConfig, solver *VRPSolver) *Optimizer {
	return &Optimizer{cfg: cfg.withDefaults(), solver: solver}
}

// OptimizeRoute plans the stop sequence for one batch. algorithm is one of
// auto, heuristic or vrp; auto picks vrp for three or more orders when a
// solver backend is available.
func (o *Optimizer) OptimizeRoute(ctx context.Context, batch model.Batch, vehicleStart *model.GeoPoint, algorithm string) model.Route {
	if algorithm == "" {
		algorithm = model.AlgorithmAuto
	}
	start := time.Now()
	route := o.optimize(ctx, batch, vehicleStart, algorithm)
	metrics.OptimizeDuration.WithLabelValues(route.OptimizationAlgorithm).Observe(time.Since(start).Seconds())
	return route
}

func (o *Optimizer) optimize(ctx context.Context, batch model.Batch, vehicleStart *model.GeoPoint, algorithm string) model.Route {
	if len(batch.Orders) == 0 {
		return model.Route{
			BatchID:               batch.ID,
			Stops:                 []model.RouteStop{},
			OptimizationAlgorithm: "heuristic_2opt",
			OptimizationScore:     100,
		}
	}

	useVRP := algorithm == model.AlgorithmVRP ||
		(algorithm == model.AlgorithmAuto && len(batch.Orders) >= vrpOrderThreshold && o.solver != nil && o.solver.HasBackend())
	if useVRP && o.solver != nil {
		if route, ok := o.solveVRPRoute(ctx, batch, vehicleStart); ok {
			return route
		}
		log.Printf("vrp path failed for batch %s, reverting to heuristic", batch.ID)
		route := o.heuristicRoute(batch, vehicleStart)
		route.OptimizationAlgorithm = "heuristic_2opt_fallback"
		return route
	}
	return o.heuristicRoute(batch, vehicleStart)
}

// heuristicRoute solves an open tour over every pickup and delivery point,
// then regroups the visit order so all pickups precede all deliveries while
// keeping each group's tour order.
func (o *Optimizer) heuristicRoute(batch model.Batch, vehicleStart *model.GeoPoint) model.Route {
	depot := batch.Center
	if vehicleStart != nil {
		depot = *vehicleStart
	}
	points := make([]model.GeoPoint, 0, 1+2*len(batch.Orders))
	points = append(points, depot)
	type ref struct {
		order    *model.Order
		stopType string
	}
	refs := make([]ref, 0, 2*len(batch.Orders))
	for i := range batch.Orders {
		points = append(points, batch.Orders[i].Pickup)
		refs = append(refs, ref{&batch.Orders[i], model.StopPickup})
	}
	for i := range batch.Orders {
		points = append(points, batch.Orders[i].Delivery)
		refs = append(refs, ref{&batch.Orders[i], model.StopDelivery})
	}

	matrix := geo.DistanceMatrixKm(points)
	tour := NearestNeighborTour(matrix, 0)
	tour = ImproveTour2Opt(matrix, tour, o.cfg.TwoOptIterations)

	// drop the depot, then pickups first in tour order, deliveries after
	var pickups, deliveries []int
	for _, idx := range tour {
		if idx == 0 {
			continue
		}
		if refs[idx-1].stopType == model.StopPickup {
			pickups = append(pickups, idx)
		} else {
			deliveries = append(deliveries, idx)
		}
	}
	visit := append(pickups, deliveries...)

	stops := make([]model.RouteStop, 0, len(visit))
	totalKm := 0.0
	prev := 0
	for i, idx := range visit {
		totalKm += matrix[prev][idx]
		r := refs[idx-1]
		stops = append(stops, model.RouteStop{
			OrderID:                 r.order.ID,
			StopType:                r.stopType,
			Location:                points[idx],
			Sequence:                i,
			EstimatedArrivalMinutes: int(totalKm/routeSpeedKmh*60) + stopHandlingMin*i,
		})
		prev = idx
	}

	return model.Route{
		BatchID:                  batch.ID,
		Stops:                    stops,
		TotalDistanceKm:          math.Round(totalKm*100) / 100,
		EstimatedDurationMinutes: routeDuration(totalKm, len(stops)),
		OptimizationAlgorithm:    "heuristic_2opt",
		OptimizationScore:        routeScore(totalKm),
	}
}

func (o *Optimizer) solveVRPRoute(ctx context.Context, batch model.Batch, vehicleStart *model.GeoPoint) (model.Route, bool) {
	depot := batch.Center
	if vehicleStart != nil {
		depot = *vehicleStart
	}
	stops := make([]Stop, 0, 2*len(batch.Orders))
	for _, ord := range batch.Orders {
		stops = append(stops, Stop{
			ID:             ord.ID + ":pickup",
			OrderID:        ord.ID,
			StopType:       model.StopPickup,
			Location:       ord.Pickup,
			ServiceTimeSec: pickupServiceSec,
			Priority:       ord.Priority,
		})
		stops = append(stops, Stop{
			ID:             ord.ID + ":delivery",
			OrderID:        ord.ID,
			StopType:       model.StopDelivery,
			Location:       ord.Delivery,
			ServiceTimeSec: deliveryServiceSec,
			Priority:       ord.Priority,
		})
	}
	vehicle := model.Vehicle{
		ID:             "vehicle-1",
		Start:          &depot,
		Capacity:       o.cfg.VehicleCapacity,
		MaxDurationSec: defaultMaxDurationSec,
	}
	results, err := o.solver.SolveVRP(ctx, []model.Vehicle{vehicle}, stops)
	if err != nil || len(results) == 0 {
		if err != nil {
			log.Printf("vrp solve for batch %s: %v", batch.ID, err)
		}
		return model.Route{}, false
	}
	res := results[0]
	routeStops := make([]model.RouteStop, 0, len(res.Stops))
	for _, s := range res.Stops {
		routeStops = append(routeStops, model.RouteStop{
			OrderID:                 s.Stop.OrderID,
			StopType:                s.Stop.StopType,
			Location:                s.Stop.Location,
			Sequence:                s.Sequence,
			EstimatedArrivalMinutes: s.ArrivalSec / 60,
		})
	}
	return model.Route{
		BatchID:                  batch.ID,
		Stops:                    routeStops,
		TotalDistanceKm:          res.TotalDistanceKm,
		EstimatedDurationMinutes: res.TotalDurationMinutes,
		OptimizationAlgorithm:    res.Algorithm,
		OptimizationScore:        res.OptimizationScore,
	}, true
}

func routeDuration(totalKm float64, stopCount int) int {
	return int(totalKm/routeSpeedKmh*60) + stopHandlingMin*stopCount
}

// routeScore maps route length to a 50..100 quality score.
func routeScore(totalKm float64) float64 {
	score := 100 - 2*totalKm
	if score < 50 {
		score = 50
	}
	if score > 100 {
		score = 100
	}
	return math.Round(score*10) / 10
}
