package model

import "time"

// Core domain types for the dispatch pipeline.

// GeoPoint is a lat/lng pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Order is one delivery request. Immutable once created.
type Order struct {
	ID              string    `json:"id"`
	Pickup          GeoPoint  `json:"pickup"`
	Delivery        GeoPoint  `json:"delivery"`
	CreatedAt       time.Time `json:"createdAt"`
	Priority        int       `json:"priority"`        // 1..10, higher wins the sort
	PrepTimeMinutes int       `json:"prepTimeMinutes"` // non-negative
}

// Batch groups orders assigned to a single vehicle trip.
type Batch struct {
	ID                       string    `json:"id"`
	Orders                   []Order   `json:"orders"`
	Center                   GeoPoint  `json:"center"`
	CreatedAt                time.Time `json:"createdAt"`
	EstimatedDurationMinutes int       `json:"estimatedDurationMinutes"`
}

// Stop kinds.
const (
	StopPickup   = "pickup"
	StopDelivery = "delivery"
	StopDepot    = "depot"
)

// RouteStop is one stop in an optimized route.
type RouteStop struct {
	OrderID                 string   `json:"orderId"`
	StopType                string   `json:"stopType"`
	Location                GeoPoint `json:"location"`
	Sequence                int      `json:"sequence"`
	EstimatedArrivalMinutes int      `json:"estimatedArrivalMinutes"`
}

// Route is the optimization output for one batch. Never mutated after creation.
type Route struct {
	BatchID                  string      `json:"batchId"`
	Stops                    []RouteStop `json:"stops"`
	TotalDistanceKm          float64     `json:"totalDistanceKm"`
	EstimatedDurationMinutes int         `json:"estimatedDurationMinutes"`
	OptimizationAlgorithm    string      `json:"optimizationAlgorithm"`
	OptimizationScore        float64     `json:"optimizationScore"`
}

// Vehicle is a delivery vehicle available to the VRP solver.
type Vehicle struct {
	ID             string    `json:"id"`
	Start          *GeoPoint `json:"start,omitempty"`
	End            *GeoPoint `json:"end,omitempty"`
	Capacity       int       `json:"capacity"`       // max simultaneous open pickups
	MaxDurationSec int       `json:"maxDurationSec"` // max route duration
}

// Transport modes understood by the travel-time providers.
const (
	ModeDriving = "driving"
	ModeWalking = "walking"
	ModeCycling = "cycling"
)

// TravelTimeRequest asks for the travel cost between two points.
type TravelTimeRequest struct {
	From          GeoPoint   `json:"from"`
	To            GeoPoint   `json:"to"`
	Mode          string     `json:"mode"`
	DepartureTime *time.Time `json:"departureTime,omitempty"`
}

// TravelTimeResult is the answer from a provider (or the cache).
type TravelTimeResult struct {
	DurationSec    int     `json:"durationSec"`
	DistanceMeters float64 `json:"distanceMeters"`
	Mode           string  `json:"mode"`
	Provider       string  `json:"provider"`
	Cached         bool    `json:"cached"`
}

// API request/response shapes. The HTTP layer is a thin boundary over the
// core contracts; nothing here is persisted.

type BatchRequest struct {
	Orders             []OrderIn `json:"orders"`
	ReferenceTime      string    `json:"referenceTime,omitempty"` // RFC3339
	MaxBatchSize       int       `json:"maxBatchSize,omitempty"`
	BatchWindowMinutes int       `json:"batchWindowMinutes,omitempty"`
	MaxDeviationKm     float64   `json:"maxDeviationKm,omitempty"`
}

type OrderIn struct {
	ID              string   `json:"id"`
	Pickup          GeoPoint `json:"pickup"`
	Delivery        GeoPoint `json:"delivery"`
	CreatedAt       string   `json:"createdAt,omitempty"` // RFC3339, defaults to referenceTime
	Priority        int      `json:"priority,omitempty"`
	PrepTimeMinutes int      `json:"prepTimeMinutes,omitempty"`
}

type BatchResponse struct {
	Batches      []Batch `json:"batches"`
	TotalOrders  int     `json:"totalOrders"`
	TotalBatches int     `json:"totalBatches"`
	AvgBatchSize float64 `json:"avgBatchSize"`
}

// Algorithm selectors for RouteRequest.
const (
	AlgorithmAuto      = "auto"
	AlgorithmHeuristic = "heuristic"
	AlgorithmVRP       = "vrp"
)

type RouteRequest struct {
	BatchID      string    `json:"batchId"`
	Orders       []OrderIn `json:"orders"`
	VehicleStart *GeoPoint `json:"vehicleStart,omitempty"`
	Algorithm    string    `json:"algorithm,omitempty"` // auto | heuristic | vrp
}

type RouteResponse struct {
	Route  Route          `json:"route"`
	Solver map[string]any `json:"solver,omitempty"`
}
