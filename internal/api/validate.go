package api

import (
	"fmt"
	"time"

	"dispatchcore/internal/model"
)

const (
	minPriority     = 1
	maxPriority     = 10
	maxPrepMinutes  = 120
	maxBatchOrders  = 1000
	maxBatchSizeCap = 100
)

func validatePoint(name string, p model.GeoPoint) error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%s latitude %.6f out of range [-90, 90]", name, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%s longitude %.6f out of range [-180, 180]", name, p.Lng)
	}
	return nil
}

func validateOrderIn(i int, o model.OrderIn) error {
	if o.ID == "" {
		return fmt.Errorf("orders[%d]: id required", i)
	}
	if err := validatePoint(fmt.Sprintf("orders[%d].pickup", i), o.Pickup); err != nil {
		return err
	}
	if err := validatePoint(fmt.Sprintf("orders[%d].delivery", i), o.Delivery); err != nil {
		return err
	}
	if o.Priority != 0 && (o.Priority < minPriority || o.Priority > maxPriority) {
		return fmt.Errorf("orders[%d]: priority %d out of range [%d, %d]", i, o.Priority, minPriority, maxPriority)
	}
	if o.PrepTimeMinutes < 0 || o.PrepTimeMinutes > maxPrepMinutes {
		return fmt.Errorf("orders[%d]: prepTimeMinutes %d out of range [0, %d]", i, o.PrepTimeMinutes, maxPrepMinutes)
	}
	if o.CreatedAt != "" {
		if _, err := time.Parse(time.RFC3339, o.CreatedAt); err != nil {
			return fmt.Errorf("orders[%d]: createdAt: %v", i, err)
		}
	}
	return nil
}

func validateBatchRequest(req *model.BatchRequest) error {
	if len(req.Orders) == 0 {
		return fmt.Errorf("orders required")
	}
	if len(req.Orders) > maxBatchOrders {
		return fmt.Errorf("too many orders: %d > %d", len(req.Orders), maxBatchOrders)
	}
	for i, o := range req.Orders {
		if err := validateOrderIn(i, o); err != nil {
			return err
		}
	}
	if req.MaxBatchSize < 0 || req.MaxBatchSize > maxBatchSizeCap {
		return fmt.Errorf("maxBatchSize %d out of range [0, %d]", req.MaxBatchSize, maxBatchSizeCap)
	}
	if req.BatchWindowMinutes < 0 {
		return fmt.Errorf("batchWindowMinutes must be non-negative")
	}
	if req.MaxDeviationKm < 0 {
		return fmt.Errorf("maxDeviationKm must be non-negative")
	}
	if req.ReferenceTime != "" {
		if _, err := time.Parse(time.RFC3339, req.ReferenceTime); err != nil {
			return fmt.Errorf("referenceTime: %v", err)
		}
	}
	return nil
}

func validateRouteRequest(req *model.RouteRequest) error {
	if req.BatchID == "" && len(req.Orders) == 0 {
		return fmt.Errorf("batchId or orders required")
	}
	for i, o := range req.Orders {
		if err := validateOrderIn(i, o); err != nil {
			return err
		}
	}
	if req.VehicleStart != nil {
		if err := validatePoint("vehicleStart", *req.VehicleStart); err != nil {
			return err
		}
	}
	switch req.Algorithm {
	case "", model.AlgorithmAuto, model.AlgorithmHeuristic, model.AlgorithmVRP:
	default:
		return fmt.Errorf("algorithm %q not one of auto, heuristic, vrp", req.Algorithm)
	}
	return nil
}
