package travel

import (
	"context"

	"dispatchcore/internal/geo"
	"dispatchcore/internal/model"
)

// Urban driving adjustments applied by the deterministic estimator.
const (
	urbanDelayFactor          = 1.3
	intersectionDelaySecPerKm = 30
)

// EstimateCalculator is the deterministic last-resort provider: straight
// haversine distance over a per-mode speed, with an urban delay model for
// driving. It never fails.
type EstimateCalculator struct {
	// AvgSpeedKmh overrides the driving speed when > 0.
	AvgSpeedKmh float64
}

func (EstimateCalculator) Name() string { return "estimate" }

func (e EstimateCalculator) Calculate(_ context.Context, req model.TravelTimeRequest) (model.TravelTimeResult, error) {
	distanceKm := geo.HaversineKm(req.From, req.To)
	speed := speedForMode(req.Mode)
	if req.Mode == model.ModeDriving && e.AvgSpeedKmh > 0 {
		speed = e.AvgSpeedKmh
	}
	durationSec := distanceKm / speed * 3600
	if req.Mode == model.ModeDriving {
		durationSec *= urbanDelayFactor
		durationSec += distanceKm * intersectionDelaySecPerKm
	}
	return model.TravelTimeResult{
		DurationSec:    int(durationSec),
		DistanceMeters: distanceKm * 1000,
		Mode:           req.Mode,
		Provider:       "estimate",
	}, nil
}
