package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"dispatchcore/internal/model"
)

// GraphHopperCalculator queries the GraphHopper routing API. A missing API
// key is a calculator error, which the Provider turns into its fallback.
type GraphHopperCalculator struct {
	APIKey  string
	BaseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewGraphHopperCalculator(apiKey, baseURL string, rps float64) *GraphHopperCalculator {
	if baseURL == "" {
		baseURL = "https://graphhopper.com/api/1"
	}
	if rps <= 0 {
		rps = 5
	}
	return &GraphHopperCalculator{
		APIKey:  apiKey,
		BaseURL: baseURL,
		client:  &http.Client{Timeout: providerTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
	}
}

func (*GraphHopperCalculator) Name() string { return "graphhopper" }

var graphhopperVehicles = map[string]string{
	model.ModeDriving: "car",
	model.ModeWalking: "foot",
	model.ModeCycling: "bike",
}

func (c *GraphHopperCalculator) Calculate(ctx context.Context, req model.TravelTimeRequest) (model.TravelTimeResult, error) {
	if c.APIKey == "" {
		return model.TravelTimeResult{}, fmt.Errorf("graphhopper: no api key configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return model.TravelTimeResult{}, fmt.Errorf("graphhopper rate wait: %w", err)
	}

	vehicle, ok := graphhopperVehicles[req.Mode]
	if !ok {
		vehicle = "car"
	}
	q := url.Values{}
	q.Add("point", fmt.Sprintf("%f,%f", req.From.Lat, req.From.Lng))
	q.Add("point", fmt.Sprintf("%f,%f", req.To.Lat, req.To.Lng))
	q.Set("vehicle", vehicle)
	q.Set("calc_points", "false")
	q.Set("key", c.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/route?"+q.Encode(), nil)
	if err != nil {
		return model.TravelTimeResult{}, err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return model.TravelTimeResult{}, fmt.Errorf("graphhopper request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.TravelTimeResult{}, fmt.Errorf("graphhopper status %d", resp.StatusCode)
	}

	var body struct {
		Paths []struct {
			TimeMs   int64   `json:"time"`
			Distance float64 `json:"distance"`
		} `json:"paths"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.TravelTimeResult{}, fmt.Errorf("graphhopper decode: %w", err)
	}
	if len(body.Paths) == 0 {
		return model.TravelTimeResult{}, fmt.Errorf("graphhopper: no route found")
	}

	return model.TravelTimeResult{
		DurationSec:    int(time.Duration(body.Paths[0].TimeMs) * time.Millisecond / time.Second),
		DistanceMeters: body.Paths[0].Distance,
		Mode:           req.Mode,
		Provider:       "graphhopper",
	}, nil
}
