package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"dispatchcore/internal/model"
)

const providerTimeout = 10 * time.Second

// OSRMCalculator queries an OSRM routing instance. API errors surface as
// calculator errors and become the provider's fallback path.
type OSRMCalculator struct {
	BaseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewOSRMCalculator(baseURL string, rps float64) *OSRMCalculator {
	if baseURL == "" {
		baseURL = "http://router.project-osrm.org"
	}
	if rps <= 0 {
		rps = 10
	}
	return &OSRMCalculator{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: providerTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
	}
}

func (*OSRMCalculator) Name() string { return "osrm" }

var osrmProfiles = map[string]string{
	model.ModeDriving: "driving",
	model.ModeWalking: "foot",
	model.ModeCycling: "bike",
}

func (c *OSRMCalculator) Calculate(ctx context.Context, req model.TravelTimeRequest) (model.TravelTimeResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.TravelTimeResult{}, fmt.Errorf("osrm rate wait: %w", err)
	}
	profile, ok := osrmProfiles[req.Mode]
	if !ok {
		profile = "driving"
	}
	url := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=false",
		c.BaseURL, profile, req.From.Lng, req.From.Lat, req.To.Lng, req.To.Lat)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.TravelTimeResult{}, err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return model.TravelTimeResult{}, fmt.Errorf("osrm request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.TravelTimeResult{}, fmt.Errorf("osrm status %d", resp.StatusCode)
	}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Routes  []struct {
			Duration float64 `json:"duration"`
			Distance float64 `json:"distance"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.TravelTimeResult{}, fmt.Errorf("osrm decode: %w", err)
	}
	if body.Code != "Ok" {
		return model.TravelTimeResult{}, fmt.Errorf("osrm error: %s", body.Message)
	}
	if len(body.Routes) == 0 {
		return model.TravelTimeResult{}, fmt.Errorf("osrm: no route found")
	}

	return model.TravelTimeResult{
		DurationSec:    int(body.Routes[0].Duration),
		DistanceMeters: body.Routes[0].Distance,
		Mode:           req.Mode,
		Provider:       "osrm",
	}, nil
}
