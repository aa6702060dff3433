package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"dispatchcore/internal/batch"
	"dispatchcore/internal/geo"
	"dispatchcore/internal/metrics"
	"dispatchcore/internal/model"
	"dispatchcore/internal/registry"
)

// BatchesHandler handles POST/GET /v1/batches.
func (s *Server) BatchesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateBatchRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid batch request", err.Error(), r.URL.Path)
			return
		}
		referenceTime := time.Now().UTC()
		if req.ReferenceTime != "" {
			referenceTime, _ = time.Parse(time.RFC3339, req.ReferenceTime)
		}
		orders := ordersFromInput(req.Orders, referenceTime)

		batcher := s.Batcher
		if req.MaxBatchSize > 0 || req.BatchWindowMinutes > 0 {
			batcher = batch.NewGeoBatcher(batch.Config{
				MaxBatchSize:       req.MaxBatchSize,
				BatchWindowMinutes: req.BatchWindowMinutes,
				CorridorPoint:      s.Batcher.CorridorPoint(),
				Seed:               s.Cfg.Batching.Seed,
			}, batch.NewKMeansClusterer(s.Cfg.Batching.Seed))
		}
		maxDeviationKm := req.MaxDeviationKm
		if maxDeviationKm == 0 {
			maxDeviationKm = s.Cfg.Batching.MaxDeviationKm
		}
		batches := batcher.CreateBatches(orders, referenceTime, maxDeviationKm)
		s.Registry.PutBatches(batches)
		metrics.BatchesCreated.Add(float64(len(batches)))
		for _, b := range batches {
			s.Broker.Publish("batch.created", Event{Type: "batch.created", Data: map[string]any{
				"batchId": b.ID,
				"orders":  len(b.Orders),
			}})
		}

		resp := model.BatchResponse{
			Batches:      batches,
			TotalOrders:  len(orders),
			TotalBatches: len(batches),
		}
		if resp.Batches == nil {
			resp.Batches = []model.Batch{}
		}
		if len(batches) > 0 {
			total := 0
			for _, b := range batches {
				total += len(b.Orders)
			}
			resp.AvgBatchSize = float64(total) / float64(len(batches))
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodGet:
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items := s.Registry.ListBatches(limit)
		if items == nil {
			items = []model.Batch{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RoutesHandler handles POST /v1/routes.
func (s *Server) RoutesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateRouteRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid route request", err.Error(), r.URL.Path)
		return
	}

	var b model.Batch
	if req.BatchID != "" {
		stored, err := s.Registry.GetBatch(req.BatchID)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Batch not found", req.BatchID, r.URL.Path)
			return
		}
		b = stored
	} else {
		orders := ordersFromInput(req.Orders, time.Now().UTC())
		b = model.Batch{
			ID:        uuid.New().String(),
			Orders:    orders,
			Center:    geo.Centroid(orders),
			CreatedAt: time.Now().UTC(),
		}
	}

	route := s.Optimizer.OptimizeRoute(r.Context(), b, req.VehicleStart, req.Algorithm)
	s.Registry.PutRoute(route)
	s.Broker.Publish("route.optimized", Event{Type: "route.optimized", Data: map[string]any{
		"batchId":   route.BatchID,
		"algorithm": route.OptimizationAlgorithm,
		"stops":     len(route.Stops),
		"score":     route.OptimizationScore,
	}})

	writeJSON(w, http.StatusOK, model.RouteResponse{
		Route: route,
		Solver: map[string]any{
			"algorithm":       route.OptimizationAlgorithm,
			"stops":           len(route.Stops),
			"totalDistanceKm": route.TotalDistanceKm,
		},
	})
}

// RouteByIDHandler handles GET /v1/routes/{batchId}.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/routes/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	route, err := s.Registry.GetRoute(id)
	if err == registry.ErrNotFound {
		writeProblem(w, http.StatusNotFound, "Route not found", id, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, model.RouteResponse{Route: route})
}

// TravelStatsHandler handles GET /v1/travel-time/stats.
func (s *Server) TravelStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Travel.Stats())
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ordersFromInput converts wire orders to domain orders, defaulting creation
// time to the reference time and priority to 1.
func ordersFromInput(in []model.OrderIn, referenceTime time.Time) []model.Order {
	out := make([]model.Order, 0, len(in))
	for _, o := range in {
		created := referenceTime
		if o.CreatedAt != "" {
			if t, err := time.Parse(time.RFC3339, o.CreatedAt); err == nil {
				created = t
			}
		}
		priority := o.Priority
		if priority == 0 {
			priority = minPriority
		}
		out = append(out, model.Order{
			ID:              o.ID,
			Pickup:          o.Pickup,
			Delivery:        o.Delivery,
			CreatedAt:       created,
			Priority:        priority,
			PrepTimeMinutes: o.PrepTimeMinutes,
		})
	}
	return out
}
