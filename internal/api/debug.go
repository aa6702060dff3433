package api

import (
	"net/http"
	"time"

	"dispatchcore/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":           s.Cfg.Port,
			"TRAVEL_CHAIN":   s.Cfg.Travel.Providers,
			"MAX_BATCH_SIZE": s.Batcher.MaxBatchSize(),
			"HAS_REDIS_URL":  s.Cfg.RedisURL != "",
			"SOLUTION_LIMIT": s.Cfg.Solver.SolutionLimit,
			"GUIDED_SEARCH":  s.Cfg.Solver.GuidedLocalSearch,
		},
		"registry": s.Registry.Stats(),
	})
}
