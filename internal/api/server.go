package api

import (
	"context"
	"log"

	"dispatchcore/internal/batch"
	"dispatchcore/internal/config"
	"dispatchcore/internal/opt"
	"dispatchcore/internal/registry"
	"dispatchcore/internal/travel"
)

// Server holds the dispatch pipeline: batcher, optimizer, travel chain,
// registry and event broker.
type Server struct {
	Cfg       config.Config
	Batcher   *batch.GeoBatcher
	Optimizer *opt.Optimizer
	Travel    *travel.Manager
	Registry  *registry.Registry
	Broker    EventBroker
}

// NewServer wires the pipeline from configuration. Redis, when configured,
// backs both the travel cache and the event broker; otherwise everything
// runs in process.
func NewServer(cfg config.Config) (*Server, error) {
	var store travel.Store
	if cfg.RedisURL != "" {
		rs, err := travel.NewRedisStoreFromURL(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Printf("redis unavailable, using in-process travel cache: %v", err)
		} else {
			store = rs
		}
	}
	cache := travel.NewCache(store, cfg.CacheTTL())

	providers := make([]*travel.Provider, 0, len(cfg.Travel.Providers))
	for _, name := range cfg.Travel.Providers {
		switch name {
		case "osrm":
			providers = append(providers, travel.NewProvider(travel.NewOSRMCalculator(cfg.Travel.OSRMBaseURL, 0), cache))
		case "graphhopper":
			providers = append(providers, travel.NewProvider(travel.NewGraphHopperCalculator(cfg.Travel.GraphHopperAPIKey, "", 0), cache))
		case "estimate":
			providers = append(providers, travel.NewProvider(travel.EstimateCalculator{}, cache))
		default:
			log.Printf("unknown travel provider %q ignored", name)
		}
	}
	manager := travel.NewManager(cache, providers...)

	solver := opt.NewVRPSolver(manager, opt.NewALNSBackend(), opt.SolverOptions{
		SearchTimeLimit:      cfg.SolverTimeLimit(),
		SolutionLimit:        cfg.Solver.SolutionLimit,
		UseGuidedLocalSearch: cfg.Solver.GuidedLocalSearch,
		Seed:                 cfg.Solver.Seed,
	})
	optimizer := opt.NewOptimizer(opt.OptimizerConfig{}, solver)

	batcher := batch.NewGeoBatcher(batch.Config{
		MaxBatchSize:       cfg.Batching.MaxBatchSize,
		BatchWindowMinutes: cfg.Batching.BatchWindowMinutes,
		Seed:               cfg.Batching.Seed,
	}, batch.NewKMeansClusterer(cfg.Batching.Seed))

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			log.Printf("redis broker unavailable, using in-process broker: %v", err)
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	return &Server{
		Cfg:       cfg,
		Batcher:   batcher,
		Optimizer: optimizer,
		Travel:    manager,
		Registry:  registry.New(),
		Broker:    broker,
	}, nil
}
