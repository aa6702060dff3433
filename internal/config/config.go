// Package config loads service settings from an optional YAML file named by
// CONFIG_PATH, then applies environment overrides. Environment always wins
// so container deployments can tune a baked-in file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type Config struct {
	Port     string `yaml:"port"`
	RedisURL string `yaml:"redisUrl"`

	Batching struct {
		MaxBatchSize       int     `yaml:"maxBatchSize"`
		BatchWindowMinutes int     `yaml:"batchWindowMinutes"`
		MaxDeviationKm     float64 `yaml:"maxDeviationKm"`
		Seed               int64   `yaml:"seed"`
	} `yaml:"batching"`

	Travel struct {
		// Providers lists the chain in priority order; valid entries are
		// osrm, graphhopper and estimate.
		Providers         []string `yaml:"providers"`
		OSRMBaseURL       string   `yaml:"osrmBaseUrl"`
		GraphHopperAPIKey string   `yaml:"graphhopperApiKey"`
		CacheTTLSeconds   int      `yaml:"cacheTtlSeconds"`
	} `yaml:"travel"`

	Solver struct {
		SearchTimeLimitSec int   `yaml:"searchTimeLimitSec"`
		SolutionLimit      int   `yaml:"solutionLimit"`
		GuidedLocalSearch  bool  `yaml:"guidedLocalSearch"`
		Seed               int64 `yaml:"seed"`
	} `yaml:"solver"`
}

// Load reads CONFIG_PATH if set, fills defaults, and applies environment
// overrides.
func Load() (Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("MAX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Batching.MaxBatchSize = n
		}
	}
	if v := os.Getenv("BATCH_WINDOW_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Batching.BatchWindowMinutes = n
		}
	}
	if v := os.Getenv("MAX_DEVIATION_KM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Batching.MaxDeviationKm = f
		}
	}
	if v := os.Getenv("SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Batching.Seed = n
			c.Solver.Seed = n
		}
	}
	if v := os.Getenv("TRAVEL_PROVIDERS"); v != "" {
		parts := strings.Split(v, ",")
		c.Travel.Providers = c.Travel.Providers[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				c.Travel.Providers = append(c.Travel.Providers, p)
			}
		}
	}
	if v := os.Getenv("OSRM_BASE_URL"); v != "" {
		c.Travel.OSRMBaseURL = v
	}
	if v := os.Getenv("GRAPHHOPPER_API_KEY"); v != "" {
		c.Travel.GraphHopperAPIKey = v
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Travel.CacheTTLSeconds = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if len(c.Travel.Providers) == 0 {
		c.Travel.Providers = []string{"estimate"}
	}
}

// CacheTTL returns the configured travel cache TTL, zero meaning the
// package default.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Travel.CacheTTLSeconds) * time.Second
}

// SolverTimeLimit returns the configured search time limit, zero meaning
// the solver default.
func (c *Config) SolverTimeLimit() time.Duration {
	return time.Duration(c.Solver.SearchTimeLimitSec) * time.Second
}
