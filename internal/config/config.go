// Package config provides environment-driven configuration for the pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Collector backends selectable via TOKWATCH_COLLECTOR.
const (
	CollectorBrowser = "browser"
	CollectorActor   = "actor"
)

// Config holds all runtime settings. Values come from environment variables
// (a .env file is loaded by main before Load runs).
type Config struct {
	DatabaseURL string `validate:"required"`

	// Analyzer
	GeminiAPIKey      string
	AnalysisBatchSize int           `validate:"gt=0"`
	AnalysisWorkers   int           `validate:"gt=0"`
	AnalysisRetries   int           `validate:"gte=0"`
	AnalysisTimeout   time.Duration `validate:"gt=0"`

	// Collector
	Collector      string `validate:"oneof=browser actor"`
	ActorBaseURL   string
	ActorToken     string
	Headless       bool
	MaxVideos      int `validate:"gt=0"`
	MaxComments    int `validate:"gte=0"`
	CollectWorkers int `validate:"gt=0"`

	// Scheduling / API
	Keywords []string
	Port     int `validate:"gt=0,lt=65536"`
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		AnalysisBatchSize: envInt("TOKWATCH_ANALYSIS_BATCH", 10),
		AnalysisWorkers:   envInt("TOKWATCH_ANALYSIS_WORKERS", 2),
		AnalysisRetries:   envInt("TOKWATCH_ANALYSIS_RETRIES", 2),
		AnalysisTimeout:   time.Duration(envInt("TOKWATCH_ANALYSIS_TIMEOUT", 60)) * time.Second,
		Collector:         envString("TOKWATCH_COLLECTOR", CollectorBrowser),
		ActorBaseURL:      os.Getenv("TOKWATCH_ACTOR_URL"),
		ActorToken:        os.Getenv("TOKWATCH_ACTOR_TOKEN"),
		Headless:          envBool("TOKWATCH_HEADLESS", true),
		MaxVideos:         envInt("TOKWATCH_MAX_VIDEOS", 5),
		MaxComments:       envInt("TOKWATCH_MAX_COMMENTS", 20),
		CollectWorkers:    envInt("TOKWATCH_COLLECT_WORKERS", 1),
		Keywords:          splitKeywords(os.Getenv("TOKWATCH_KEYWORDS")),
		Port:              envInt("PORT", 8080),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration before any job is created. Invalid
// configuration is a fatal error, rejected up front.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Collector == CollectorActor && c.ActorBaseURL == "" {
		return fmt.Errorf("invalid configuration: TOKWATCH_ACTOR_URL is required when TOKWATCH_COLLECTOR=actor")
	}
	return nil
}

func splitKeywords(raw string) []string {
	if raw == "" {
		return nil
	}
	var keywords []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
