package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings, populated from the environment.
type Config struct {
	LogLevel      string `env:"ONEASSIST_LOG" envDefault:"info"`
	DBPath        string `env:"ONEASSIST_DB_PATH" envDefault:"~/.oneassist/assistant.db"`
	DataDir       string `env:"ONEASSIST_DATA_DIR" envDefault:"~/.oneassist/indexes"`
	ServersConfig string `env:"ONEASSIST_SERVERS_CONFIG" envDefault:"~/.oneassist.json"`

	// Embedding backend
	Embedder       string `env:"ONEASSIST_EMBEDDER" envDefault:"hash"`
	EmbedModel     string `env:"ONEASSIST_EMBED_MODEL" envDefault:"all-minilm"`
	EmbedURL       string `env:"ONEASSIST_EMBED_URL" envDefault:"http://localhost:11434"`
	EmbedDimension int    `env:"ONEASSIST_EMBED_DIM" envDefault:"384"`
	EmbedCacheSize int    `env:"ONEASSIST_EMBED_CACHE_SIZE" envDefault:"512"`
	EmbedMaxText   int    `env:"ONEASSIST_EMBED_MAX_TEXT" envDefault:"2048"`

	// Language model
	LLMTransport string  `env:"ONEASSIST_LLM_TRANSPORT" envDefault:"http"`
	LLMURL       string  `env:"ONEASSIST_LLM_URL" envDefault:"http://localhost:11434"`
	LLMModel     string  `env:"ONEASSIST_LLM_MODEL" envDefault:"phi3"`
	LLMCommand   string  `env:"ONEASSIST_LLM_COMMAND" envDefault:"ollama"`
	MaxTokens    int     `env:"ONEASSIST_MAX_TOKENS" envDefault:"512"`
	Temperature  float64 `env:"ONEASSIST_TEMPERATURE" envDefault:"0.7"`

	// Selection thresholds
	DistanceThreshold float64 `env:"ONEASSIST_DISTANCE_THRESHOLD" envDefault:"0.8"`
	MinSemanticScore  float64 `env:"ONEASSIST_MIN_SEMANTIC" envDefault:"0.3"`
	BypassScore       float64 `env:"ONEASSIST_BYPASS_SCORE" envDefault:"0.85"`
	MinEvalConfidence float64 `env:"ONEASSIST_MIN_EVAL_CONFIDENCE" envDefault:"0.6"`

	// Multi-factor scoring weights; must sum to 1.
	WeightSemantic    float64 `env:"ONEASSIST_WEIGHT_SEMANTIC" envDefault:"0.50"`
	WeightLength      float64 `env:"ONEASSIST_WEIGHT_LENGTH" envDefault:"0.25"`
	WeightDescription float64 `env:"ONEASSIST_WEIGHT_DESCRIPTION" envDefault:"0.15"`
	WeightKeyword     float64 `env:"ONEASSIST_WEIGHT_KEYWORD" envDefault:"0.10"`

	// Retrieval limits
	MaxCandidates   int           `env:"ONEASSIST_MAX_CANDIDATES" envDefault:"3"`
	MaxContextPairs int           `env:"ONEASSIST_MAX_CONTEXT_PAIRS" envDefault:"3"`
	ContextMinSim   float64       `env:"ONEASSIST_CONTEXT_MIN_SIM" envDefault:"0.6"`
	ContextMaxAge   time.Duration `env:"ONEASSIST_CONTEXT_MAX_AGE" envDefault:"168h"`
	SearchTimeout   time.Duration `env:"ONEASSIST_SEARCH_TIMEOUT" envDefault:"2s"`
	EvalTimeout     time.Duration `env:"ONEASSIST_EVAL_TIMEOUT" envDefault:"30s"`
}

// ValidationError describes a configuration value that fails validation.
// It is fatal at startup: the process must not run with invalid settings.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// Load reads configuration from the environment, expands home-relative
// paths and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.DBPath = expandHome(cfg.DBPath)
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.ServersConfig = expandHome(cfg.ServersConfig)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every setting the pipeline depends on. The scoring
// weights must sum to exactly 1; they are never silently renormalized.
func (c *Config) Validate() error {
	sum := c.WeightSemantic + c.WeightLength + c.WeightDescription + c.WeightKeyword
	if math.Abs(sum-1.0) > 1e-6 {
		return &ValidationError{Field: "scoring weights", Reason: fmt.Sprintf("must sum to 1.0, got %.6f", sum)}
	}
	for name, w := range map[string]float64{
		"ONEASSIST_WEIGHT_SEMANTIC":    c.WeightSemantic,
		"ONEASSIST_WEIGHT_LENGTH":      c.WeightLength,
		"ONEASSIST_WEIGHT_DESCRIPTION": c.WeightDescription,
		"ONEASSIST_WEIGHT_KEYWORD":     c.WeightKeyword,
	} {
		if w < 0 {
			return &ValidationError{Field: name, Reason: "must not be negative"}
		}
	}

	if c.DistanceThreshold <= 0 {
		return &ValidationError{Field: "ONEASSIST_DISTANCE_THRESHOLD", Reason: "must be positive"}
	}
	if c.MinSemanticScore < 0 || c.MinSemanticScore > 1 {
		return &ValidationError{Field: "ONEASSIST_MIN_SEMANTIC", Reason: "must be in [0, 1]"}
	}
	if c.BypassScore < 0 || c.BypassScore > 1 {
		return &ValidationError{Field: "ONEASSIST_BYPASS_SCORE", Reason: "must be in [0, 1]"}
	}
	if c.MinEvalConfidence < 0 || c.MinEvalConfidence > 1 {
		return &ValidationError{Field: "ONEASSIST_MIN_EVAL_CONFIDENCE", Reason: "must be in [0, 1]"}
	}
	if c.ContextMinSim < 0 || c.ContextMinSim > 1 {
		return &ValidationError{Field: "ONEASSIST_CONTEXT_MIN_SIM", Reason: "must be in [0, 1]"}
	}

	if c.EmbedDimension <= 0 {
		return &ValidationError{Field: "ONEASSIST_EMBED_DIM", Reason: "must be positive"}
	}
	if c.EmbedCacheSize < 0 {
		return &ValidationError{Field: "ONEASSIST_EMBED_CACHE_SIZE", Reason: "must not be negative"}
	}
	if c.EmbedMaxText <= 0 {
		return &ValidationError{Field: "ONEASSIST_EMBED_MAX_TEXT", Reason: "must be positive"}
	}

	switch c.Embedder {
	case "hash", "ollama":
	default:
		return &ValidationError{Field: "ONEASSIST_EMBEDDER", Reason: fmt.Sprintf("unknown backend %q (want hash or ollama)", c.Embedder)}
	}
	switch c.LLMTransport {
	case "http", "cli":
	default:
		return &ValidationError{Field: "ONEASSIST_LLM_TRANSPORT", Reason: fmt.Sprintf("unknown transport %q (want http or cli)", c.LLMTransport)}
	}

	if c.MaxTokens <= 0 {
		return &ValidationError{Field: "ONEASSIST_MAX_TOKENS", Reason: "must be positive"}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return &ValidationError{Field: "ONEASSIST_TEMPERATURE", Reason: "must be in [0, 2]"}
	}
	if c.MaxCandidates < 1 {
		return &ValidationError{Field: "ONEASSIST_MAX_CANDIDATES", Reason: "must be at least 1"}
	}
	if c.MaxContextPairs < 1 {
		return &ValidationError{Field: "ONEASSIST_MAX_CONTEXT_PAIRS", Reason: "must be at least 1"}
	}
	if c.ContextMaxAge <= 0 {
		return &ValidationError{Field: "ONEASSIST_CONTEXT_MAX_AGE", Reason: "must be positive"}
	}
	if c.SearchTimeout <= 0 {
		return &ValidationError{Field: "ONEASSIST_SEARCH_TIMEOUT", Reason: "must be positive"}
	}
	if c.EvalTimeout <= 0 {
		return &ValidationError{Field: "ONEASSIST_EVAL_TIMEOUT", Reason: "must be positive"}
	}

	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
