// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/visiontags/internal/validation"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Model kinds.
const (
	ModelBuiltin = "builtin"
	ModelRemote  = "remote"
)

// Config contains process configuration. Field rules live in validate tags;
// Validate adds the rules that span fields.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// WindowSize is N, the number of recent predictions analyzed.
	WindowSize int `koanf:"window_size" validate:"min=1"`
	// NeighborCount is the default k for neighbor queries.
	NeighborCount int `koanf:"neighbor_count" validate:"min=1"`
	// TopK bounds the labels returned by a classification.
	TopK int `koanf:"top_k" validate:"min=1"`
	// OverlayOpacity scales the saliency overlay alpha, in [0, 1].
	OverlayOpacity float64 `koanf:"overlay_opacity" validate:"gte=0,lte=1"`

	// DefaultModel is used when a request names no model.
	DefaultModel string `koanf:"default_model" validate:"required"`
	// Models maps model keys to their definitions.
	Models map[string]ModelConfig `koanf:"models" validate:"required,min=1,dive"`
	// MaxConcurrentInference bounds inference calls in flight.
	MaxConcurrentInference int `koanf:"max_concurrent_inference" validate:"min=1"`

	// Store selects the record backend: memory, sqlite or postgres.
	Store           string `koanf:"store" validate:"oneof=memory sqlite postgres"`
	SQLitePath      string `koanf:"sqlite_path" validate:"required_if=Store sqlite"`
	PostgresDSN     string `koanf:"postgres_dsn" validate:"required_if=Store postgres"`
	MemoryRetention int    `koanf:"memory_retention" validate:"gte=0"`

	// MaxUploadBytes caps multipart image uploads.
	MaxUploadBytes int64 `koanf:"max_upload_bytes" validate:"min=1"`
	// MaxImagePixels caps width*height of a decoded upload.
	MaxImagePixels int `koanf:"max_image_pixels" validate:"min=1"`
	// RateLimitPerSec and RateLimitBurst shape per-client request rates.
	// A zero rate disables limiting.
	RateLimitPerSec float64 `koanf:"rate_limit_per_sec" validate:"gte=0"`
	RateLimitBurst  int     `koanf:"rate_limit_burst" validate:"gte=0"`
}

// ModelConfig defines one model.
type ModelConfig struct {
	Kind         string   `koanf:"kind" validate:"oneof=builtin remote"`
	URL          string   `koanf:"url" validate:"required_if=Kind remote"`
	Labels       []string `koanf:"labels" validate:"dive,required"`
	Channels     int      `koanf:"channels" validate:"gte=0"`
	EmbeddingDim int      `koanf:"embedding_dim" validate:"gte=0"`
	InputSize    int      `koanf:"input_size" validate:"min=3"`
	Seed         int64    `koanf:"seed"`
	TimeoutMS    int      `koanf:"timeout_ms" validate:"gte=0"`
	RatePerSec   float64  `koanf:"rate_per_sec" validate:"gte=0"`
}

const (
	defaultInputSize = 32
	defaultTimeoutMS = 10_000
)

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		WindowSize:     200,
		NeighborCount:  5,
		TopK:           5,
		OverlayOpacity: 0.9,
		DefaultModel:   "tinycnn",
		Models: map[string]ModelConfig{
			"tinycnn":      {Kind: ModelBuiltin, Channels: 8, EmbeddingDim: 16, InputSize: defaultInputSize, Seed: 1},
			"tinycnn-wide": {Kind: ModelBuiltin, Channels: 16, EmbeddingDim: 32, InputSize: defaultInputSize, Seed: 2},
		},
		MaxConcurrentInference: runtime.NumCPU(),
		Store:                  StoreMemory,
		SQLitePath:             "visiontags.db",
		MemoryRetention:        10_000,
		MaxUploadBytes:         10 << 20,
		MaxImagePixels:         1 << 24,
		RateLimitPerSec:        20,
		RateLimitBurst:         40,
	}
}

// fillModelDefaults completes partially specified models from the default
// definition of the same key, then from generic builtin defaults.
func (c *Config) fillModelDefaults() {
	defaults := New().Models
	for key, m := range c.Models {
		base, known := defaults[key]
		m.Kind = strings.ToLower(strings.TrimSpace(m.Kind))
		if m.Kind == "" {
			m.Kind = ModelBuiltin
		}
		if !known || base.Kind != m.Kind {
			base = ModelConfig{Channels: 8, EmbeddingDim: 16}
		}
		if m.InputSize == 0 {
			m.InputSize = defaultInputSize
		}
		if m.TimeoutMS == 0 {
			m.TimeoutMS = defaultTimeoutMS
		}
		if m.Kind == ModelBuiltin {
			if m.Channels == 0 {
				m.Channels = base.Channels
			}
			if m.EmbeddingDim == 0 {
				m.EmbeddingDim = base.EmbeddingDim
			}
			if m.Seed == 0 {
				m.Seed = base.Seed
			}
		}
		c.Models[key] = m
	}
}

// Validate checks the field rules, then the rules that span fields.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Store == StoreMemory && c.MemoryRetention < c.WindowSize {
		return fmt.Errorf("%w: memory_retention must be at least window_size", ErrInvalidConfig)
	}
	if _, ok := c.Models[c.DefaultModel]; !ok {
		return fmt.Errorf("%w: default_model %q is not defined", ErrInvalidConfig, c.DefaultModel)
	}
	return nil
}
