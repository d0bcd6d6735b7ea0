package recurrence

import (
	"time"

	"github.com/rs/zerolog"
)

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	CacheEnabled bool
	CacheConfig  CacheConfig

	// MaxExpansionOccurrences caps a single Between result; 0 means no cap.
	// A capped engine returns a short window, so none of the presets set it.
	MaxExpansionOccurrences int
}

// DefaultEngineConfig suits a typical calendar host.
var DefaultEngineConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig:  DefaultCacheConfig,
}

// HighPerformanceConfig keeps more results for longer.
var HighPerformanceConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             30 * time.Minute,
		MaxEntries:      5000,
		CleanupInterval: 10 * time.Minute,
	},
}

// LowMemoryConfig is optimized for memory-constrained environments
var LowMemoryConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             5 * time.Minute,
		MaxEntries:      100,
		CleanupInterval: 2 * time.Minute,
	},
}

// DisabledCacheConfig turns off caching entirely
var DisabledCacheConfig = EngineConfig{
	CacheEnabled: false,
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for expansion warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig, opts ...Option) *Engine {
	e := &Engine{
		config: config,
		logger: zerolog.Nop(),
	}
	if config.CacheEnabled {
		e.cache = NewRecurrenceCache(config.CacheConfig)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
