package repository

import "time"

const (
	defaultRetention             = 10_000
	defaultMetricsUpdateInterval = 5 * time.Second
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithRetention caps how many records the store keeps; the oldest are
// dropped first. Values below 1 keep the default.
func WithRetention(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}
