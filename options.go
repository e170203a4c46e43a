package cachedict

import (
	"log/slog"
	"time"

	"github.com/josemimbre/cachedict/updatequeue"
)

type options struct {
	queueConfig      updatequeue.Configuration
	metricsCollector MetricsCollector
	logger           *Logger
	allowReadExpired bool
	sourceTimeout    time.Duration
}

// Option configures dictionary constructor behavior.
type Option func(*options)

// WithQueueConfiguration sets the update queue's capacity, worker count and
// timeouts. Defaults to updatequeue.DefaultConfiguration().
func WithQueueConfiguration(cfg updatequeue.Configuration) Option {
	return func(o *options) {
		o.queueConfig = cfg
	}
}

// WithAllowReadExpiredKeys makes lookups serve expired values immediately
// while a background refresh replaces them, instead of blocking on the
// refresh. Hard misses still block.
//
// This trades read latency for staleness: a caller may observe values up to
// the storage's stale grace past their freshness deadline.
func WithAllowReadExpiredKeys(allow bool) Option {
	return func(o *options) {
		o.allowReadExpired = allow
	}
}

// WithSourceTimeout bounds each refresh batch's fetch against the backing
// source. Zero (the default) means no bound beyond the source's own.
func WithSourceTimeout(d time.Duration) Option {
	return func(o *options) {
		o.sourceTimeout = d
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &cachedict.BasicMetricsCollector{}
//	dict, _ := cachedict.NewSimple(name, st, src, cachedict.WithMetricsCollector(metrics))
//	// ... use dict ...
//	stats := metrics.GetStats()
//	fmt.Printf("Fetches: %d, Avg latency: %dns\n", stats.FetchCount, stats.FetchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := cachedict.NewJSONLogger(slog.LevelInfo)
//	dict, _ := cachedict.NewSimple(name, st, src, cachedict.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		queueConfig:      updatequeue.DefaultConfiguration(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
