// Package timeouts holds the timeout values used with context.WithTimeout
// for store calls and cascades.
//
// Which one to use:
//   - Ping: health checks
//   - Short: single-document reads and writes
//   - Medium: list queries, single-class edits
//   - Long: member operations that commit one batch
//   - Cascade: a whole multi-batch cascade, including re-plans
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing    = 2 * time.Second
	DefaultShort   = 5 * time.Second
	DefaultMedium  = 10 * time.Second
	DefaultLong    = 30 * time.Second
	DefaultCascade = 5 * time.Minute
)

// EnvPrefix prefixes the environment variables read by ConfigureFromEnv,
// e.g. CENTERHUB_TIMEOUT_CASCADE=10m.
const EnvPrefix = "CENTERHUB_TIMEOUT_"

// Config holds timeout values. Zero values are ignored.
type Config struct {
	Ping    time.Duration
	Short   time.Duration
	Medium  time.Duration
	Long    time.Duration
	Cascade time.Duration
}

func defaults() Config {
	return Config{
		Ping:    DefaultPing,
		Short:   DefaultShort,
		Medium:  DefaultMedium,
		Long:    DefaultLong,
		Cascade: DefaultCascade,
	}
}

var (
	mu      sync.RWMutex
	current = defaults()
)

func get(f func(Config) time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return f(current)
}

func Ping() time.Duration    { return get(func(c Config) time.Duration { return c.Ping }) }
func Short() time.Duration   { return get(func(c Config) time.Duration { return c.Short }) }
func Medium() time.Duration  { return get(func(c Config) time.Duration { return c.Medium }) }
func Long() time.Duration    { return get(func(c Config) time.Duration { return c.Long }) }
func Cascade() time.Duration { return get(func(c Config) time.Duration { return c.Cascade }) }

func merge(dst *time.Duration, v time.Duration) bool {
	if v > 0 {
		*dst = v
		return true
	}
	return false
}

// Configure overrides the non-zero values of cfg. Call it during startup,
// before handlers are registered.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	merge(&current.Ping, cfg.Ping)
	merge(&current.Short, cfg.Short)
	merge(&current.Medium, cfg.Medium)
	merge(&current.Long, cfg.Long)
	merge(&current.Cascade, cfg.Cascade)
}

// Reset restores the defaults. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = defaults()
}

// ConfigureFromEnv reads CENTERHUB_TIMEOUT_{PING,SHORT,MEDIUM,LONG,CASCADE}
// as Go durations. Missing, invalid and non-positive values are skipped.
// Returns how many values were applied.
func ConfigureFromEnv() int {
	mu.Lock()
	defer mu.Unlock()
	fields := map[string]*time.Duration{
		"PING":    &current.Ping,
		"SHORT":   &current.Short,
		"MEDIUM":  &current.Medium,
		"LONG":    &current.Long,
		"CASCADE": &current.Cascade,
	}
	n := 0
	for name, dst := range fields {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && merge(dst, d) {
			n++
		}
	}
	return n
}

// Current returns the timeouts in effect.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// WithTimeout is context.WithTimeout whose cancel func logs a warning when
// the deadline was hit.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout))
		}
		cancel()
	}
}
