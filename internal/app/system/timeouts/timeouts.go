// Package timeouts holds the deadlines licensehub applies with
// context.WithTimeout. Values start at the defaults and may be changed once
// at startup with Configure or ConfigureFromEnv.
package timeouts

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing          = 2 * time.Second  // health checks
	DefaultShort         = 5 * time.Second  // API reads
	DefaultMedium        = 10 * time.Second // store connection
	DefaultLong          = 30 * time.Second // coordinator writes
	DefaultBatch         = 60 * time.Second // schema setup
	DefaultIdentityReady = 5 * time.Second
)

// Config is a full set of timeouts. Zero fields leave the current value.
type Config struct {
	Ping          time.Duration
	Short         time.Duration
	Medium        time.Duration
	Long          time.Duration
	Batch         time.Duration
	IdentityReady time.Duration
}

var defaults = Config{
	Ping:          DefaultPing,
	Short:         DefaultShort,
	Medium:        DefaultMedium,
	Long:          DefaultLong,
	Batch:         DefaultBatch,
	IdentityReady: DefaultIdentityReady,
}

var (
	mu  sync.RWMutex
	cur = defaults
)

func Ping() time.Duration          { return Current().Ping }
func Short() time.Duration         { return Current().Short }
func Medium() time.Duration        { return Current().Medium }
func Long() time.Duration          { return Current().Long }
func Batch() time.Duration         { return Current().Batch }
func IdentityReady() time.Duration { return Current().IdentityReady }

// Current returns the values in effect.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cur
}

// Configure overrides every non-zero field of c.
func Configure(c Config) {
	mu.Lock()
	defer mu.Unlock()
	for _, f := range c.fields(&cur) {
		if *f.src > 0 {
			*f.dst = *f.src
		}
	}
}

type field struct {
	env      string
	src, dst *time.Duration
}

// fields pairs each of c's durations with the same field of dst.
func (c *Config) fields(dst *Config) []field {
	return []field{
		{"TIMEOUT_PING", &c.Ping, &dst.Ping},
		{"TIMEOUT_SHORT", &c.Short, &dst.Short},
		{"TIMEOUT_MEDIUM", &c.Medium, &dst.Medium},
		{"TIMEOUT_LONG", &c.Long, &dst.Long},
		{"TIMEOUT_BATCH", &c.Batch, &dst.Batch},
		{"TIMEOUT_IDENTITY_READY", &c.IdentityReady, &dst.IdentityReady},
	}
}

// ConfigureFromEnv applies TIMEOUT_PING, TIMEOUT_SHORT, TIMEOUT_MEDIUM,
// TIMEOUT_LONG, TIMEOUT_BATCH and TIMEOUT_IDENTITY_READY (Go durations).
// Unset, unparsable and non-positive values are skipped. It returns how many
// were applied.
func ConfigureFromEnv() int {
	var c Config
	n := 0
	for _, f := range c.fields(&c) {
		d, err := time.ParseDuration(os.Getenv(f.env))
		if err == nil && d > 0 {
			*f.src = d
			n++
		}
	}
	Configure(c)
	return n
}

// WithTimeout is context.WithTimeout whose cancel func logs operation when
// the deadline was what ended it.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if log != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout))
		}
		cancel()
	}
}

func reset() {
	mu.Lock()
	defer mu.Unlock()
	cur = defaults
}
