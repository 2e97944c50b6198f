package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner periodically prunes idle limiter buckets so the per-key map does
// not grow with every client address ever seen.
type Cleaner struct {
	limiter  *Limiter
	log      *slog.Logger
	interval time.Duration
	maxAge   time.Duration
}

// NewCleaner constructs a Cleaner that drops buckets idle for maxAge on
// every interval tick.
func NewCleaner(limiter *Limiter, log *slog.Logger, interval, maxAge time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		limiter:  limiter,
		log:      log,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run starts the cleaner loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.limiter == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("rate limit cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			c.limiter.Cleanup(c.maxAge)
		}
	}
}
