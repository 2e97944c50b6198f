package remotestore

import (
	"context"
	"log/slog"
	"time"

	"github.com/nocturne-dev/nocturne-bot/internal/apperr"
)

// CheckHealth issues a trivial round-trip query bounded by timeout. The
// failure category is logged for diagnostics only; no error escapes this
// boundary.
func (s *Store) CheckHealth(ctx context.Context, timeout time.Duration) bool {
	if s == nil || s.db == nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var one int
	if err := s.db.QueryRowContext(probeCtx, `SELECT 1`).Scan(&one); err != nil {
		s.log.Warn("remote health probe failed",
			slog.String("category", string(apperr.Classify(err))),
			slog.Duration("timeout", timeout),
			slog.Any("error", err),
		)
		return false
	}

	return true
}
