package manager

import (
	"context"
	"log/slog"

	"github.com/nocturne-dev/nocturne-bot/internal/apperr"
	"github.com/nocturne-dev/nocturne-bot/pkg/metrics"
)

// drain replays queued mutations against the remote store. Overlapping runs
// with the health loop are tolerated: replays are keyed upserts and queue
// removal is by row id, so re-entrant execution cannot corrupt state.
func (m *Manager) drain(ctx context.Context) {
	if m.Mode() != ModeRemote {
		return
	}

	items, err := m.local.SyncQueue(ctx, m.cfg.SyncBatchSize)
	if err != nil {
		m.log.Error("reading sync queue failed", slog.Any("error", err))
		return
	}

	var applied, failed int
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		if err := m.remote.Apply(ctx, item); err != nil {
			failed++
			metrics.RecordSyncItem("failure")

			syncErr := apperr.NewSyncError(item.Table, item.Operation, err)
			m.log.Warn("sync item replay failed",
				slog.Int64("id", item.ID),
				slog.String("table", item.Table),
				slog.String("operation", item.Operation),
				slog.Int("retries", item.Retries),
				slog.Any("error", syncErr),
			)

			if markErr := m.local.MarkSyncFailed(ctx, item.ID, err); markErr != nil {
				m.log.Error("marking sync item failed", slog.Int64("id", item.ID), slog.Any("error", markErr))
			}
			continue
		}

		applied++
		metrics.RecordSyncItem("success")

		if err := m.local.MarkSyncSuccess(ctx, item.ID); err != nil {
			m.log.Error("removing confirmed sync item failed", slog.Int64("id", item.ID), slog.Any("error", err))
		}
	}

	if applied > 0 || failed > 0 {
		m.log.Info("sync queue drained",
			slog.Int("applied", applied),
			slog.Int("failed", failed),
		)
	}

	m.maybeReap(ctx)

	if size, err := m.local.SyncQueueSize(ctx); err == nil {
		metrics.SetSyncQueueDepth(size)
	}
}

// maybeReap runs the age/retry-based queue reap on a fixed cadence: every
// ReapEveryCycles drain cycles, counted deterministically so tests can
// predict it.
func (m *Manager) maybeReap(ctx context.Context) {
	m.mu.Lock()
	m.reapCycles++
	due := m.reapCycles >= m.cfg.ReapEveryCycles
	if due {
		m.reapCycles = 0
	}
	m.mu.Unlock()

	if !due {
		return
	}

	removed, err := m.local.ClearOldSyncQueue(ctx)
	if err != nil {
		m.log.Error("sync queue reap failed", slog.Any("error", err))
		return
	}

	if removed > 0 {
		m.log.Info("sync queue reaped", slog.Int64("removed", removed))
	}
}
