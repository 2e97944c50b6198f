package manager

import (
	"context"
	"log/slog"

	"github.com/nocturne-dev/nocturne-bot/internal/remotestore"
)

// Stats is the sole observability contract exposed to external callers.
type Stats struct {
	Mode          Mode                    `json:"mode"`
	Available     bool                    `json:"available"`
	RemoteCache   *remotestore.CacheStats `json:"remote_cache,omitempty"`
	SyncQueueSize int                     `json:"sync_queue_size"`
}

// Stats snapshots the manager state. Cache stats are omitted when the remote
// store is disabled for the process lifetime.
func (m *Manager) Stats(ctx context.Context) *Stats {
	m.mu.Lock()
	mode := m.mode
	available := m.available
	m.mu.Unlock()

	stats := &Stats{
		Mode:      mode,
		Available: available,
	}

	if mode != ModeDisabled {
		stats.RemoteCache = m.remote.CacheStats()
	}

	size, err := m.local.SyncQueueSize(ctx)
	if err != nil {
		m.log.Error("reading sync queue size failed", slog.Any("error", err))
	} else {
		stats.SyncQueueSize = size
	}

	return stats
}
