package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nocturne-dev/nocturne-bot/internal/domain"
)

const (
	// MaxRetries is the retry budget per queue item. Items at or beyond it
	// are excluded from draining but retained until the age-based reap.
	MaxRetries = 5

	// MaxAge is how long dead items are retained before ClearOldSyncQueue
	// deletes them.
	MaxAge = 7 * 24 * time.Hour
)

// enqueueTx appends a sync queue item inside the caller's transaction, so an
// item exists exactly when its local mutation committed.
func enqueueTx(ctx context.Context, tx *sql.Tx, table, operation string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode sync payload: %w", err)
	}

	const query = `
		INSERT INTO sync_queue (table_name, operation, data, created_at, retries)
		VALUES (?, ?, ?, ?, 0)
	`
	if _, err := tx.ExecContext(ctx, query, table, operation, string(data), toMillis(time.Now())); err != nil {
		return fmt.Errorf("enqueue sync item: %w", err)
	}

	return nil
}

// SyncQueue returns up to limit of the oldest items that still have retry
// budget left.
func (s *Store) SyncQueue(ctx context.Context, limit int) ([]*domain.SyncItem, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
		SELECT id, table_name, operation, data, created_at, retries, COALESCE(last_error, '')
		FROM sync_queue
		WHERE retries < ?
		ORDER BY created_at, id
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, MaxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("select sync queue: %w", err)
	}
	defer rows.Close()

	var items []*domain.SyncItem
	for rows.Next() {
		var (
			item      domain.SyncItem
			data      string
			createdAt int64
		)
		if err := rows.Scan(&item.ID, &item.Table, &item.Operation, &data, &createdAt, &item.Retries, &item.LastError); err != nil {
			return nil, fmt.Errorf("scan sync item: %w", err)
		}
		item.Payload = []byte(data)
		item.CreatedAt = fromMillis(createdAt)
		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync queue: %w", err)
	}

	return items, nil
}

// MarkSyncSuccess removes a confirmed item from the queue.
func (s *Store) MarkSyncSuccess(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete sync item: %w", err)
	}

	return nil
}

// MarkSyncFailed bumps the retry counter and records the failure cause.
func (s *Store) MarkSyncFailed(ctx context.Context, id int64, cause error) error {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	const query = `UPDATE sync_queue SET retries = retries + 1, last_error = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, lastError, id); err != nil {
		return fmt.Errorf("update sync item: %w", err)
	}

	return nil
}

// ClearOldSyncQueue reaps items older than MaxAge or with an exhausted retry
// budget, returning the number removed.
func (s *Store) ClearOldSyncQueue(ctx context.Context) (int64, error) {
	cutoff := toMillis(time.Now().Add(-MaxAge))

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE created_at < ? OR retries >= ?`, cutoff, MaxRetries,
	)
	if err != nil {
		return 0, fmt.Errorf("clear sync queue: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return removed, nil
}

// SyncQueueSize reports the total number of queued items, dead-lettered ones
// included.
func (s *Store) SyncQueueSize(ctx context.Context) (int, error) {
	var size int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&size); err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}

	return size, nil
}
