package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nocturne-dev/nocturne-bot/internal/domain"
)

// GetUserSettings returns the stored preferences for userID, or defaults
// when the user has never saved any.
func (s *Store) GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	const query = `
		SELECT user_id, dm_notifications, level_up_messages, timezone, updated_at
		FROM user_settings
		WHERE user_id = ?
	`

	var (
		settings  domain.UserSettings
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&settings.UserID,
		&settings.DMNotifications,
		&settings.LevelUpMessages,
		&settings.Timezone,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DefaultUserSettings(userID), nil
		}
		return nil, fmt.Errorf("select user settings: %w", err)
	}

	settings.UpdatedAt = fromMillis(updatedAt)
	return &settings, nil
}

// SetUserSettings upserts the full preference row for a user.
func (s *Store) SetUserSettings(ctx context.Context, settings *domain.UserSettings, enqueue bool) error {
	if settings == nil || settings.UserID == "" {
		return fmt.Errorf("user settings require a user id")
	}

	const query = `
		INSERT INTO user_settings (user_id, dm_notifications, level_up_messages, timezone, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			dm_notifications = excluded.dm_notifications,
			level_up_messages = excluded.level_up_messages,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at
	`

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query,
			settings.UserID,
			settings.DMNotifications,
			settings.LevelUpMessages,
			settings.Timezone,
			toMillis(time.Now()),
		); err != nil {
			return fmt.Errorf("upsert user settings: %w", err)
		}

		if !enqueue {
			return nil
		}

		return enqueueTx(ctx, tx, domain.TableUserSettings, domain.OpUpsertSettings,
			domain.UserSettingsPayload{
				UserID:          settings.UserID,
				DMNotifications: settings.DMNotifications,
				LevelUpMessages: settings.LevelUpMessages,
				Timezone:        settings.Timezone,
			})
	})
}
