package remotestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nocturne-dev/nocturne-bot/internal/domain"
)

func userKey(userID string) string {
	return "user:" + userID
}

// GetUserSettings returns the user's preferences, read through the user
// cache. Unknown users resolve to defaults.
func (s *Store) GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	if cached, ok := s.users.Get(userKey(userID)); ok {
		s.recordHit(familyUsers)
		return cached, nil
	}
	s.recordMiss(familyUsers)

	const query = `
		SELECT user_id, dm_notifications, level_up_messages, timezone
		FROM user_settings
		WHERE user_id = $1
	`

	var settings domain.UserSettings
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&settings.UserID,
		&settings.DMNotifications,
		&settings.LevelUpMessages,
		&settings.Timezone,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			defaults := domain.DefaultUserSettings(userID)
			s.users.Set(userKey(userID), defaults)
			return defaults, nil
		}
		return nil, fmt.Errorf("select user settings: %w", err)
	}

	s.users.Set(userKey(userID), &settings)
	return &settings, nil
}

// SetUserSettings upserts the preference row remotely and refreshes the
// cache entry.
func (s *Store) SetUserSettings(ctx context.Context, settings *domain.UserSettings) error {
	if settings == nil || settings.UserID == "" {
		return fmt.Errorf("user settings require a user id")
	}

	const query = `
		INSERT INTO user_settings (user_id, dm_notifications, level_up_messages, timezone, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			dm_notifications = excluded.dm_notifications,
			level_up_messages = excluded.level_up_messages,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		settings.UserID,
		settings.DMNotifications,
		settings.LevelUpMessages,
		settings.Timezone,
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("upsert user settings: %w", err)
	}

	stored := *settings
	stored.UpdatedAt = time.Now().UTC()
	s.users.Set(userKey(settings.UserID), &stored)
	return nil
}
