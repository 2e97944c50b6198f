package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nocturne-dev/nocturne-bot/internal/domain"
)

// GetGuildSettings returns the stored settings for guildID, or defaults when
// the guild has never been written.
func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	const query = `
		SELECT guild_id, lang, prefix, COALESCE(welcome_channel_id, ''), updated_at
		FROM guild_settings
		WHERE guild_id = ?
	`

	var (
		settings  domain.GuildSettings
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, guildID).Scan(
		&settings.GuildID,
		&settings.Lang,
		&settings.Prefix,
		&settings.WelcomeChannelID,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.GuildSettings{
				GuildID: guildID,
				Lang:    domain.DefaultLang,
				Prefix:  domain.DefaultPrefix,
			}, nil
		}
		return nil, fmt.Errorf("select guild settings: %w", err)
	}

	settings.UpdatedAt = fromMillis(updatedAt)
	return &settings, nil
}

// SetGuildLang upserts the guild language. When enqueue is true the mutation
// is also appended to the sync queue in the same transaction.
func (s *Store) SetGuildLang(ctx context.Context, guildID, lang string, enqueue bool) error {
	const query = `
		INSERT INTO guild_settings (guild_id, lang, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			lang = excluded.lang,
			updated_at = excluded.updated_at
	`

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, guildID, lang, toMillis(time.Now())); err != nil {
			return fmt.Errorf("upsert guild lang: %w", err)
		}

		if !enqueue {
			return nil
		}

		return enqueueTx(ctx, tx, domain.TableGuildSettings, domain.OpSetLang,
			domain.GuildPayload{GuildID: guildID, Lang: lang})
	})
}

// SetGuildPrefix upserts the guild command prefix.
func (s *Store) SetGuildPrefix(ctx context.Context, guildID, prefix string, enqueue bool) error {
	const query = `
		INSERT INTO guild_settings (guild_id, prefix, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			prefix = excluded.prefix,
			updated_at = excluded.updated_at
	`

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, guildID, prefix, toMillis(time.Now())); err != nil {
			return fmt.Errorf("upsert guild prefix: %w", err)
		}

		if !enqueue {
			return nil
		}

		return enqueueTx(ctx, tx, domain.TableGuildSettings, domain.OpSetPrefix,
			domain.GuildPayload{GuildID: guildID, Prefix: prefix})
	})
}

// SetWelcomeChannel upserts the guild welcome channel.
func (s *Store) SetWelcomeChannel(ctx context.Context, guildID, channelID string, enqueue bool) error {
	const query = `
		INSERT INTO guild_settings (guild_id, welcome_channel_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			welcome_channel_id = excluded.welcome_channel_id,
			updated_at = excluded.updated_at
	`

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, guildID, channelID, toMillis(time.Now())); err != nil {
			return fmt.Errorf("upsert welcome channel: %w", err)
		}

		if !enqueue {
			return nil
		}

		return enqueueTx(ctx, tx, domain.TableGuildSettings, domain.OpSetWelcomeChannel,
			domain.GuildPayload{GuildID: guildID, WelcomeChannelID: channelID})
	})
}
