package remotestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nocturne-dev/nocturne-bot/internal/domain"
)

func guildKey(guildID string) string {
	return "guild:" + guildID
}

// GetGuildSettings returns the guild's settings row, read through the guild
// cache. Unknown guilds resolve to defaults, which are cached too.
func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	if cached, ok := s.guilds.Get(guildKey(guildID)); ok {
		s.recordHit(familyGuilds)
		return cached, nil
	}
	s.recordMiss(familyGuilds)

	const query = `
		SELECT guild_id, lang, prefix, COALESCE(welcome_channel_id, '')
		FROM guild_settings
		WHERE guild_id = $1
	`

	var settings domain.GuildSettings
	err := s.db.QueryRowContext(ctx, query, guildID).Scan(
		&settings.GuildID,
		&settings.Lang,
		&settings.Prefix,
		&settings.WelcomeChannelID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			defaults := &domain.GuildSettings{
				GuildID: guildID,
				Lang:    domain.DefaultLang,
				Prefix:  domain.DefaultPrefix,
			}
			s.guilds.Set(guildKey(guildID), defaults)
			return defaults, nil
		}
		return nil, fmt.Errorf("select guild settings: %w", err)
	}

	s.guilds.Set(guildKey(guildID), &settings)
	return &settings, nil
}

// GetGuildLang returns the guild language.
func (s *Store) GetGuildLang(ctx context.Context, guildID string) (string, error) {
	settings, err := s.GetGuildSettings(ctx, guildID)
	if err != nil {
		return "", err
	}
	return settings.Lang, nil
}

// GetGuildPrefix returns the guild command prefix.
func (s *Store) GetGuildPrefix(ctx context.Context, guildID string) (string, error) {
	settings, err := s.GetGuildSettings(ctx, guildID)
	if err != nil {
		return "", err
	}
	return settings.Prefix, nil
}

// GetWelcomeChannel returns the guild welcome channel id, empty when unset.
func (s *Store) GetWelcomeChannel(ctx context.Context, guildID string) (string, error) {
	settings, err := s.GetGuildSettings(ctx, guildID)
	if err != nil {
		return "", err
	}
	return settings.WelcomeChannelID, nil
}

// SetGuildLang writes the language remotely, then patches the cached
// composite settings row when one exists.
func (s *Store) SetGuildLang(ctx context.Context, guildID, lang string) error {
	const query = `
		INSERT INTO guild_settings (guild_id, lang, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id) DO UPDATE SET
			lang = excluded.lang,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, guildID, lang, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert guild lang: %w", err)
	}

	s.patchGuildCache(guildID, func(settings *domain.GuildSettings) {
		settings.Lang = lang
	})
	return nil
}

// SetGuildPrefix writes the prefix remotely and patches the cache.
func (s *Store) SetGuildPrefix(ctx context.Context, guildID, prefix string) error {
	const query = `
		INSERT INTO guild_settings (guild_id, prefix, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id) DO UPDATE SET
			prefix = excluded.prefix,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, guildID, prefix, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert guild prefix: %w", err)
	}

	s.patchGuildCache(guildID, func(settings *domain.GuildSettings) {
		settings.Prefix = prefix
	})
	return nil
}

// SetWelcomeChannel writes the welcome channel remotely and patches the cache.
func (s *Store) SetWelcomeChannel(ctx context.Context, guildID, channelID string) error {
	const query = `
		INSERT INTO guild_settings (guild_id, welcome_channel_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id) DO UPDATE SET
			welcome_channel_id = excluded.welcome_channel_id,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, guildID, channelID, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert welcome channel: %w", err)
	}

	s.patchGuildCache(guildID, func(settings *domain.GuildSettings) {
		settings.WelcomeChannelID = channelID
	})
	return nil
}

// patchGuildCache updates one field inside the cached composite row. A guild
// that is not cached stays uncached and will be refetched on the next read.
func (s *Store) patchGuildCache(guildID string, patch func(*domain.GuildSettings)) {
	cached, ok := s.guilds.Get(guildKey(guildID))
	if !ok {
		return
	}

	updated := *cached
	patch(&updated)
	updated.UpdatedAt = time.Now().UTC()
	s.guilds.Set(guildKey(guildID), &updated)
}
