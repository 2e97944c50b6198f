package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/nocturne-dev/nocturne-bot/internal/apperr"
	"github.com/nocturne-dev/nocturne-bot/internal/domain"
	"github.com/nocturne-dev/nocturne-bot/pkg/metrics"
)

// readThrough runs the remote read under the read deadline when the remote
// store is authoritative, silently falling back to the local store on any
// failure. A read never fails because the remote store is degraded.
func readThrough[T any](
	ctx context.Context,
	m *Manager,
	op string,
	remote func(context.Context) (T, error),
	local func(context.Context) (T, error),
) (T, error) {
	if m.Mode() == ModeRemote {
		remoteCtx, cancel := context.WithTimeout(ctx, m.cfg.ReadTimeout)
		start := time.Now()
		value, err := remote(remoteCtx)
		cancel()
		metrics.RecordRemoteOp(op, err, time.Since(start))

		if err == nil {
			return value, nil
		}

		m.log.Warn("remote read failed, serving local copy",
			slog.String("op", op),
			slog.String("category", string(apperr.Classify(err))),
			slog.Any("error", apperr.NewRemoteError(op, err)),
		)
	}

	return local(ctx)
}

// GetGuildSettings returns the guild's settings row.
func (m *Manager) GetGuildSettings(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	return readThrough(ctx, m, "get_guild_settings",
		func(ctx context.Context) (*domain.GuildSettings, error) { return m.remote.GetGuildSettings(ctx, guildID) },
		func(ctx context.Context) (*domain.GuildSettings, error) { return m.local.GetGuildSettings(ctx, guildID) },
	)
}

// GetGuildLang returns the guild language.
func (m *Manager) GetGuildLang(ctx context.Context, guildID string) (string, error) {
	return readThrough(ctx, m, "get_guild_lang",
		func(ctx context.Context) (string, error) { return m.remote.GetGuildLang(ctx, guildID) },
		func(ctx context.Context) (string, error) {
			settings, err := m.local.GetGuildSettings(ctx, guildID)
			if err != nil {
				return "", err
			}
			return settings.Lang, nil
		},
	)
}

// GetGuildPrefix returns the guild command prefix.
func (m *Manager) GetGuildPrefix(ctx context.Context, guildID string) (string, error) {
	return readThrough(ctx, m, "get_guild_prefix",
		func(ctx context.Context) (string, error) { return m.remote.GetGuildPrefix(ctx, guildID) },
		func(ctx context.Context) (string, error) {
			settings, err := m.local.GetGuildSettings(ctx, guildID)
			if err != nil {
				return "", err
			}
			return settings.Prefix, nil
		},
	)
}

// GetWelcomeChannel returns the guild welcome channel id, empty when unset.
func (m *Manager) GetWelcomeChannel(ctx context.Context, guildID string) (string, error) {
	return readThrough(ctx, m, "get_welcome_channel",
		func(ctx context.Context) (string, error) { return m.remote.GetWelcomeChannel(ctx, guildID) },
		func(ctx context.Context) (string, error) {
			settings, err := m.local.GetGuildSettings(ctx, guildID)
			if err != nil {
				return "", err
			}
			return settings.WelcomeChannelID, nil
		},
	)
}

// GetUserSettings returns the user's preferences.
func (m *Manager) GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	return readThrough(ctx, m, "get_user_settings",
		func(ctx context.Context) (*domain.UserSettings, error) { return m.remote.GetUserSettings(ctx, userID) },
		func(ctx context.Context) (*domain.UserSettings, error) { return m.local.GetUserSettings(ctx, userID) },
	)
}

// GetBalance returns the user's balance.
func (m *Manager) GetBalance(ctx context.Context, userID string) (int64, error) {
	return readThrough(ctx, m, "get_balance",
		func(ctx context.Context) (int64, error) { return m.remote.GetBalance(ctx, userID) },
		func(ctx context.Context) (int64, error) { return m.local.GetBalance(ctx, userID) },
	)
}

// GetLevel returns the user's level record.
func (m *Manager) GetLevel(ctx context.Context, userID string) (*domain.LevelRecord, error) {
	return readThrough(ctx, m, "get_level",
		func(ctx context.Context) (*domain.LevelRecord, error) { return m.remote.GetLevel(ctx, userID) },
		func(ctx context.Context) (*domain.LevelRecord, error) { return m.local.GetLevel(ctx, userID) },
	)
}
