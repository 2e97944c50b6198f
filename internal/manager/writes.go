package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/nocturne-dev/nocturne-bot/internal/apperr"
	"github.com/nocturne-dev/nocturne-bot/internal/domain"
	"github.com/nocturne-dev/nocturne-bot/pkg/metrics"
)

// Writes go to the local store first, always and synchronously. The enqueue
// flag is decided from the mode observed before any remote attempt: when the
// remote store is authoritative the local write does not also enqueue a
// replay, because the immediately following remote write is the real one.
// A remote write that then fails is logged and NOT queued; the gap stays
// open until a health check flips the mode. That race is accepted: queueing
// here as well would double-apply every write that merely timed out
// client-side but landed server-side.

// localFailure wraps and reports a local store failure, the one error class
// callers must see: local durability is the guarantee that has to hold.
func (m *Manager) localFailure(ctx context.Context, op string, err error) error {
	appErr := apperr.NewLocalStoreError(op, err)
	m.errs.Handle(ctx, appErr)
	return appErr
}

// remoteWrite runs fn under the write deadline, logging failures. The error
// never propagates: local durability already succeeded.
func (m *Manager) remoteWrite(ctx context.Context, op string, fn func(context.Context) error) {
	writeCtx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := fn(writeCtx)
	metrics.RecordRemoteOp(op, err, time.Since(start))
	if err == nil {
		return
	}

	m.log.Warn("remote write failed, local copy is ahead until next health check",
		slog.String("op", op),
		slog.String("category", string(apperr.Classify(err))),
		slog.Any("error", apperr.NewRemoteError(op, err)),
	)
}

// remoteWriteAsync runs the remote side of a fire-and-forget write in a
// detached goroutine hanging off the manager's root context, so the caller
// is never blocked on the remote store and failures are only logged.
func (m *Manager) remoteWriteAsync(op string, fn func(context.Context) error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.remoteWrite(m.rootCtx, op, fn)
	}()
}

// SetGuildLang updates the guild language.
func (m *Manager) SetGuildLang(ctx context.Context, guildID, lang string) error {
	mode := m.Mode()

	if err := m.local.SetGuildLang(ctx, guildID, lang, mode != ModeRemote); err != nil {
		return m.localFailure(ctx, "set guild lang", err)
	}

	if mode == ModeRemote {
		m.remoteWrite(ctx, "set_guild_lang", func(ctx context.Context) error {
			return m.remote.SetGuildLang(ctx, guildID, lang)
		})
	}

	return nil
}

// SetGuildPrefix updates the guild command prefix.
func (m *Manager) SetGuildPrefix(ctx context.Context, guildID, prefix string) error {
	mode := m.Mode()

	if err := m.local.SetGuildPrefix(ctx, guildID, prefix, mode != ModeRemote); err != nil {
		return m.localFailure(ctx, "set guild prefix", err)
	}

	if mode == ModeRemote {
		m.remoteWrite(ctx, "set_guild_prefix", func(ctx context.Context) error {
			return m.remote.SetGuildPrefix(ctx, guildID, prefix)
		})
	}

	return nil
}

// SetWelcomeChannel updates the guild welcome channel.
func (m *Manager) SetWelcomeChannel(ctx context.Context, guildID, channelID string) error {
	mode := m.Mode()

	if err := m.local.SetWelcomeChannel(ctx, guildID, channelID, mode != ModeRemote); err != nil {
		return m.localFailure(ctx, "set welcome channel", err)
	}

	if mode == ModeRemote {
		m.remoteWrite(ctx, "set_welcome_channel", func(ctx context.Context) error {
			return m.remote.SetWelcomeChannel(ctx, guildID, channelID)
		})
	}

	return nil
}

// SetUserSettings saves the user's preferences.
func (m *Manager) SetUserSettings(ctx context.Context, settings *domain.UserSettings) error {
	mode := m.Mode()

	if err := m.local.SetUserSettings(ctx, settings, mode != ModeRemote); err != nil {
		return m.localFailure(ctx, "set user settings", err)
	}

	if mode == ModeRemote {
		m.remoteWrite(ctx, "set_user_settings", func(ctx context.Context) error {
			return m.remote.SetUserSettings(ctx, settings)
		})
	}

	return nil
}

// AddMoney applies an additive balance change. The returned balance reflects
// the local store; the remote side is fire-and-forget.
func (m *Manager) AddMoney(ctx context.Context, userID string, amount int64) (int64, error) {
	mode := m.Mode()

	balance, err := m.local.AddMoney(ctx, userID, amount, mode != ModeRemote)
	if err != nil {
		return 0, m.localFailure(ctx, "add money", err)
	}

	if mode == ModeRemote {
		m.remoteWriteAsync("add_money", func(ctx context.Context) error {
			_, err := m.remote.AddMoney(ctx, userID, amount)
			return err
		})
	}

	return balance, nil
}

// AddXP adds experience and reports level changes from the local store; the
// remote side is fire-and-forget.
func (m *Manager) AddXP(ctx context.Context, userID string, amount int64) (*domain.XPResult, error) {
	mode := m.Mode()

	result, err := m.local.AddXP(ctx, userID, amount, mode != ModeRemote)
	if err != nil {
		return nil, m.localFailure(ctx, "add xp", err)
	}

	if mode == ModeRemote {
		m.remoteWriteAsync("add_xp", func(ctx context.Context) error {
			_, err := m.remote.AddXP(ctx, userID, amount)
			return err
		})
	}

	return result, nil
}
