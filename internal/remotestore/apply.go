package remotestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nocturne-dev/nocturne-bot/internal/apperr"
	"github.com/nocturne-dev/nocturne-bot/internal/domain"
)

// Apply replays a sync queue item against the remote store. Settings
// operations overwrite and are safe to replay; add operations are additive,
// so an item that already landed remotely before the client gave up will be
// applied twice. That at-least-once window is accepted for additive ops.
func (s *Store) Apply(ctx context.Context, item *domain.SyncItem) error {
	if item == nil {
		return apperr.NewValidationError("nil sync item")
	}

	switch item.Table {
	case domain.TableGuildSettings:
		return s.applyGuild(ctx, item)
	case domain.TableUserSettings:
		return s.applyUserSettings(ctx, item)
	case domain.TableEconomy:
		return s.applyEconomy(ctx, item)
	case domain.TableLevels:
		return s.applyLevels(ctx, item)
	default:
		return apperr.NewValidationError(fmt.Sprintf("unknown sync table %q", item.Table))
	}
}

func (s *Store) applyGuild(ctx context.Context, item *domain.SyncItem) error {
	var payload domain.GuildPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return apperr.NewValidationError(fmt.Sprintf("decode guild payload: %v", err))
	}

	switch item.Operation {
	case domain.OpSetLang:
		return s.SetGuildLang(ctx, payload.GuildID, payload.Lang)
	case domain.OpSetPrefix:
		return s.SetGuildPrefix(ctx, payload.GuildID, payload.Prefix)
	case domain.OpSetWelcomeChannel:
		return s.SetWelcomeChannel(ctx, payload.GuildID, payload.WelcomeChannelID)
	default:
		return apperr.NewValidationError(fmt.Sprintf("unknown guild operation %q", item.Operation))
	}
}

func (s *Store) applyUserSettings(ctx context.Context, item *domain.SyncItem) error {
	if item.Operation != domain.OpUpsertSettings {
		return apperr.NewValidationError(fmt.Sprintf("unknown user settings operation %q", item.Operation))
	}

	var payload domain.UserSettingsPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return apperr.NewValidationError(fmt.Sprintf("decode user settings payload: %v", err))
	}

	return s.SetUserSettings(ctx, &domain.UserSettings{
		UserID:          payload.UserID,
		DMNotifications: payload.DMNotifications,
		LevelUpMessages: payload.LevelUpMessages,
		Timezone:        payload.Timezone,
	})
}

func (s *Store) applyEconomy(ctx context.Context, item *domain.SyncItem) error {
	if item.Operation != domain.OpAddMoney {
		return apperr.NewValidationError(fmt.Sprintf("unknown economy operation %q", item.Operation))
	}

	var payload domain.AmountPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return apperr.NewValidationError(fmt.Sprintf("decode economy payload: %v", err))
	}

	_, err := s.AddMoney(ctx, payload.UserID, payload.Amount)
	return err
}

func (s *Store) applyLevels(ctx context.Context, item *domain.SyncItem) error {
	if item.Operation != domain.OpAddXP {
		return apperr.NewValidationError(fmt.Sprintf("unknown levels operation %q", item.Operation))
	}

	var payload domain.AmountPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return apperr.NewValidationError(fmt.Sprintf("decode levels payload: %v", err))
	}

	_, err := s.AddXP(ctx, payload.UserID, payload.Amount)
	return err
}
