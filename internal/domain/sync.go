package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Table names used by sync queue items. They match the persisted schema on
// both the local and the remote store.
const (
	TableGuildSettings = "guild_settings"
	TableUserSettings  = "user_settings"
	TableEconomy       = "economy"
	TableLevels        = "levels"
)

// Operations recorded in the sync queue. Settings operations carry overwrite
// semantics and are safe to replay; Add operations are additive and are not.
const (
	OpSetLang           = "set_lang"
	OpSetPrefix         = "set_prefix"
	OpSetWelcomeChannel = "set_welcome_channel"
	OpUpsertSettings    = "upsert_settings"
	OpAddMoney          = "add_money"
	OpAddXP             = "add_xp"
)

// SyncItem is one outbound mutation awaiting confirmation by the remote
// store. Items live in the local sync_queue table until applied or reaped.
type SyncItem struct {
	ID        int64
	Table     string
	Operation string
	Payload   []byte
	CreatedAt time.Time
	Retries   int
	LastError string
}

// GuildPayload is the serialized form of guild settings mutations.
type GuildPayload struct {
	GuildID          string `json:"guild_id"`
	Lang             string `json:"lang,omitempty"`
	Prefix           string `json:"prefix,omitempty"`
	WelcomeChannelID string `json:"welcome_channel_id,omitempty"`
}

// UserSettingsPayload is the serialized form of user settings mutations.
type UserSettingsPayload struct {
	UserID          string `json:"user_id"`
	DMNotifications bool   `json:"dm_notifications"`
	LevelUpMessages bool   `json:"level_up_messages"`
	Timezone        string `json:"timezone"`
}

// AmountPayload is the serialized form of additive economy and XP mutations.
type AmountPayload struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// NewSyncItem serializes payload and builds an item ready for enqueueing.
// The ID is assigned by the local store on insert.
func NewSyncItem(table, operation string, payload any) (*SyncItem, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode sync payload: %w", err)
	}

	return &SyncItem{
		Table:     table,
		Operation: operation,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}
