package domain

import "time"

// GuildSettings holds per-guild configuration. One row per guild, upserted
// on any setter and never deleted.
type GuildSettings struct {
	GuildID          string
	Lang             string
	Prefix           string
	WelcomeChannelID string
	UpdatedAt        time.Time
}

// UserSettings holds per-user preferences.
type UserSettings struct {
	UserID          string
	DMNotifications bool
	LevelUpMessages bool
	Timezone        string
	UpdatedAt       time.Time
}

const (
	DefaultLang   = "en"
	DefaultPrefix = "!"
)

// DefaultUserSettings returns the preferences applied before a user has
// saved anything.
func DefaultUserSettings(userID string) *UserSettings {
	return &UserSettings{
		UserID:          userID,
		DMNotifications: true,
		LevelUpMessages: true,
		Timezone:        "UTC",
	}
}
