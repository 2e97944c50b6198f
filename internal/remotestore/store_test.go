package remotestore

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturne-dev/nocturne-bot/internal/domain"

	_ "modernc.org/sqlite"
)

// The tests run the store's SQL against an in-memory SQLite database standing
// in for PostgreSQL. The statements stick to the shared dialect subset
// ($N placeholders, ON CONFLICT upserts, RETURNING) so both engines accept
// them.
func openFakeRemote(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	const schema = `
		CREATE TABLE guild_settings (
			guild_id TEXT PRIMARY KEY,
			lang TEXT NOT NULL DEFAULT 'en',
			prefix TEXT NOT NULL DEFAULT '!',
			welcome_channel_id TEXT,
			updated_at TEXT
		);
		CREATE TABLE user_settings (
			user_id TEXT PRIMARY KEY,
			dm_notifications INTEGER NOT NULL DEFAULT 1,
			level_up_messages INTEGER NOT NULL DEFAULT 1,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			updated_at TEXT
		);
		CREATE TABLE economy (
			user_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT
		);
		CREATE TABLE levels (
			user_id TEXT PRIMARY KEY,
			xp INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT
		);
	`
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, cfg CacheConfig) *Store {
	t.Helper()

	store := New(openFakeRemote(t), cfg, testLogger())
	t.Cleanup(store.Destroy)

	return store
}

func TestGetGuildSettings_ReadThrough(t *testing.T) {
	store := newTestStore(t, DefaultCacheConfig())
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, lang, prefix) VALUES ('g1', 'de', '?')`)
	require.NoError(t, err)

	settings, err := store.GetGuildSettings(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "de", settings.Lang)
	assert.Equal(t, "?", settings.Prefix)

	// Mutate behind the cache; the next read must still be served from it.
	_, err = store.db.ExecContext(ctx, `UPDATE guild_settings SET lang = 'fr' WHERE guild_id = 'g1'`)
	require.NoError(t, err)

	lang, err := store.GetGuildLang(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "de", lang)

	stats := store.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestGetGuildSettings_DefaultsForUnknownGuild(t *testing.T) {
	store := newTestStore(t, DefaultCacheConfig())

	settings, err := store.GetGuildSettings(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultLang, settings.Lang)
	assert.Equal(t, domain.DefaultPrefix, settings.Prefix)
}

func TestSetGuildLang_PatchesCompositeCacheEntry(t *testing.T) {
	store := newTestStore(t, DefaultCacheConfig())
	ctx := context.Background()

	require.NoError(t, store.SetGuildPrefix(ctx, "g1", "?"))

	// Prime the composite entry, then write one field through the store.
	_, err := store.GetGuildSettings(ctx, "g1")
	require.NoError(t, err)
	require.NoError(t, store.SetGuildLang(ctx, "g1", "de"))

	settings, err := store.GetGuildSettings(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "de", settings.Lang)
	assert.Equal(t, "?", settings.Prefix, "patching lang must keep the cached prefix")

	var stored string
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT lang FROM guild_settings WHERE guild_id = 'g1'`).Scan(&stored))
	assert.Equal(t, "de", stored, "the remote row is written before the cache")
}

func TestCacheTTL_ExpiryTriggersSingleRefetch(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.GuildTTL = 30 * time.Millisecond
	store := newTestStore(t, cfg)
	ctx := context.Background()

	_, err := store.GetGuildSettings(ctx, "g1")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = store.GetGuildSettings(ctx, "g1")
	require.NoError(t, err)
	_, err = store.GetGuildSettings(ctx, "g1")
	require.NoError(t, err)

	stats := store.CacheStats()
	assert.Equal(t, int64(2), stats.Misses, "one initial fetch plus exactly one refetch")
	assert.Equal(t, int64(1), stats.Hits)
}

func TestUserSettings_RoundTrip(t *testing.T) {
	store := newTestStore(t, DefaultCacheConfig())
	ctx := context.Background()

	settings, err := store.GetUserSettings(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, settings.DMNotifications)

	require.NoError(t, store.SetUserSettings(ctx, &domain.UserSettings{
		UserID:          "u1",
		DMNotifications: false,
		LevelUpMessages: true,
		Timezone:        "Asia/Tokyo",
	}))

	settings, err = store.GetUserSettings(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, settings.DMNotifications)
	assert.Equal(t, "Asia/Tokyo", settings.Timezone)
}

func TestAddMoney_AdditiveAndCached(t *testing.T) {
	store := newTestStore(t, DefaultCacheConfig())
	ctx := context.Background()

	balance, err := store.AddMoney(ctx, "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	balance, err = store.AddMoney(ctx, "u1", 25)
	require.NoError(t, err)
	assert.Equal(t, int64(125), balance)

	// The setter refreshed the cache, so this read is a hit.
	balance, err = store.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(125), balance)
	assert.Equal(t, int64(1), store.CacheStats().Hits)
}

func TestAddXP_LevelMonotone(t *testing.T) {
	store := newTestStore(t, DefaultCacheConfig())
	ctx := context.Background()

	record, err := store.AddXP(ctx, "u1", 1500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), record.XP)
	assert.Equal(t, int64(2), record.Level)

	record, err = store.AddXP(ctx, "u1", -1400)
	require.NoError(t, err)
	assert.Equal(t, int64(100), record.XP)
	assert.Equal(t, int64(2), record.Level, "level must not decrease")
}

func TestAddXP_FirstWriteNegativeClampsLevel(t *testing.T) {
	store := newTestStore(t, DefaultCacheConfig())
	ctx := context.Background()

	record, err := store.AddXP(ctx, "u1", -1500)
	require.NoError(t, err)
	assert.Equal(t, int64(-1500), record.XP)
	assert.Equal(t, int64(1), record.Level, "level starts at 1 regardless of the first amount")
	assert.Equal(t, record.Level, domain.LevelForXP(record.XP))
}

func TestCheckHealth(t *testing.T) {
	store := newTestStore(t, DefaultCacheConfig())

	assert.True(t, store.CheckHealth(context.Background(), time.Second))

	require.NoError(t, store.db.Close())
	assert.False(t, store.CheckHealth(context.Background(), time.Second))
}
