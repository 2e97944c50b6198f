package manager

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturne-dev/nocturne-bot/internal/domain"
	"github.com/nocturne-dev/nocturne-bot/internal/localstore"
	"github.com/nocturne-dev/nocturne-bot/internal/remotestore"
)

// fakeRemote implements RemoteStore with in-memory maps, a switchable health
// flag and optional write failures.
type fakeRemote struct {
	mu sync.Mutex

	healthy      bool
	healthChecks int

	failOps   bool
	failApply bool

	guilds   map[string]*domain.GuildSettings
	users    map[string]*domain.UserSettings
	balances map[string]int64
	levels   map[string]*domain.LevelRecord

	applied []string
	closed  bool
}

func newFakeRemote(healthy bool) *fakeRemote {
	return &fakeRemote{
		healthy:  healthy,
		guilds:   make(map[string]*domain.GuildSettings),
		users:    make(map[string]*domain.UserSettings),
		balances: make(map[string]int64),
		levels:   make(map[string]*domain.LevelRecord),
	}
}

func (f *fakeRemote) setHealthy(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = v
}

func (f *fakeRemote) healthCheckCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthChecks
}

func (f *fakeRemote) guild(guildID string) *domain.GuildSettings {
	if settings, ok := f.guilds[guildID]; ok {
		return settings
	}
	settings := &domain.GuildSettings{GuildID: guildID, Lang: domain.DefaultLang, Prefix: domain.DefaultPrefix}
	f.guilds[guildID] = settings
	return settings
}

func (f *fakeRemote) opErr() error {
	if f.failOps {
		return errors.New("remote unavailable")
	}
	return nil
}

func (f *fakeRemote) GetGuildSettings(_ context.Context, guildID string) (*domain.GuildSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.opErr(); err != nil {
		return nil, err
	}
	settings := *f.guild(guildID)
	return &settings, nil
}

func (f *fakeRemote) GetGuildLang(ctx context.Context, guildID string) (string, error) {
	settings, err := f.GetGuildSettings(ctx, guildID)
	if err != nil {
		return "", err
	}
	return settings.Lang, nil
}

func (f *fakeRemote) GetGuildPrefix(ctx context.Context, guildID string) (string, error) {
	settings, err := f.GetGuildSettings(ctx, guildID)
	if err != nil {
		return "", err
	}
	return settings.Prefix, nil
}

func (f *fakeRemote) GetWelcomeChannel(ctx context.Context, guildID string) (string, error) {
	settings, err := f.GetGuildSettings(ctx, guildID)
	if err != nil {
		return "", err
	}
	return settings.WelcomeChannelID, nil
}

func (f *fakeRemote) SetGuildLang(_ context.Context, guildID, lang string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.opErr(); err != nil {
		return err
	}
	f.guild(guildID).Lang = lang
	return nil
}

func (f *fakeRemote) SetGuildPrefix(_ context.Context, guildID, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.opErr(); err != nil {
		return err
	}
	f.guild(guildID).Prefix = prefix
	return nil
}

func (f *fakeRemote) SetWelcomeChannel(_ context.Context, guildID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.opErr(); err != nil {
		return err
	}
	f.guild(guildID).WelcomeChannelID = channelID
	return nil
}

func (f *fakeRemote) GetUserSettings(_ context.Context, userID string) (*domain.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if settings, ok := f.users[userID]; ok {
		copied := *settings
		return &copied, nil
	}
	return domain.DefaultUserSettings(userID), nil
}

func (f *fakeRemote) SetUserSettings(_ context.Context, settings *domain.UserSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.opErr(); err != nil {
		return err
	}
	copied := *settings
	f.users[settings.UserID] = &copied
	return nil
}

func (f *fakeRemote) GetBalance(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID], nil
}

func (f *fakeRemote) AddMoney(_ context.Context, userID string, amount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.opErr(); err != nil {
		return 0, err
	}
	f.balances[userID] += amount
	return f.balances[userID], nil
}

func (f *fakeRemote) GetLevel(_ context.Context, userID string) (*domain.LevelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.levels[userID]; ok {
		copied := *record
		return &copied, nil
	}
	return &domain.LevelRecord{UserID: userID, Level: 1}, nil
}

func (f *fakeRemote) AddXP(_ context.Context, userID string, amount int64) (*domain.LevelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.opErr(); err != nil {
		return nil, err
	}
	record, ok := f.levels[userID]
	if !ok {
		record = &domain.LevelRecord{UserID: userID, Level: 1}
		f.levels[userID] = record
	}
	record.XP += amount
	if level := domain.LevelForXP(record.XP); level > record.Level {
		record.Level = level
	}
	copied := *record
	return &copied, nil
}

func (f *fakeRemote) Apply(ctx context.Context, item *domain.SyncItem) error {
	f.mu.Lock()
	if f.failApply {
		f.mu.Unlock()
		return errors.New("remote unavailable")
	}
	f.applied = append(f.applied, item.Table+"."+item.Operation)
	f.mu.Unlock()

	switch item.Operation {
	case domain.OpSetLang, domain.OpSetPrefix, domain.OpSetWelcomeChannel:
		var payload domain.GuildPayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return err
		}
		switch item.Operation {
		case domain.OpSetLang:
			return f.SetGuildLang(ctx, payload.GuildID, payload.Lang)
		case domain.OpSetPrefix:
			return f.SetGuildPrefix(ctx, payload.GuildID, payload.Prefix)
		default:
			return f.SetWelcomeChannel(ctx, payload.GuildID, payload.WelcomeChannelID)
		}
	case domain.OpUpsertSettings:
		var payload domain.UserSettingsPayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return err
		}
		return f.SetUserSettings(ctx, &domain.UserSettings{
			UserID:          payload.UserID,
			DMNotifications: payload.DMNotifications,
			LevelUpMessages: payload.LevelUpMessages,
			Timezone:        payload.Timezone,
		})
	case domain.OpAddMoney:
		var payload domain.AmountPayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return err
		}
		_, err := f.AddMoney(ctx, payload.UserID, payload.Amount)
		return err
	case domain.OpAddXP:
		var payload domain.AmountPayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return err
		}
		_, err := f.AddXP(ctx, payload.UserID, payload.Amount)
		return err
	default:
		return errors.New("unknown operation")
	}
}

func (f *fakeRemote) CheckHealth(_ context.Context, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthChecks++
	return f.healthy
}

func (f *fakeRemote) CacheStats() *remotestore.CacheStats {
	return &remotestore.CacheStats{}
}

func (f *fakeRemote) Destroy() {}

func (f *fakeRemote) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openLocal(t *testing.T) *localstore.Store {
	t.Helper()

	store, err := localstore.Open(context.Background(), filepath.Join(t.TempDir(), "bot.db"), testLogger())
	require.NoError(t, err)

	return store
}

func fastConfig() Config {
	return Config{
		InitialHealthTimeout: 100 * time.Millisecond,
		HealthTimeout:        100 * time.Millisecond,
		ReadTimeout:          100 * time.Millisecond,
		WriteTimeout:         100 * time.Millisecond,
		HealthInterval:       20 * time.Millisecond,
		SyncInterval:         25 * time.Millisecond,
		ReconnectBackoff:     30 * time.Millisecond,
		SyncBatchSize:        100,
		ReapEveryCycles:      1000,
	}
}

func newTestManager(t *testing.T, remote *fakeRemote, cfg Config) *Manager {
	t.Helper()

	m := New(openLocal(t), remote, cfg, testLogger())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	return m
}

func TestStart_ForcedOffline(t *testing.T) {
	remote := newFakeRemote(true)
	cfg := fastConfig()
	cfg.ForceOffline = true
	m := newTestManager(t, remote, cfg)

	mode := m.Start(context.Background())
	assert.Equal(t, ModeDisabled, mode)
	assert.Equal(t, 0, remote.healthCheckCount(), "disabled mode must never touch the remote store")

	stats := m.Stats(context.Background())
	assert.Equal(t, ModeDisabled, stats.Mode)
	assert.True(t, stats.Available)
	assert.Nil(t, stats.RemoteCache)
}

func TestStart_ModeFollowsInitialHealth(t *testing.T) {
	testCases := []struct {
		name     string
		healthy  bool
		expected Mode
	}{
		{name: "healthy remote", healthy: true, expected: ModeRemote},
		{name: "unreachable remote", healthy: false, expected: ModeLocal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(t, newFakeRemote(tc.healthy), fastConfig())
			assert.Equal(t, tc.expected, m.Start(context.Background()))
		})
	}
}

func TestWriteThenReadLocal_EveryMode(t *testing.T) {
	configure := map[string]func(cfg *Config, remote *fakeRemote){
		"remote":   func(cfg *Config, remote *fakeRemote) { remote.setHealthy(true) },
		"local":    func(cfg *Config, remote *fakeRemote) { remote.setHealthy(false) },
		"disabled": func(cfg *Config, remote *fakeRemote) { cfg.ForceOffline = true },
	}

	for name, setup := range configure {
		t.Run(name, func(t *testing.T) {
			remote := newFakeRemote(false)
			cfg := fastConfig()
			setup(&cfg, remote)

			m := newTestManager(t, remote, cfg)
			m.Start(context.Background())
			ctx := context.Background()

			require.NoError(t, m.SetGuildLang(ctx, "g1", "de"))
			lang, err := m.GetGuildLang(ctx, "g1")
			require.NoError(t, err)
			assert.Equal(t, "de", lang)

			require.NoError(t, m.SetUserSettings(ctx, &domain.UserSettings{UserID: "u1", Timezone: "UTC"}))
			settings, err := m.GetUserSettings(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "u1", settings.UserID)

			balance, err := m.AddMoney(ctx, "u1", 42)
			require.NoError(t, err)
			assert.Equal(t, int64(42), balance)
		})
	}
}

func TestWrites_EnqueueOnlyWhenRemoteNotAuthoritative(t *testing.T) {
	t.Run("remote mode does not enqueue", func(t *testing.T) {
		m := newTestManager(t, newFakeRemote(true), fastConfig())
		m.Start(context.Background())
		ctx := context.Background()

		require.NoError(t, m.SetGuildLang(ctx, "g1", "de"))

		stats := m.Stats(ctx)
		assert.Equal(t, 0, stats.SyncQueueSize)
	})

	t.Run("local mode enqueues", func(t *testing.T) {
		m := newTestManager(t, newFakeRemote(false), fastConfig())
		m.Start(context.Background())
		ctx := context.Background()

		require.NoError(t, m.SetGuildLang(ctx, "g1", "de"))
		_, err := m.AddXP(ctx, "u1", 100)
		require.NoError(t, err)

		stats := m.Stats(ctx)
		assert.Equal(t, 2, stats.SyncQueueSize)
	})
}

func TestRemoteWriteFailure_IsNotQueued(t *testing.T) {
	// A write that fails while the remote store is still nominally healthy
	// leaves no queue item behind; the local copy stays ahead until the next
	// health check flips the mode. Pins the accepted race.
	remote := newFakeRemote(true)
	m := newTestManager(t, remote, fastConfig())
	m.Start(context.Background())
	ctx := context.Background()

	remote.failOps = true
	require.NoError(t, m.SetGuildLang(ctx, "g1", "de"))

	stats := m.Stats(ctx)
	assert.Equal(t, 0, stats.SyncQueueSize)

	// The local copy still serves the write through the read fallback.
	lang, err := m.GetGuildLang(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "de", lang)
}

func TestReads_FallBackToLocalOnRemoteError(t *testing.T) {
	remote := newFakeRemote(true)
	m := newTestManager(t, remote, fastConfig())
	m.Start(context.Background())
	ctx := context.Background()

	require.NoError(t, m.SetGuildLang(ctx, "g1", "fr"))
	remote.failOps = true

	lang, err := m.GetGuildLang(ctx, "g1")
	require.NoError(t, err, "reads must never fail due to remote degradation")
	assert.Equal(t, "fr", lang)
}

func TestModeTransitions_FollowHealthSignal(t *testing.T) {
	remote := newFakeRemote(false)
	m := newTestManager(t, remote, fastConfig())

	mode := m.Start(context.Background())
	require.Equal(t, ModeLocal, mode)

	// Remote recovers: the scheduled reconnect must flip to remote.
	remote.setHealthy(true)
	require.Eventually(t, func() bool { return m.Mode() == ModeRemote },
		2*time.Second, 5*time.Millisecond, "reconnect should enter remote mode")

	// Remote degrades: the periodic health check must fall back to local.
	remote.setHealthy(false)
	require.Eventually(t, func() bool { return m.Mode() == ModeLocal },
		2*time.Second, 5*time.Millisecond, "health check should fall back to local mode")

	// And recovery works again after a fallback.
	remote.setHealthy(true)
	require.Eventually(t, func() bool { return m.Mode() == ModeRemote },
		2*time.Second, 5*time.Millisecond)
}

func TestQueueConvergence_DrainAfterReconnect(t *testing.T) {
	remote := newFakeRemote(false)
	m := newTestManager(t, remote, fastConfig())
	ctx := context.Background()

	require.Equal(t, ModeLocal, m.Start(ctx))

	require.NoError(t, m.SetGuildLang(ctx, "g1", "de"))
	require.NoError(t, m.SetGuildPrefix(ctx, "g1", "?"))
	_, err := m.AddMoney(ctx, "u1", 100)
	require.NoError(t, err)

	stats := m.Stats(ctx)
	require.Equal(t, 3, stats.SyncQueueSize)

	remote.setHealthy(true)
	require.Eventually(t, func() bool {
		return m.Stats(ctx).SyncQueueSize == 0
	}, 2*time.Second, 5*time.Millisecond, "queue should drain after reconnect")

	lang, err := remote.GetGuildLang(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "de", lang)

	prefix, err := remote.GetGuildPrefix(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "?", prefix)

	balance, err := remote.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestDrain_FailuresIncrementRetries(t *testing.T) {
	remote := newFakeRemote(false)
	m := newTestManager(t, remote, fastConfig())
	ctx := context.Background()

	require.Equal(t, ModeLocal, m.Start(ctx))
	require.NoError(t, m.SetGuildLang(ctx, "g1", "de"))

	remote.failApply = true
	remote.setHealthy(true)
	require.Eventually(t, func() bool { return m.Mode() == ModeRemote },
		2*time.Second, 5*time.Millisecond)

	// Items keep failing and stay queued.
	require.Never(t, func() bool {
		return m.Stats(ctx).SyncQueueSize == 0
	}, 200*time.Millisecond, 20*time.Millisecond)

	remote.failApply = false
	require.Eventually(t, func() bool {
		return m.Stats(ctx).SyncQueueSize == 0
	}, 2*time.Second, 5*time.Millisecond, "item should drain once the remote recovers")
}

func TestFireAndForgetWrites_ReachRemoteEventually(t *testing.T) {
	remote := newFakeRemote(true)
	m := newTestManager(t, remote, fastConfig())
	ctx := context.Background()

	require.Equal(t, ModeRemote, m.Start(ctx))

	balance, err := m.AddMoney(ctx, "u1", 250)
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance)

	require.Eventually(t, func() bool {
		remoteBalance, _ := remote.GetBalance(ctx, "u1")
		return remoteBalance == 250
	}, 2*time.Second, 5*time.Millisecond)
}

func TestShutdown_FinalDrainAndClose(t *testing.T) {
	remote := newFakeRemote(true)
	local := openLocal(t)
	cfg := fastConfig()
	cfg.SyncInterval = time.Hour // only the final drain may run
	m := New(local, remote, cfg, testLogger())
	ctx := context.Background()

	require.Equal(t, ModeRemote, m.Start(ctx))

	// Enqueue directly: a remote-mode write would not queue.
	require.NoError(t, local.SetGuildLang(ctx, "g1", "de", true))

	require.NoError(t, m.Shutdown(ctx))

	assert.True(t, remote.closed)
	lang, err := remote.GetGuildLang(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "de", lang, "shutdown must drain the queue one final time")

	// Shutdown is idempotent.
	require.NoError(t, m.Shutdown(ctx))
}

func TestShutdown_ConcurrentWithReconnect(t *testing.T) {
	// Races Shutdown against the reconnect timer entering remote mode. The
	// loop start and the closed flag share one lock, so whichever side wins,
	// Shutdown waits for exactly the loops that were started.
	for i := 0; i < 25; i++ {
		remote := newFakeRemote(false)
		cfg := fastConfig()
		cfg.ReconnectBackoff = time.Millisecond
		m := newTestManager(t, remote, cfg)

		require.Equal(t, ModeLocal, m.Start(context.Background()))
		remote.setHealthy(true)

		// Vary the offset so Shutdown lands before, during and after the
		// timer fires.
		time.Sleep(time.Duration(i%4) * 500 * time.Microsecond)
		require.NoError(t, m.Shutdown(context.Background()))
	}
}

func TestReap_RunsOnDeterministicCadence(t *testing.T) {
	remote := newFakeRemote(true)
	local := openLocal(t)
	cfg := fastConfig()
	cfg.SyncInterval = time.Hour
	cfg.ReapEveryCycles = 2
	m := New(local, remote, cfg, testLogger())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	ctx := context.Background()

	require.Equal(t, ModeRemote, m.Start(ctx))

	// A dead-lettered item: out of retry budget, invisible to draining.
	require.NoError(t, local.SetGuildLang(ctx, "g1", "de", true))
	items, err := local.SyncQueue(ctx, 1)
	require.NoError(t, err)
	for i := 0; i < localstore.MaxRetries; i++ {
		require.NoError(t, local.MarkSyncFailed(ctx, items[0].ID, errors.New("down")))
	}

	m.drain(ctx)
	size, err := local.SyncQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size, "first cycle must not reap yet")

	m.drain(ctx)
	size, err = local.SyncQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size, "second cycle reaps the dead-lettered item")
}
