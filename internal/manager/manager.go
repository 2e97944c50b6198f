// Package manager orchestrates the dual-store persistence layer. It owns the
// mode state machine deciding which store is authoritative, drives
// write-through semantics and keeps the local and remote stores converging.
package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/nocturne-dev/nocturne-bot/internal/apperr"
	"github.com/nocturne-dev/nocturne-bot/internal/domain"
	"github.com/nocturne-dev/nocturne-bot/internal/remotestore"
	"github.com/nocturne-dev/nocturne-bot/pkg/metrics"
)

// Mode is the manager's current belief about which store is authoritative.
type Mode string

const (
	ModeUnknown  Mode = "unknown"
	ModeDisabled Mode = "disabled"
	ModeLocal    Mode = "local"
	ModeRemote   Mode = "remote"
)

// LocalStore is the durable fallback store. Its mutators accept an enqueue
// flag controlling whether the mutation is also recorded in the sync queue.
type LocalStore interface {
	GetGuildSettings(ctx context.Context, guildID string) (*domain.GuildSettings, error)
	SetGuildLang(ctx context.Context, guildID, lang string, enqueue bool) error
	SetGuildPrefix(ctx context.Context, guildID, prefix string, enqueue bool) error
	SetWelcomeChannel(ctx context.Context, guildID, channelID string, enqueue bool) error
	GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
	SetUserSettings(ctx context.Context, settings *domain.UserSettings, enqueue bool) error
	GetBalance(ctx context.Context, userID string) (int64, error)
	AddMoney(ctx context.Context, userID string, amount int64, enqueue bool) (int64, error)
	GetLevel(ctx context.Context, userID string) (*domain.LevelRecord, error)
	AddXP(ctx context.Context, userID string, amount int64, enqueue bool) (*domain.XPResult, error)
	SyncQueue(ctx context.Context, limit int) ([]*domain.SyncItem, error)
	MarkSyncSuccess(ctx context.Context, id int64) error
	MarkSyncFailed(ctx context.Context, id int64, cause error) error
	ClearOldSyncQueue(ctx context.Context) (int64, error)
	SyncQueueSize(ctx context.Context) (int, error)
	Close() error
}

// RemoteStore is the cached accessor for the remote database.
type RemoteStore interface {
	GetGuildSettings(ctx context.Context, guildID string) (*domain.GuildSettings, error)
	GetGuildLang(ctx context.Context, guildID string) (string, error)
	GetGuildPrefix(ctx context.Context, guildID string) (string, error)
	GetWelcomeChannel(ctx context.Context, guildID string) (string, error)
	SetGuildLang(ctx context.Context, guildID, lang string) error
	SetGuildPrefix(ctx context.Context, guildID, prefix string) error
	SetWelcomeChannel(ctx context.Context, guildID, channelID string) error
	GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
	SetUserSettings(ctx context.Context, settings *domain.UserSettings) error
	GetBalance(ctx context.Context, userID string) (int64, error)
	AddMoney(ctx context.Context, userID string, amount int64) (int64, error)
	GetLevel(ctx context.Context, userID string) (*domain.LevelRecord, error)
	AddXP(ctx context.Context, userID string, amount int64) (*domain.LevelRecord, error)
	Apply(ctx context.Context, item *domain.SyncItem) error
	CheckHealth(ctx context.Context, timeout time.Duration) bool
	CacheStats() *remotestore.CacheStats
	Destroy()
	Close() error
}

// Config carries the tunables of the orchestration loops.
type Config struct {
	// ForceOffline short-circuits straight to disabled mode; the remote
	// store is never contacted for the process lifetime.
	ForceOffline bool

	InitialHealthTimeout time.Duration
	HealthTimeout        time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration

	HealthInterval   time.Duration
	SyncInterval     time.Duration
	ReconnectBackoff time.Duration

	SyncBatchSize int
	// ReapEveryCycles controls the deterministic queue reap: every Nth drain
	// cycle runs ClearOldSyncQueue.
	ReapEveryCycles int
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		InitialHealthTimeout: 3000 * time.Millisecond,
		HealthTimeout:        2000 * time.Millisecond,
		ReadTimeout:          800 * time.Millisecond,
		WriteTimeout:         1000 * time.Millisecond,
		HealthInterval:       30 * time.Second,
		SyncInterval:         60 * time.Second,
		ReconnectBackoff:     5 * time.Minute,
		SyncBatchSize:        100,
		ReapEveryCycles:      60,
	}
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.InitialHealthTimeout <= 0 {
		c.InitialHealthTimeout = defaults.InitialHealthTimeout
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = defaults.HealthTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = defaults.HealthInterval
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = defaults.SyncInterval
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = defaults.ReconnectBackoff
	}
	if c.SyncBatchSize <= 0 {
		c.SyncBatchSize = defaults.SyncBatchSize
	}
	if c.ReapEveryCycles <= 0 {
		c.ReapEveryCycles = defaults.ReapEveryCycles
	}
}

// Manager is the single entry point the rest of the application talks to.
// It is the only writer of the mode field.
type Manager struct {
	cfg    Config
	local  LocalStore
	remote RemoteStore
	log    *slog.Logger
	errs   *apperr.Handler

	mu          sync.Mutex
	mode        Mode
	available   bool
	cancelLoops context.CancelFunc
	reconnect   *time.Timer
	closed      bool

	// rootCtx outlives any caller context; loops and detached writes hang
	// off it so Shutdown can stop them.
	rootCtx    context.Context
	cancelRoot context.CancelFunc

	wg sync.WaitGroup

	reapCycles int
}

// New wires a manager over the two stores. Call Start before use and
// Shutdown when done.
func New(local LocalStore, remote RemoteStore, cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	cfg.applyDefaults()

	rootCtx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:        cfg,
		local:      local,
		remote:     remote,
		log:        log,
		errs:       apperr.NewHandler(log, sentry.CurrentHub().Client() != nil),
		mode:       ModeUnknown,
		rootCtx:    rootCtx,
		cancelRoot: cancel,
	}
}

// Start resolves the initial mode. Forced-offline configurations go straight
// to disabled; otherwise one bounded health check decides between remote and
// local. Start never fails: a dead remote store only means starting local.
func (m *Manager) Start(ctx context.Context) Mode {
	if m.cfg.ForceOffline {
		m.transition(ModeDisabled)
		m.setAvailable(true)
		m.log.Info("remote store disabled by configuration, serving local only")
		return ModeDisabled
	}

	if m.remote.CheckHealth(ctx, m.cfg.InitialHealthTimeout) {
		m.toRemote(false)
	} else {
		m.toLocal()
	}

	m.setAvailable(true)
	return m.Mode()
}

// Mode returns the current mode.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Manager) setAvailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = v
}

// transition records a mode change. Callers must not hold mu.
func (m *Manager) transition(to Mode) {
	m.mu.Lock()
	from := m.mode
	m.mode = to
	m.mu.Unlock()

	if from == to {
		return
	}

	metrics.SetMode(string(to))
	metrics.RecordModeTransition(string(from), string(to))
	m.log.Info("store mode changed",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

// toRemote enters remote mode and starts the health-check and sync loops.
// When drainNow is set (reconnection path) the sync queue is drained
// immediately instead of waiting for the first tick.
func (m *Manager) toRemote(drainNow bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.cancelLoops != nil {
		m.cancelLoops()
	}
	loopsCtx, cancel := context.WithCancel(m.rootCtx)
	m.cancelLoops = cancel
	// Add under mu so Shutdown, which flips closed under the same lock
	// before waiting, can never run wg.Wait concurrently with this Add.
	m.wg.Add(2)
	m.mu.Unlock()

	m.transition(ModeRemote)

	go m.healthLoop(loopsCtx)
	go m.syncLoop(loopsCtx)

	if drainNow {
		m.drain(loopsCtx)
	}
}

// toLocal enters local mode, stops the remote-only loops and schedules a
// reconnection attempt.
func (m *Manager) toLocal() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.cancelLoops != nil {
		m.cancelLoops()
		m.cancelLoops = nil
	}
	m.mu.Unlock()

	m.transition(ModeLocal)
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
	}

	m.log.Info("reconnect attempt scheduled", slog.Duration("backoff", m.cfg.ReconnectBackoff))
	m.reconnect = time.AfterFunc(m.cfg.ReconnectBackoff, m.tryReconnect)
}

func (m *Manager) tryReconnect() {
	if m.Mode() != ModeLocal {
		return
	}

	if m.remote.CheckHealth(m.rootCtx, m.cfg.HealthTimeout) {
		m.log.Info("remote store reachable again, resuming remote mode")
		m.toRemote(true)
		return
	}

	m.scheduleReconnect()
}

func (m *Manager) healthLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.remote.CheckHealth(ctx, m.cfg.HealthTimeout) {
				continue
			}
			if m.Mode() != ModeRemote {
				return
			}
			m.log.Warn("remote store unhealthy, falling back to local mode")
			m.toLocal()
			return
		}
	}
}

func (m *Manager) syncLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.drain(ctx)
		}
	}
}

// Shutdown stops every loop, performs one final drain when the remote store
// is still authoritative, and releases both stores.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.available = false
	if m.reconnect != nil {
		m.reconnect.Stop()
	}
	mode := m.mode
	m.mu.Unlock()

	m.cancelRoot()
	m.wg.Wait()

	if mode == ModeRemote {
		m.drain(ctx)
	}

	m.remote.Destroy()
	if err := m.remote.Close(); err != nil {
		m.log.Error("closing remote pool failed", slog.Any("error", err))
	}

	if err := m.local.Close(); err != nil {
		return err
	}

	m.log.Info("persistence manager stopped")
	return nil
}
