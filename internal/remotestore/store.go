// Package remotestore wraps the remote PostgreSQL connection behind
// per-entity read-through caches and a bounded health probe.
package remotestore

import (
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nocturne-dev/nocturne-bot/internal/cache"
	"github.com/nocturne-dev/nocturne-bot/internal/domain"
	"github.com/nocturne-dev/nocturne-bot/pkg/metrics"
)

// Cache family names, used as metric labels and stats keys.
const (
	familyGuilds  = "guild_settings"
	familyUsers   = "user_settings"
	familyEconomy = "economy"
	familyLevels  = "levels"
)

// CacheConfig bounds each per-family cache. The values trade staleness for
// remote load per expected churn; they are tunables, not contracts.
type CacheConfig struct {
	GuildTTL   time.Duration
	GuildSize  int
	UserTTL    time.Duration
	UserSize   int
	MoneyTTL   time.Duration
	MoneySize  int
	LevelTTL   time.Duration
	LevelSize  int
	SweepEvery time.Duration
}

// DefaultCacheConfig returns the stock sizing.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		GuildTTL:  30 * time.Minute,
		GuildSize: 500,
		UserTTL:   30 * time.Minute,
		UserSize:  1000,
		MoneyTTL:  10 * time.Minute,
		MoneySize: 2000,
		LevelTTL:  5 * time.Minute,
		LevelSize: 2000,
	}
}

// Store is the cached accessor for the remote database. Reads go through a
// per-family cache; writes update remote state first and the touched cache
// entries after.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	guilds *cache.Cache[*domain.GuildSettings]
	users  *cache.Cache[*domain.UserSettings]
	money  *cache.Cache[int64]
	levels *cache.Cache[*domain.LevelRecord]

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats is the observability snapshot exposed through the manager's
// stats surface.
type CacheStats struct {
	Hits     int64                  `json:"hits"`
	Misses   int64                  `json:"misses"`
	Families map[string]cache.Stats `json:"families"`
}

// New wraps db with read-through caches sized per cfg.
func New(db *sql.DB, cfg CacheConfig, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		db:     db,
		log:    log,
		guilds: cache.New[*domain.GuildSettings](cfg.GuildSize, cfg.GuildTTL, cfg.SweepEvery),
		users:  cache.New[*domain.UserSettings](cfg.UserSize, cfg.UserTTL, cfg.SweepEvery),
		money:  cache.New[int64](cfg.MoneySize, cfg.MoneyTTL, cfg.SweepEvery),
		levels: cache.New[*domain.LevelRecord](cfg.LevelSize, cfg.LevelTTL, cfg.SweepEvery),
	}
}

// CacheStats snapshots hit/miss counters and per-family sizes.
func (s *Store) CacheStats() *CacheStats {
	return &CacheStats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Families: map[string]cache.Stats{
			familyGuilds:  s.guilds.Stats(),
			familyUsers:   s.users.Stats(),
			familyEconomy: s.money.Stats(),
			familyLevels:  s.levels.Stats(),
		},
	}
}

// Destroy tears down every cache, stopping their sweep goroutines. The
// underlying pool is left to the owner; see Close.
func (s *Store) Destroy() {
	s.guilds.Destroy()
	s.users.Destroy()
	s.money.Destroy()
	s.levels.Destroy()
}

// Close closes the remote connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) recordHit(family string) {
	s.hits.Add(1)
	metrics.RecordCacheHit(family)
}

func (s *Store) recordMiss(family string) {
	s.misses.Add(1)
	metrics.RecordCacheMiss(family)
}
