package remotestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nocturne-dev/nocturne-bot/internal/domain"
)

func moneyKey(userID string) string {
	return "money:" + userID
}

func levelKey(userID string) string {
	return "level:" + userID
}

// GetBalance returns the user's balance, read through the economy cache.
func (s *Store) GetBalance(ctx context.Context, userID string) (int64, error) {
	if cached, ok := s.money.Get(moneyKey(userID)); ok {
		s.recordHit(familyEconomy)
		return cached, nil
	}
	s.recordMiss(familyEconomy)

	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM economy WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("select balance: %w", err)
	}

	s.money.Set(moneyKey(userID), balance)
	return balance, nil
}

// AddMoney applies an additive balance change remotely and caches the
// resulting balance.
func (s *Store) AddMoney(ctx context.Context, userID string, amount int64) (int64, error) {
	const query = `
		INSERT INTO economy (user_id, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			balance = economy.balance + excluded.balance,
			updated_at = excluded.updated_at
		RETURNING balance
	`

	var balance int64
	if err := s.db.QueryRowContext(ctx, query, userID, amount, time.Now().UTC()).Scan(&balance); err != nil {
		return 0, fmt.Errorf("add money: %w", err)
	}

	s.money.Set(moneyKey(userID), balance)
	return balance, nil
}

// GetLevel returns the user's level record, read through the level cache.
func (s *Store) GetLevel(ctx context.Context, userID string) (*domain.LevelRecord, error) {
	if cached, ok := s.levels.Get(levelKey(userID)); ok {
		s.recordHit(familyLevels)
		return cached, nil
	}
	s.recordMiss(familyLevels)

	const query = `SELECT user_id, xp, level FROM levels WHERE user_id = $1`

	var record domain.LevelRecord
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&record.UserID, &record.XP, &record.Level)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			fresh := &domain.LevelRecord{UserID: userID, XP: 0, Level: 1}
			s.levels.Set(levelKey(userID), fresh)
			return fresh, nil
		}
		return nil, fmt.Errorf("select level: %w", err)
	}

	s.levels.Set(levelKey(userID), &record)
	return &record, nil
}

// AddXP adds experience remotely. The level recomputation runs in SQL so a
// replayed item and a direct write share one code path; the stored level
// never decreases.
func (s *Store) AddXP(ctx context.Context, userID string, amount int64) (*domain.LevelRecord, error) {
	const query = `
		INSERT INTO levels (user_id, xp, level, updated_at)
		VALUES ($1, $2, CASE WHEN $2 < 0 THEN 1 ELSE $2 / 1000 + 1 END, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			xp = levels.xp + excluded.xp,
			level = CASE
				WHEN (levels.xp + excluded.xp) / 1000 + 1 > levels.level
					THEN (levels.xp + excluded.xp) / 1000 + 1
				ELSE levels.level
			END,
			updated_at = excluded.updated_at
		RETURNING xp, level
	`

	var (
		xp    int64
		level int64
	)
	if err := s.db.QueryRowContext(ctx, query, userID, amount, time.Now().UTC()).Scan(&xp, &level); err != nil {
		return nil, fmt.Errorf("add xp: %w", err)
	}

	record := &domain.LevelRecord{UserID: userID, XP: xp, Level: level, UpdatedAt: time.Now().UTC()}
	s.levels.Set(levelKey(userID), record)

	return record, nil
}
