package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nocturne-dev/nocturne-bot/internal/domain"
)

// GetBalance returns the user's balance, zero for unknown users.
func (s *Store) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM economy WHERE user_id = ?`, userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select balance: %w", err)
	}

	return balance, nil
}

// AddMoney applies an additive balance change and returns the new balance.
func (s *Store) AddMoney(ctx context.Context, userID string, amount int64, enqueue bool) (int64, error) {
	var newBalance int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var balance int64
		err := tx.QueryRowContext(ctx,
			`SELECT balance FROM economy WHERE user_id = ?`, userID,
		).Scan(&balance)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("select balance: %w", err)
		}

		newBalance = balance + amount

		const query = `
			INSERT INTO economy (user_id, balance, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				balance = excluded.balance,
				updated_at = excluded.updated_at
		`
		if _, err := tx.ExecContext(ctx, query, userID, newBalance, toMillis(time.Now())); err != nil {
			return fmt.Errorf("upsert balance: %w", err)
		}

		if !enqueue {
			return nil
		}

		return enqueueTx(ctx, tx, domain.TableEconomy, domain.OpAddMoney,
			domain.AmountPayload{UserID: userID, Amount: amount})
	})
	if err != nil {
		return 0, err
	}

	return newBalance, nil
}

// GetLevel returns the user's level record, a fresh level-1 record for
// unknown users.
func (s *Store) GetLevel(ctx context.Context, userID string) (*domain.LevelRecord, error) {
	const query = `SELECT user_id, xp, level, updated_at FROM levels WHERE user_id = ?`

	var (
		record    domain.LevelRecord
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&record.UserID,
		&record.XP,
		&record.Level,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.LevelRecord{UserID: userID, XP: 0, Level: 1}, nil
		}
		return nil, fmt.Errorf("select level: %w", err)
	}

	record.UpdatedAt = fromMillis(updatedAt)
	return &record, nil
}

// AddXP adds experience, recomputes the derived level and reports whether
// the user leveled up. The stored level never decreases.
func (s *Store) AddXP(ctx context.Context, userID string, amount int64, enqueue bool) (*domain.XPResult, error) {
	var result domain.XPResult

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			xp    int64
			level int64 = 1
		)
		err := tx.QueryRowContext(ctx,
			`SELECT xp, level FROM levels WHERE user_id = ?`, userID,
		).Scan(&xp, &level)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("select level: %w", err)
		}

		newXP := xp + amount
		newLevel := domain.LevelForXP(newXP)
		if newLevel < level {
			newLevel = level
		}

		const query = `
			INSERT INTO levels (user_id, xp, level, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				xp = excluded.xp,
				level = excluded.level,
				updated_at = excluded.updated_at
		`
		if _, err := tx.ExecContext(ctx, query, userID, newXP, newLevel, toMillis(time.Now())); err != nil {
			return fmt.Errorf("upsert level: %w", err)
		}

		result = domain.XPResult{
			XP:      newXP,
			Level:   newLevel,
			LevelUp: newLevel > level,
		}
		if result.LevelUp {
			result.NewLevel = newLevel
		}

		if !enqueue {
			return nil
		}

		return enqueueTx(ctx, tx, domain.TableLevels, domain.OpAddXP,
			domain.AmountPayload{UserID: userID, Amount: amount})
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}
