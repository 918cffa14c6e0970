package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/hdrc/internal/drc"
)

// GoodDate returns the date key was last found clean. It implements
// drc.DateStore.
func (s *Store) GoodDate(ctx context.Context, key drc.DateKey) (int64, bool, error) {
	var date int64
	err := s.db.QueryRowContext(ctx, `
		SELECT good_date FROM cell_dates
		WHERE cell = ? AND category = ? AND grp = ? AND bits = ? AND tech_hash = ?
	`, key.Cell, string(key.Category), key.Group, int64(key.Bits), key.TechHash).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read good date: %w", err)
	}
	return date, true, nil
}

// Commit applies date updates in one transaction: a good update records
// its date, any other update clears the key. It implements drc.DateStore.
func (s *Store) Commit(ctx context.Context, updates []drc.DateUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit dates: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO cell_dates (cell, category, grp, bits, tech_hash, good_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cell, category, grp, bits, tech_hash)
		DO UPDATE SET good_date = excluded.good_date
	`)
	if err != nil {
		return fmt.Errorf("commit dates: prepare upsert: %w", err)
	}
	defer upsert.Close()

	clear, err := tx.PrepareContext(ctx, `
		DELETE FROM cell_dates
		WHERE cell = ? AND category = ? AND grp = ? AND bits = ? AND tech_hash = ?
	`)
	if err != nil {
		return fmt.Errorf("commit dates: prepare delete: %w", err)
	}
	defer clear.Close()

	for _, u := range updates {
		k := u.Key
		args := []any{k.Cell, string(k.Category), k.Group, int64(k.Bits), k.TechHash}
		if u.Good {
			_, err = upsert.ExecContext(ctx, append(args, u.Date)...)
		} else {
			_, err = clear.ExecContext(ctx, args...)
		}
		if err != nil {
			return fmt.Errorf("commit dates: %s: %w", k.Cell, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dates: commit: %w", err)
	}
	return nil
}

// CountDates returns the number of good dates stored.
func (s *Store) CountDates(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cell_dates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dates: %w", err)
	}
	return n, nil
}

// ClearDates forgets every good date, forcing the next check to visit
// every cell. It returns the number of dates removed.
func (s *Store) ClearDates(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cell_dates`)
	if err != nil {
		return 0, fmt.Errorf("clear dates: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear dates: rows affected: %w", err)
	}
	return n, nil
}

var _ drc.DateStore = (*Store)(nil)
