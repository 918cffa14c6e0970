package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/hdrc/internal/drc"
)

// Run is the stored record of one check.
type Run struct {
	ID       string
	Seq      int64
	Top      string
	Mode     string
	TechHash string
	Started  time.Time
	Elapsed  time.Duration
	Errors   int
	Warnings int
	Aborted  bool
	Stats    drc.Stats
}

// WriteRun stores a run and its violations in one transaction. The run's
// ID and Seq are assigned here: ID is a UUIDv7 and Seq is one past the
// highest stored sequence number. The stored record is returned.
//
// Violations are stored in the order given; callers pass the output of
// drc.SortViolations so stored order is deterministic.
func (s *Store) WriteRun(ctx context.Context, run Run, violations []drc.Violation) (Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Run{}, fmt.Errorf("write run: generate id: %w", err)
	}
	run.ID = id.String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		return Run{}, fmt.Errorf("write run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, top, mode, tech_hash, started, elapsed_ns, errors, warnings, aborted,
		 searches, probes, cache_hits, cells_checked, cells_skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Seq,
		run.Top,
		run.Mode,
		run.TechHash,
		run.Started.UnixNano(),
		int64(run.Elapsed),
		run.Errors,
		run.Warnings,
		boolToInt(run.Aborted),
		run.Stats.Searches,
		run.Stats.Probes,
		run.Stats.CacheHits,
		run.Stats.CellsChecked,
		run.Stats.CellsSkipped,
	)
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO violations
		(run_id, seq, kind, severity, rule, message, cell, grp, expected, actual, layers, shapes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return Run{}, fmt.Errorf("write run: prepare violations: %w", err)
	}
	defer stmt.Close()

	for i, v := range violations {
		layersJSON, err := marshalLayers(v.Layers)
		if err != nil {
			return Run{}, fmt.Errorf("write violation %d: %w", i, err)
		}
		shapesJSON, err := marshalShapes(v.Shapes)
		if err != nil {
			return Run{}, fmt.Errorf("write violation %d: %w", i, err)
		}
		_, err = stmt.ExecContext(ctx,
			run.ID,
			i,
			v.Kind.String(),
			v.Severity.String(),
			v.Rule,
			v.Message,
			v.Cell,
			v.Group,
			v.Expected,
			v.Actual,
			layersJSON,
			shapesJSON,
		)
		if err != nil {
			return Run{}, fmt.Errorf("write violation %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("write run: commit: %w", err)
	}
	return run, nil
}

// DeleteRun removes a run and, through the foreign key, its violations.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete run %s: %w", id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
