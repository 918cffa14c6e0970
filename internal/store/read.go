package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/hdrc/internal/drc"
	"github.com/roach88/hdrc/internal/tech"
)

var (
	// ErrNotFound is returned when no run matches a reference.
	ErrNotFound = errors.New("run not found")
	// ErrAmbiguous is returned when an id prefix matches several runs.
	ErrAmbiguous = errors.New("run reference is ambiguous")
)

const runColumns = `id, seq, top, mode, tech_hash, started, elapsed_ns, errors, warnings, aborted,
	searches, probes, cache_hits, cells_checked, cells_skipped`

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// FindRun resolves a run reference: "latest", "previous" (the run before
// latest), a full id, or a unique id prefix.
func (s *Store) FindRun(ctx context.Context, ref string) (Run, error) {
	switch ref {
	case "latest", "previous":
		offset := 0
		if ref == "previous" {
			offset = 1
		}
		row := s.db.QueryRowContext(ctx, `
			SELECT `+runColumns+`
			FROM runs
			ORDER BY seq DESC
			LIMIT 1 OFFSET ?
		`, offset)
		r, err := scanRun(row)
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("find run %q: %w", ref, ErrNotFound)
		}
		return r, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ? OR substr(id, 1, ?) = ?
		ORDER BY seq ASC
	`, ref, len(ref), ref)
	if err != nil {
		return Run{}, fmt.Errorf("query run %q: %w", ref, err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		if r.ID == ref {
			return r, nil
		}
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("iterate runs: %w", err)
	}

	switch {
	case ref == "" || len(matches) == 0:
		return Run{}, fmt.Errorf("find run %q: %w", ref, ErrNotFound)
	case len(matches) > 1:
		return Run{}, fmt.Errorf("find run %q: %d matches: %w", ref, len(matches), ErrAmbiguous)
	}
	return matches[0], nil
}

// ReadViolations returns the violations of a run in stored order.
//
// Returns an empty slice (not nil) if the run has no violations.
func (s *Store) ReadViolations(ctx context.Context, runID string) ([]drc.Violation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, severity, rule, message, cell, grp, expected, actual, layers, shapes
		FROM violations
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	out := []drc.Violation{}
	for rows.Next() {
		var (
			v                    drc.Violation
			kind, sev            string
			layersJSON, shapesJS string
		)
		if err := rows.Scan(&kind, &sev, &v.Rule, &v.Message, &v.Cell, &v.Group,
			&v.Expected, &v.Actual, &layersJSON, &shapesJS); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		if v.Kind, err = drc.ParseViolationKind(kind); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		if v.Severity, err = tech.ParseSeverity(sev); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		if v.Layers, err = unmarshalLayers(layersJSON); err != nil {
			return nil, err
		}
		if v.Shapes, err = unmarshalShapes(shapesJS); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                Run
		started, elapsed int64
		aborted          int
	)
	err := sc.Scan(&r.ID, &r.Seq, &r.Top, &r.Mode, &r.TechHash, &started, &elapsed,
		&r.Errors, &r.Warnings, &aborted,
		&r.Stats.Searches, &r.Stats.Probes, &r.Stats.CacheHits, &r.Stats.CellsChecked, &r.Stats.CellsSkipped)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.Started = time.Unix(0, started).UTC()
	r.Elapsed = time.Duration(elapsed)
	r.Aborted = aborted != 0
	r.Stats.Violations = int64(r.Errors + r.Warnings)
	return r, nil
}
