package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hdrc/internal/drc"
	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/tech"
	"github.com/roach88/hdrc/internal/testutil"
)

func sampleViolations() []drc.Violation {
	return []drc.Violation{
		{
			Kind:     drc.ViolSpacing,
			Severity: tech.SeverityError,
			Rule:     "M1.S.1",
			Message:  "metal1 spacing 2 less than 3",
			Expected: 3,
			Actual:   2,
			Cell:     "top",
			Layers:   []string{"metal1", "metal1"},
			Shapes:   []geom.Shape{geom.BoxShape(geom.R(0, 0, 3, 10)), geom.BoxShape(geom.R(5, 0, 8, 10))},
			Group:    "metal",
		},
		{
			Kind:     drc.ViolSpacing,
			Severity: tech.SeverityWarning,
			Rule:     "M1M2.E.1",
			Message:  "metal1/metal2 spacing 0.5 less than 1",
			Expected: 1,
			Actual:   0.5,
			Cell:     "top",
			Layers:   []string{"metal1", "metal2"},
			Shapes: []geom.Shape{
				geom.PolygonShape([]geom.Point{geom.Pt(0, 0), geom.Pt(4, 0), geom.Pt(0, 4)}),
			},
			Group: "metal",
		},
	}
}

func sampleRun() Run {
	return Run{
		Top:      "top",
		Mode:     "full",
		TechHash: "abc",
		Started:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Elapsed:  1500 * time.Millisecond,
		Errors:   1,
		Warnings: 1,
		Stats:    drc.Stats{Searches: 12, Probes: 3, CacheHits: 1, CellsChecked: 2, CellsSkipped: 4, Violations: 2},
	}
}

func TestWriteRun_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	stored, err := s.WriteRun(ctx, sampleRun(), sampleViolations())
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, int64(1), stored.Seq)

	got, err := s.FindRun(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, got)

	vs, err := s.ReadViolations(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, sampleViolations(), vs)
}

func TestWriteRun_SeqIncreases(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	var seqs []int64
	for range 3 {
		r, err := s.WriteRun(ctx, sampleRun(), nil)
		require.NoError(t, err)
		seqs = append(seqs, r.Seq)
	}
	assert.Equal(t, []int64{1, 2, 3}, seqs)
}

func TestListRuns_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	for _, top := range []string{"a", "b", "c"} {
		r := sampleRun()
		r.Top = top
		_, err := s.WriteRun(ctx, r, nil)
		require.NoError(t, err)
	}

	runs, err = s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].Top)
	assert.Equal(t, "a", runs[2].Top)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestFindRun_References(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.FindRun(ctx, "latest")
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.WriteRun(ctx, sampleRun(), nil)
	require.NoError(t, err)
	second, err := s.WriteRun(ctx, sampleRun(), nil)
	require.NoError(t, err)

	got, err := s.FindRun(ctx, "latest")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	got, err = s.FindRun(ctx, "previous")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = s.FindRun(ctx, second.ID[len(second.ID)-12:])
	assert.ErrorIs(t, err, ErrNotFound, "only prefixes match")

	_, err = s.FindRun(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindRun(ctx, "zzzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindRun_Prefix(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	a, err := s.WriteRun(ctx, sampleRun(), nil)
	require.NoError(t, err)
	b, err := s.WriteRun(ctx, sampleRun(), nil)
	require.NoError(t, err)

	// UUIDv7 ids share their leading timestamp bits, so a one-character
	// prefix matches both runs written in the same millisecond range.
	if a.ID[0] == b.ID[0] {
		_, err = s.FindRun(ctx, a.ID[:1])
		assert.True(t, errors.Is(err, ErrAmbiguous))
	}

	got, err := s.FindRun(ctx, a.ID[:len(a.ID)-1])
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestDeleteRun_CascadesViolations(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	r, err := s.WriteRun(ctx, sampleRun(), sampleViolations())
	require.NoError(t, err)
	require.NoError(t, s.DeleteRun(ctx, r.ID))

	vs, err := s.ReadViolations(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, vs)

	assert.ErrorIs(t, s.DeleteRun(ctx, r.ID), ErrNotFound)
}

func TestWriteRun_FromCheck(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	b := testutil.NewBuilder(t)
	top := b.Cell("top")
	top.Box("metal1", "a", 0, 0, 3, 10)
	top.Box("metal1", "b", 5, 0, 8, 10)
	lib := b.Finalize()

	c := drc.NewCollector()
	res, err := drc.Run(ctx, lib, "top", testutil.Tech(t), c, drc.Options{Dates: s})
	require.NoError(t, err)

	vs := c.Sorted()
	stored, err := s.WriteRun(ctx, Run{
		Top:      "top",
		Mode:     drc.ModeFull.String(),
		Started:  time.Unix(0, 0).UTC(),
		Errors:   res.Errors,
		Warnings: res.Warnings,
		Stats:    res.Stats,
	}, vs)
	require.NoError(t, err)

	got, err := s.ReadViolations(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, vs, got)
	assert.Equal(t, 1, stored.Errors)
}
