package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hdrc/internal/report"
)

func testRoot(format string) *RootOptions {
	return &RootOptions{Format: format}
}

func TestCheck_Violations(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", dirtyLayout)
	db := filepath.Join(dir, "hdrc.db")

	out, err := execute(t, NewCheckCommand(testRoot("text")), layoutPath, "--tech", demoTech, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "top: error M1.S.1 spacing: metal1 spacing 2 less than 3")
	assert.Contains(t, out, "1 violations: 1 error, 0 warnings")
}

func TestCheck_Clean(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", cleanLayout)

	out, err := execute(t, NewCheckCommand(testRoot("text")), layoutPath,
		"--tech", demoTech, "--db", filepath.Join(dir, "hdrc.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "no violations")
	assert.Contains(t, out, "checked ")
}

func TestCheck_JSON(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", dirtyLayout)

	out, err := execute(t, NewCheckCommand(testRoot("json")), layoutPath,
		"--tech", demoTech, "--db", filepath.Join(dir, "hdrc.db"))
	require.Error(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 1, doc.Errors)
	require.Len(t, doc.Violations, 1)
	assert.Equal(t, "M1.S.1", doc.Violations[0].Rule)
	assert.Equal(t, [4]float64{0, 0, 8, 10}, doc.Violations[0].Bounds)
	require.NotNil(t, doc.Run)
	assert.Equal(t, int64(1), doc.Run.Seq)
	assert.Equal(t, "full", doc.Run.Mode)
}

func TestCheck_SecondRunSkipsCleanCells(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", cleanLayout)
	db := filepath.Join(dir, "hdrc.db")

	run := func() report.Document {
		t.Helper()
		out, err := execute(t, NewCheckCommand(testRoot("json")), layoutPath, "--tech", demoTech, "--db", db)
		require.NoError(t, err)
		var doc report.Document
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		require.NotNil(t, doc.Run)
		return doc
	}

	first := run()
	assert.Positive(t, first.Run.CellsChecked)
	assert.Zero(t, first.Run.CellsSkipped)

	second := run()
	assert.Equal(t, int64(2), second.Run.Seq)
	assert.Zero(t, second.Run.CellsChecked)
	assert.Equal(t, first.Run.CellsChecked, second.Run.CellsSkipped)

	third := func() report.Document {
		out, err := execute(t, NewCheckCommand(testRoot("json")), layoutPath,
			"--tech", demoTech, "--db", db, "--reset-dates")
		require.NoError(t, err)
		var doc report.Document
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		return doc
	}()
	assert.Equal(t, first.Run.CellsChecked, third.Run.CellsChecked, "reset dates force a recheck")
}

func TestCheck_ExhaustiveIgnoresDates(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", cleanLayout)
	db := filepath.Join(dir, "hdrc.db")

	_, err := execute(t, NewCheckCommand(testRoot("json")), layoutPath, "--tech", demoTech, "--db", db)
	require.NoError(t, err)

	out, err := execute(t, NewCheckCommand(testRoot("json")), layoutPath,
		"--tech", demoTech, "--db", db, "--mode", "exhaustive")
	require.NoError(t, err)
	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Positive(t, doc.Run.CellsChecked)
	assert.Equal(t, "exhaustive", doc.Run.Mode)
}

func TestCheck_NoStore(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", cleanLayout)

	out, err := execute(t, NewCheckCommand(testRoot("json")), layoutPath,
		"--tech", demoTech, "--db", filepath.Join(dir, "hdrc.db"), "--no-store")
	require.NoError(t, err)
	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Nil(t, doc.Run)
	assert.Empty(t, doc.Violations)
}

func TestCheck_KindsFilter(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", dirtyLayout)

	out, err := execute(t, NewCheckCommand(testRoot("text")), layoutPath,
		"--tech", demoTech, "--db", filepath.Join(dir, "hdrc.db"), "--kinds", "minarea,minwidth")
	require.NoError(t, err)
	assert.Contains(t, out, "no violations")
}

func TestCheck_MetricsFile(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", dirtyLayout)
	metricsPath := filepath.Join(dir, "hdrc.prom")

	_, err := execute(t, NewCheckCommand(testRoot("text")), layoutPath,
		"--tech", demoTech, "--db", filepath.Join(dir, "hdrc.db"), "--metrics-file", metricsPath)
	require.Error(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hdrc_cells_checked_total")
	assert.Contains(t, string(data), `hdrc_violations_total{group="metal",kind="spacing",severity="error"} 1`)
}

func TestCheck_ChangedNeedsIncrementalMode(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", cleanLayout)

	out, err := execute(t, NewCheckCommand(testRoot("text")), layoutPath,
		"--tech", demoTech, "--db", filepath.Join(dir, "hdrc.db"), "--changed", "u0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeArguments)
	assert.Contains(t, out, "--changed requires --mode incremental")
}

func TestCheck_BadMode(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", cleanLayout)

	_, err := execute(t, NewCheckCommand(testRoot("text")), layoutPath,
		"--tech", demoTech, "--db", filepath.Join(dir, "hdrc.db"), "--mode", "fast")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeArguments)
}

func TestCheck_MissingTech(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", cleanLayout)

	_, err := execute(t, NewCheckCommand(testRoot("text")), layoutPath,
		"--tech", filepath.Join(dir, "nope"), "--db", filepath.Join(dir, "hdrc.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeTech)
}

func TestCheck_MissingLayout(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, NewCheckCommand(testRoot("text")), filepath.Join(dir, "nope.yaml"),
		"--tech", demoTech, "--db", filepath.Join(dir, "hdrc.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeLayout)
}

func TestCheck_UnknownTop(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", cleanLayout)

	_, err := execute(t, NewCheckCommand(testRoot("text")), layoutPath,
		"--tech", demoTech, "--db", filepath.Join(dir, "hdrc.db"), "--top", "nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestCheck_NoInputs(t *testing.T) {
	_, err := execute(t, NewCheckCommand(testRoot("text")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeArguments)
}

func TestCheck_CreatesDatabaseDirectory(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", cleanLayout)
	db := filepath.Join(dir, "nested", ".hdrc", "hdrc.db")

	_, err := execute(t, NewCheckCommand(testRoot("text")), layoutPath, "--tech", demoTech, "--db", db)
	require.NoError(t, err)
	_, err = os.Stat(db)
	assert.NoError(t, err)
}
