package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hdrc/internal/report"
)

// recordRuns checks each layout in turn into one database and returns its
// path.
func recordRuns(t *testing.T, layouts ...string) string {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "hdrc.db")
	for i, content := range layouts {
		layoutPath := writeFile(t, dir, "top.yaml", content)
		_, err := execute(t, NewCheckCommand(testRoot("text")), layoutPath,
			"--tech", demoTech, "--db", db, "--mode", "exhaustive")
		if err != nil {
			require.Equal(t, ExitFailure, GetExitCode(err), "run %d", i)
		}
	}
	return db
}

func TestReport_Latest(t *testing.T) {
	db := recordRuns(t, dirtyLayout)

	out, err := execute(t, NewReportCommand(testRoot("text")), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "   1 ")
	assert.Contains(t, out, "M1.S.1")
	assert.Contains(t, out, "1 violations: 1 error, 0 warnings")
}

func TestReport_JSON(t *testing.T) {
	db := recordRuns(t, dirtyLayout, cleanLayout)

	out, err := execute(t, NewReportCommand(testRoot("json")), "previous", "--db", db)
	require.NoError(t, err)
	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.NotNil(t, doc.Run)
	assert.Equal(t, int64(1), doc.Run.Seq)
	assert.Equal(t, 1, doc.Errors)
}

func TestReport_List(t *testing.T) {
	db := recordRuns(t, dirtyLayout, cleanLayout)

	out, err := execute(t, NewReportCommand(testRoot("text")), "--db", db, "--list")
	require.NoError(t, err)
	lines := splitNonEmpty(out)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "   2 ")
	assert.Contains(t, lines[0], "0 errors")
	assert.Contains(t, lines[1], "   1 ")
	assert.Contains(t, lines[1], "1 error,")

	out, err = execute(t, NewReportCommand(testRoot("text")), "--db", db, "--list", "-n", "1")
	require.NoError(t, err)
	assert.Len(t, splitNonEmpty(out), 1)
}

func TestReport_ListJSON(t *testing.T) {
	db := recordRuns(t, cleanLayout)

	out, err := execute(t, NewReportCommand(testRoot("json")), "--db", db, "--list")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   []report.RunJSON `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "exhaustive", resp.Data[0].Mode)
}

func TestReport_Diff(t *testing.T) {
	db := recordRuns(t, dirtyLayout, cleanLayout)

	out, err := execute(t, NewReportCommand(testRoot("text")), "latest", "--db", db, "--diff", "previous")
	require.NoError(t, err)
	assert.Contains(t, out, "- top M1.S.1 spacing")
	assert.Contains(t, out, "0 added, 1 removed, 0 unchanged")

	out, err = execute(t, NewReportCommand(testRoot("json")), "previous", "--db", db, "--diff", "latest")
	require.NoError(t, err)
	var resp struct {
		Data DeltaResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Added, 1)
	assert.Empty(t, resp.Data.Removed)
}

func TestReport_Delete(t *testing.T) {
	db := recordRuns(t, dirtyLayout, cleanLayout)

	out, err := execute(t, NewReportCommand(testRoot("text")), "previous", "--db", db, "--delete")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted run 1")

	out, err = execute(t, NewReportCommand(testRoot("text")), "--db", db, "--list")
	require.NoError(t, err)
	assert.Len(t, splitNonEmpty(out), 1)
}

func TestReport_UnknownRun(t *testing.T) {
	db := recordRuns(t, cleanLayout)

	_, err := execute(t, NewReportCommand(testRoot("text")), "ffffffff", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestReport_NoDatabase(t *testing.T) {
	_, err := execute(t, NewReportCommand(testRoot("text")), "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestReport_ExclusiveFlags(t *testing.T) {
	db := recordRuns(t, cleanLayout)

	_, err := execute(t, NewReportCommand(testRoot("text")), "--db", db, "--list", "--delete")
	require.Error(t, err)
}
