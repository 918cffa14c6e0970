package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"check", "validate", "report", "plot", "watch"})
}

func TestRoot_InvalidFormat(t *testing.T) {
	var errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--format", "xml", "report"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, errOut.String(), `invalid format "xml"`)
}

func TestRoot_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", dirtyLayout)
	techPath, err := filepath.Abs(demoTech)
	require.NoError(t, err)
	db := filepath.Join(dir, "runs.db")
	cfgPath := writeFile(t, dir, "hdrc.yaml", "layout: "+layoutPath+"\n"+
		"tech: "+techPath+"\n"+
		"database: "+db+"\n"+
		"check:\n  kinds: [minarea]\n")

	out, err := execute(t, NewRootCommand(), "--config", cfgPath, "check")
	require.NoError(t, err, "the spacing error is masked by check.kinds")
	assert.Contains(t, out, "no violations")

	out, err = execute(t, NewRootCommand(), "--config", cfgPath, "check", "--kinds", "spacing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "M1.S.1")

	out, err = execute(t, NewRootCommand(), "--config", cfgPath, "report", "--list")
	require.NoError(t, err)
	assert.Len(t, splitNonEmpty(out), 2)
}

func TestRoot_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "hdrc.yaml", "check:\n  mode: fast\n")

	_, err := execute(t, NewRootCommand(), "--config", cfgPath, "report")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeConfig)
}

func TestRoot_MissingConfig(t *testing.T) {
	_, err := execute(t, NewRootCommand(), "--config", filepath.Join(t.TempDir(), "none.yaml"), "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeConfig)
}

func TestWatch_InitialCheckThenStops(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", cleanLayout)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := NewWatchCommand(testRoot("text"))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{layoutPath, "--tech", demoTech, "--db", filepath.Join(dir, "hdrc.db")})
	cmd.SetContext(ctx)

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "no violations")
}

func TestWatch_MissingLayout(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, NewWatchCommand(testRoot("text")), filepath.Join(dir, "none.yaml"),
		"--tech", demoTech, "--db", filepath.Join(dir, "hdrc.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeLayout)
}
