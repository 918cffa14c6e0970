package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	layoutPath := filepath.Join("..", "layout", "testdata", "inverter.yaml")

	out, err := execute(t, NewValidateCommand(testRoot("text")), layoutPath, "--tech", demoTech)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ layout and technology valid (2 cells, 7 layers, 19 rules)")
}

func TestValidate_ValidJSON(t *testing.T) {
	layoutPath := filepath.Join("..", "layout", "testdata", "inverter.yaml")

	out, err := execute(t, NewValidateCommand(testRoot("json")), layoutPath, "--tech", demoTech)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, "row", data["top"])
}

func TestValidate_UnknownLayer(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "top.yaml", `cells:
  - name: top
    shapes:
      - {layer: metal9, box: [0, 0, 3, 3]}
`)

	out, err := execute(t, NewValidateCommand(testRoot("text")), layoutPath, "--tech", demoTech)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeProblems)
	assert.Contains(t, out, "Validation failed: 1 problem(s)")
	assert.Contains(t, out, `top: unknown layer "metal9"`)
}

func TestValidate_Cycle(t *testing.T) {
	dir := t.TempDir()
	layoutPath := writeFile(t, dir, "cycle.yaml", `cells:
  - name: a
    instances:
      - {name: ab, cell: b}
  - name: b
    instances:
      - {name: ba, cell: a}
`)

	out, err := execute(t, NewValidateCommand(testRoot("json")), layoutPath, "--tech", demoTech)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeProblems, resp.Error.Code)
	assert.Contains(t, out, "cycle")
}

func TestValidate_UnreadableLayout(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, NewValidateCommand(testRoot("text")), filepath.Join(dir, "missing.yaml"), "--tech", demoTech)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeLayout)
	assert.Contains(t, out, "Error [E003]")
}

func TestValidate_BadTech(t *testing.T) {
	dir := t.TempDir()
	techPath := writeFile(t, dir, "broken.cue", "technology: {name: \n")
	layoutPath := filepath.Join("..", "layout", "testdata", "inverter.yaml")

	_, err := execute(t, NewValidateCommand(testRoot("text")), layoutPath, "--tech", techPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeTech)
}
