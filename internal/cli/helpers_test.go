package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// demoTech is the CUE deck shared with the tech package tests.
var demoTech = filepath.Join("..", "tech", "testdata", "demo")

// dirtyLayout has two metal1 wires 2 apart on different nets: one M1.S.1
// error.
const dirtyLayout = `top: top
cells:
  - name: top
    shapes:
      - {layer: metal1, net: a, box: [0, 0, 3, 10]}
      - {layer: metal1, net: b, box: [5, 0, 8, 10]}
`

// cleanLayout moves the second wire out to the rule distance.
const cleanLayout = `top: top
cells:
  - name: top
    shapes:
      - {layer: metal1, net: a, box: [0, 0, 3, 10]}
      - {layer: metal1, net: b, box: [6, 0, 9, 10]}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
