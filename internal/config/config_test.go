package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, "full", cfg.Check.Mode)
	assert.Equal(t, DefaultWatchDebounce, cfg.Watch.Debounce)
	assert.Equal(t, DefaultPlotMaxSize, cfg.Plot.MaxSize)
	assert.Equal(t, -1, cfg.Plot.MaxDepth())
	assert.True(t, cfg.Check.StoreRuns())
	assert.True(t, cfg.Plot.ShowLabels())
}

func TestLoad_Values(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
layout: chip.yaml
tech: tech/demo180
top: chip
database: out/drc.db
check:
  mode: exhaustive
  workers: 4
  layers: [metal1, metal2]
  kinds: [spacing, minwidth]
  store: false
metrics:
  textfile: out/hdrc.prom
watch:
  debounce: 2s
plot:
  max_size: 512
  depth: 0
  labels: false
`))
	require.NoError(t, err)

	assert.Equal(t, "chip.yaml", cfg.Layout)
	assert.Equal(t, "tech/demo180", cfg.Tech)
	assert.Equal(t, "chip", cfg.Top)
	assert.Equal(t, "out/drc.db", cfg.Database)
	assert.Equal(t, "exhaustive", cfg.Check.Mode)
	assert.Equal(t, 4, cfg.Check.Workers)
	assert.Equal(t, []string{"metal1", "metal2"}, cfg.Check.Layers)
	assert.Equal(t, []string{"spacing", "minwidth"}, cfg.Check.Kinds)
	assert.False(t, cfg.Check.StoreRuns())
	assert.Equal(t, "out/hdrc.prom", cfg.Metrics.Textfile)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, 512, cfg.Plot.MaxSize)
	assert.Equal(t, 0, cfg.Plot.MaxDepth())
	assert.False(t, cfg.Plot.ShowLabels())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad mode", "check:\n  mode: fast\n", "Config.Check.Mode"},
		{"negative workers", "check:\n  workers: -1\n", "Config.Check.Workers"},
		{"bad kind", "check:\n  kinds: [spacing, density]\n", "Config.Check.Kinds[1]"},
		{"tiny plot", "plot:\n  max_size: 4\n", "Config.Plot.MaxSize"},
		{"bad depth", "plot:\n  depth: -2\n", "Config.Plot.Depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load(writeConfig(t, "chek:\n  mode: full\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chek")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadOptional_Missing(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabase, cfg.Database)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HDRC_DATABASE", "env.db")
	t.Setenv("HDRC_MODE", "incremental")
	t.Setenv("HDRC_WORKERS", "3")
	t.Setenv("HDRC_WATCH_DEBOUNCE", "not-a-duration")

	cfg, err := Load(writeConfig(t, "database: file.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database)
	assert.Equal(t, "incremental", cfg.Check.Mode)
	assert.Equal(t, 3, cfg.Check.Workers)
	assert.Equal(t, DefaultWatchDebounce, cfg.Watch.Debounce, "malformed overrides are ignored")
}

func TestLoad_EnvOverrideValidated(t *testing.T) {
	t.Setenv("HDRC_MODE", "sometimes")
	_, err := Load(writeConfig(t, ""))
	assert.Error(t, err)
}
