// Package config loads the optional hdrc.yaml project file.
//
// Loading reads the YAML, applies defaults, applies HDRC_* environment
// overrides and validates the result. Command-line flags are applied by the
// CLI on top of the loaded Config.
package config

import "time"

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "hdrc.yaml"

// Config is the project configuration.
type Config struct {
	// Layout is the YAML layout file to check.
	Layout string `yaml:"layout"`
	// Tech is the directory holding the CUE technology deck.
	Tech string `yaml:"tech"`
	// Top names the cell to check. Empty uses the layout file's top.
	Top      string `yaml:"top"`
	Database string `yaml:"database" validate:"required"`

	Check   CheckConfig   `yaml:"check"`
	Metrics MetricsConfig `yaml:"metrics"`
	Watch   WatchConfig   `yaml:"watch"`
	Plot    PlotConfig    `yaml:"plot"`
}

// CheckConfig selects what a check covers.
type CheckConfig struct {
	Mode    string   `yaml:"mode" validate:"oneof=full incremental exhaustive"`
	Workers int      `yaml:"workers" validate:"gte=0,lte=256"`
	Layers  []string `yaml:"layers" validate:"dive,required"`
	Kinds   []string `yaml:"kinds" validate:"dive,oneof=spacing notch minwidth minarea surround cutsize nodesize"`
	// Store records runs and violations in the database.
	Store *bool `yaml:"store"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile is written after every check when set.
	Textfile string `yaml:"textfile"`
}

// WatchConfig controls the watch command.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// PlotConfig controls the plot command.
type PlotConfig struct {
	MaxSize int `yaml:"max_size" validate:"gte=16,lte=16384"`
	Margin  int `yaml:"margin" validate:"gte=0"`
	// Depth limits the drawn instance levels; nil or -1 draws all.
	Depth  *int  `yaml:"depth" validate:"omitempty,gte=-1"`
	Labels *bool `yaml:"labels"`
}

// StoreRuns reports whether checks are recorded.
func (c *CheckConfig) StoreRuns() bool {
	return c.Store == nil || *c.Store
}

// MaxDepth returns the configured depth, -1 when unset.
func (c *PlotConfig) MaxDepth() int {
	if c.Depth == nil {
		return DefaultPlotDepth
	}
	return *c.Depth
}

// ShowLabels reports whether plots label violations.
func (c *PlotConfig) ShowLabels() bool {
	return c.Labels == nil || *c.Labels
}
