package config

import "time"

// Default values for configuration fields.
const (
	DefaultDatabase      = ".hdrc/hdrc.db"
	DefaultMode          = "full"
	DefaultWatchDebounce = 300 * time.Millisecond
	DefaultPlotMaxSize   = 1024
	DefaultPlotMargin    = 16
	DefaultPlotDepth     = -1
)

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields. Zero means unset.
func ApplyDefaults(cfg *Config) {
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Check.Mode == "" {
		cfg.Check.Mode = DefaultMode
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
	if cfg.Plot.MaxSize == 0 {
		cfg.Plot.MaxSize = DefaultPlotMaxSize
	}
	if cfg.Plot.Margin == 0 {
		cfg.Plot.Margin = DefaultPlotMargin
	}
}
