package drc

import "time"

// Stats counts the work done by a check.
type Stats struct {
	// Searches is the number of hierarchical searches started from a
	// subject primitive or an instance pair.
	Searches int64
	// Probes is the number of coverage probes.
	Probes       int64
	CacheHits    int64
	CellsChecked int64
	CellsSkipped int64
	Violations   int64
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Searches += o.Searches
	s.Probes += o.Probes
	s.CacheHits += o.CacheHits
	s.CellsChecked += o.CellsChecked
	s.CellsSkipped += o.CellsSkipped
	s.Violations += o.Violations
}

// Observer receives the measurements of each finished task.
type Observer interface {
	ObserveTask(group string, elapsed time.Duration, stats Stats, aborted bool)
}
