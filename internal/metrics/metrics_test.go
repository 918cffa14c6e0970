package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hdrc/internal/drc"
	"github.com/roach88/hdrc/internal/tech"
)

func TestCollector_ObserveTask(t *testing.T) {
	c := New(nil)
	c.ObserveTask("metal", 20*time.Millisecond, drc.Stats{Searches: 7, Probes: 3, CacheHits: 2, CellsChecked: 4, CellsSkipped: 1}, false)
	c.ObserveTask("metal", 10*time.Millisecond, drc.Stats{Searches: 1}, true)
	c.ObserveTask("poly", time.Millisecond, drc.Stats{CellsSkipped: 5}, false)

	assert.Equal(t, 8.0, testutil.ToFloat64(c.searches.WithLabelValues("metal")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("metal")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.cellsSkipped.WithLabelValues("poly")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.aborted.WithLabelValues("metal")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.taskDuration))
}

func TestCollector_Sink(t *testing.T) {
	c := New(nil)
	inner := drc.NewCollector()
	sink := c.Sink(inner)

	sink.Report(drc.Violation{Group: "metal", Kind: drc.ViolSpacing, Rule: "M1.S.1"})
	sink.Report(drc.Violation{Group: "metal", Kind: drc.ViolSpacing, Rule: "M1.S.1"})
	sink.Report(drc.Violation{Group: "metal", Kind: drc.ViolSpacing, Severity: tech.SeverityWarning, Rule: "M1M2.E.1"})

	assert.Equal(t, 3, inner.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(c.violations.WithLabelValues("metal", "spacing", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.violations.WithLabelValues("metal", "spacing", "warning")))

	c.Sink(nil).Report(drc.Violation{Group: "cut", Kind: drc.ViolCutSize})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.violations.WithLabelValues("cut", "cutsize", "error")))
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := New(nil)
	c.ObserveTask("metal", time.Millisecond, drc.Stats{Searches: 4}, false)

	path := filepath.Join(t.TempDir(), "hdrc.prom")
	require.NoError(t, c.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `hdrc_searches_total{group="metal"} 4`), string(data))
}
