package drc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/hdrc/internal/layout"
	"github.com/roach88/hdrc/internal/tech"
)

// Category separates the dates of area checks from the other checks of a
// task, so a technology gaining area rules invalidates only area dates.
type Category string

const (
	CategorySpacing Category = "spacing"
	CategoryArea    Category = "area"
)

// DateKey identifies one stored good date. A date is only valid for the
// rule set, layer selection and enabled kinds it was recorded under.
type DateKey struct {
	Cell     string
	Category Category
	Group    string
	Bits     KindMask
	TechHash string
}

// DateUpdate records (Good) or clears (!Good) the good date of a key.
type DateUpdate struct {
	Key  DateKey
	Good bool
	Date int64
}

// DateStore persists good dates across checks.
type DateStore interface {
	// GoodDate returns the date key was last found clean.
	GoodDate(ctx context.Context, key DateKey) (int64, bool, error)
	// Commit applies updates atomically.
	Commit(ctx context.Context, updates []DateUpdate) error
}

// MemoryDates is an in-process DateStore.
type MemoryDates struct {
	mu    sync.Mutex
	dates map[DateKey]int64
}

// NewMemoryDates returns an empty store.
func NewMemoryDates() *MemoryDates {
	return &MemoryDates{dates: make(map[DateKey]int64)}
}

// GoodDate implements DateStore.
func (m *MemoryDates) GoodDate(_ context.Context, key DateKey) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dates[key]
	return d, ok, nil
}

// Commit implements DateStore.
func (m *MemoryDates) Commit(_ context.Context, updates []DateUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		if u.Good {
			m.dates[u.Key] = u.Date
		} else {
			delete(m.dates, u.Key)
		}
	}
	return nil
}

// Len returns the number of good dates held.
func (m *MemoryDates) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dates)
}

// RuleSetHash identifies a technology together with a layer selection.
func RuleSetHash(tc *tech.Technology, layers []string) string {
	sorted := append([]string(nil), layers...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte("hdrc/ruleset/v1"))
	h.Write([]byte{0})
	h.Write([]byte(tc.Hash()))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

type cellState uint8

const (
	stateUnchecked cellState = iota
	stateClean
	stateDirty
)

// controller decides, per cell and task, whether a stored good date lets
// the cell be skipped, and collects the date updates of the task.
type controller struct {
	lib      *layout.Library
	num      *Numbering
	dates    DateStore
	base     DateKey
	area     bool
	useDates bool
	record   bool
	date     int64

	state    []cellState
	effRev   map[layout.CellID]int64
	paramSub map[layout.CellID]bool
	updates  []DateUpdate
}

func newController(lib *layout.Library, num *Numbering, dates DateStore, base DateKey, area, useDates, record bool, date int64) *controller {
	return &controller{
		lib:      lib,
		num:      num,
		dates:    dates,
		base:     base,
		area:     area,
		useDates: useDates && dates != nil,
		record:   record && dates != nil,
		date:     date,
		state:    make([]cellState, len(lib.Cells)),
		effRev:   make(map[layout.CellID]int64),
		paramSub: make(map[layout.CellID]bool),
	}
}

func (ctl *controller) key(c *layout.Cell, cat Category) DateKey {
	k := ctl.base
	k.Cell = c.Name
	k.Category = cat
	return k
}

// effectiveRevision is the latest revision of c or anything below it.
func (ctl *controller) effectiveRevision(c *layout.Cell) int64 {
	if r, ok := ctl.effRev[c.ID]; ok {
		return r
	}
	r := c.Revision
	for _, inst := range c.Insts {
		if skipInstance(ctl.lib, inst) {
			continue
		}
		r = max(r, ctl.effectiveRevision(ctl.lib.Cell(inst.Cell)))
	}
	ctl.effRev[c.ID] = r
	return r
}

// hasParameterizedSub reports whether any cell below c is parameterized.
func (ctl *controller) hasParameterizedSub(c *layout.Cell) bool {
	if v, ok := ctl.paramSub[c.ID]; ok {
		return v
	}
	v := false
	for _, inst := range c.Insts {
		if skipInstance(ctl.lib, inst) {
			continue
		}
		child := ctl.lib.Cell(inst.Cell)
		if child.Parameterized || ctl.hasParameterizedSub(child) {
			v = true
			break
		}
	}
	ctl.paramSub[c.ID] = v
	return v
}

// canSkip reports whether c's last check is still valid: its sub-cells are
// clean, neither it nor anything below is parameterized, and its good dates
// are no older than its effective revision.
func (ctl *controller) canSkip(ctx context.Context, c *layout.Cell) (bool, error) {
	if !ctl.useDates || c.Parameterized || ctl.hasParameterizedSub(c) {
		return false, nil
	}
	for _, inst := range c.Insts {
		if skipInstance(ctl.lib, inst) {
			continue
		}
		if ctl.state[inst.Cell] != stateClean {
			return false, nil
		}
	}
	rev := ctl.effectiveRevision(c)
	cats := []Category{CategorySpacing}
	if ctl.area {
		cats = append(cats, CategoryArea)
	}
	for _, cat := range cats {
		good, ok, err := ctl.dates.GoodDate(ctx, ctl.key(c, cat))
		if err != nil {
			return false, err
		}
		if !ok || good < rev {
			return false, nil
		}
	}
	return true, nil
}

// skipped marks c clean without checking it.
func (ctl *controller) skipped(c *layout.Cell) {
	ctl.state[c.ID] = stateClean
}

// finish records the outcome of checking c.
func (ctl *controller) finish(c *layout.Cell, violations int) {
	good := violations == 0 && !ctl.hasParameterizedSub(c)
	if good {
		ctl.state[c.ID] = stateClean
	} else {
		ctl.state[c.ID] = stateDirty
	}
	if !ctl.record {
		return
	}
	cats := []Category{CategorySpacing}
	if ctl.area {
		cats = append(cats, CategoryArea)
	}
	for _, cat := range cats {
		ctl.updates = append(ctl.updates, DateUpdate{Key: ctl.key(c, cat), Good: good, Date: ctl.date})
	}
}
