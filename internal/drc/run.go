package drc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/layout"
	"github.com/roach88/hdrc/internal/tech"
)

var tracer = otel.Tracer("github.com/roach88/hdrc/internal/drc")

// Mode selects how much of the hierarchy a check covers.
type Mode uint8

const (
	// ModeFull checks every cell whose stored good date is stale.
	ModeFull Mode = iota
	// ModeIncremental checks only the named changed objects of the top
	// cell and records no dates.
	ModeIncremental
	// ModeExhaustive ignores stored dates and the interaction cache and
	// reports every violation of every subject.
	ModeExhaustive
)

var modeNames = [...]string{"full", "incremental", "exhaustive"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if s == name {
			return Mode(i), nil
		}
	}
	return ModeFull, fmt.Errorf("unknown mode %q", s)
}

// Options configures Run.
type Options struct {
	Mode Mode
	// Workers bounds the tasks running at once. Zero means GOMAXPROCS.
	Workers int
	// Layers selects the layers to check. Empty means every layer.
	Layers []string
	// Kinds selects the violation kinds to report. Empty means all.
	Kinds []ViolationKind
	// ChangedInsts and ChangedPrims name the changed objects of the top
	// cell in ModeIncremental.
	ChangedInsts []string
	ChangedPrims []layout.PrimID
	// Dates holds good dates. Nil disables skipping and recording.
	Dates   DateStore
	Clock   Clock
	Logger  *slog.Logger
	Metrics Observer
}

// Result summarises a check.
type Result struct {
	Errors   int
	Warnings int
	// Clean lists the cells found or kept clean by every task. It is empty
	// when the check was aborted.
	Clean []string
	// Dirty lists the cells with violations or parameterized sub-cells.
	Dirty   []string
	Aborted bool
	Stats   Stats
	// Groups holds the stats of each task.
	Groups map[string]Stats
}

// taskOutcome is what a finished task hands back to Run.
type taskOutcome struct {
	group   string
	stats   Stats
	state   []cellState
	updates []DateUpdate
}

// Run checks the hierarchy below the cell named top. It runs one task per
// layer group of the selected layers plus a node-size task, and reports
// violations to sink. A cancelled check returns ErrAborted together with a
// result marked Aborted; its good dates are not committed.
func Run(ctx context.Context, lib *layout.Library, top string, tc *tech.Technology, sink Sink, opts Options) (*Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Clock == nil {
		opts.Clock = WallClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	logger := opts.Logger

	if err := lib.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize layout: %w", err)
	}
	topCell, ok := lib.Lookup(top)
	if !ok {
		return nil, &InvariantError{Code: CodeUnknownCell, Message: fmt.Sprintf("no cell named %q", top)}
	}

	active, layers := activeLayers(tc, opts.Layers)
	kinds := MaskOf(opts.Kinds...)
	changes, err := resolveChanges(lib, topCell, opts)
	if err != nil {
		return nil, err
	}

	var groups []string
	seen := make(map[string]bool)
	for _, l := range layers {
		if g := tc.GroupOf(l); !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}
	sort.Strings(groups)
	if kinds.Has(ViolNodeSize) && tc.HasNodeSizeRules() {
		groups = append(groups, NodeSizeGroup)
	}

	counter := &countingSink{next: sink}
	date := opts.Clock.Now()
	base := DateKey{Bits: kinds, TechHash: RuleSetHash(tc, layers)}

	var mu sync.Mutex
	var outcomes []taskOutcome

	logger.Info("check started", "top", top, "mode", opts.Mode.String(), "groups", len(groups), "workers", opts.Workers)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, group := range groups {
		g.Go(func() error {
			out, err := runTask(gctx, lib, topCell, tc, counter, opts, group, active, kinds, changes, base, date)
			if out != nil {
				mu.Lock()
				outcomes = append(outcomes, *out)
				mu.Unlock()
			}
			return err
		})
	}
	err = g.Wait()

	res := summarize(lib, outcomes)
	res.Errors, res.Warnings = counter.errs, counter.warnings

	if err != nil {
		if errors.Is(err, ErrAborted) {
			res.Aborted = true
			res.Clean = nil
			logger.Warn("check aborted", "top", top, "cause", context.Cause(ctx))
		}
		return res, err
	}

	if opts.Dates != nil {
		var updates []DateUpdate
		for _, o := range outcomes {
			updates = append(updates, o.updates...)
		}
		if len(updates) > 0 {
			if err := opts.Dates.Commit(ctx, updates); err != nil {
				return res, fmt.Errorf("commit good dates: %w", err)
			}
		}
	}

	logger.Info("check finished",
		"top", top,
		"errors", res.Errors,
		"warnings", res.Warnings,
		"checked", res.Stats.CellsChecked,
		"skipped", res.Stats.CellsSkipped,
		"elapsed", time.Since(start))
	return res, nil
}

// activeLayers intersects the selection with the technology's layers.
func activeLayers(tc *tech.Technology, selected []string) (map[string]bool, []string) {
	active := make(map[string]bool)
	var layers []string
	if len(selected) == 0 {
		for _, l := range tc.Layers {
			active[l.Name] = true
			layers = append(layers, l.Name)
		}
	} else {
		for _, name := range selected {
			if tc.HasLayer(name) && !active[name] {
				active[name] = true
				layers = append(layers, name)
			}
		}
	}
	sort.Strings(layers)
	return active, layers
}

// resolveChanges turns the changed object names of an incremental check
// into a changeSet. Other modes return nil.
func resolveChanges(lib *layout.Library, top *layout.Cell, opts Options) (*changeSet, error) {
	if opts.Mode != ModeIncremental {
		return nil, nil
	}
	cs := &changeSet{prims: make(map[layout.PrimID]bool), insts: make(map[layout.InstID]bool)}
	for _, id := range opts.ChangedPrims {
		p := lib.Prim(id)
		if p == nil {
			return nil, fmt.Errorf("changed primitive %d does not exist", id)
		}
		cs.prims[id] = true
	}
	byName := make(map[string]*layout.Instance, len(top.Insts))
	for _, inst := range top.Insts {
		byName[inst.Name] = inst
	}
	for _, name := range opts.ChangedInsts {
		inst, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("changed instance %q is not in %s", name, top.Name)
		}
		if skipInstance(lib, inst) {
			continue
		}
		cs.insts[inst.ID] = true
		cs.area = append(cs.area, inst.Xf.ApplyRect(lib.Cell(inst.Cell).Bounds()))
	}
	return cs, nil
}

func runTask(ctx context.Context, lib *layout.Library, top *layout.Cell, tc *tech.Technology, sink Sink, opts Options,
	group string, active map[string]bool, kinds KindMask, changes *changeSet, base DateKey, date int64) (*taskOutcome, error) {
	ctx, span := tracer.Start(ctx, "drc.task", trace.WithAttributes(
		attribute.String("drc.group", group),
		attribute.String("drc.top", top.Name),
		attribute.String("drc.mode", opts.Mode.String()),
	))
	defer span.End()
	logger := opts.Logger.With("group", group)
	start := time.Now()

	num, err := BuildNumbering(lib, top.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	t := &task{
		group:      group,
		nodeSize:   group == NodeSizeGroup,
		lib:        lib,
		tech:       tc,
		num:        num,
		kinds:      kinds,
		active:     active,
		exhaustive: opts.Mode == ModeExhaustive,
		sink:       sink,
		log:        logger,
		excl:       make(map[layout.CellID]*geom.Region),
		crops:      make(map[layout.PrimID]cropResult),
		radius:     make(map[string]float64),
		stoppedAt:  make(map[layout.PrimID]layout.PrimID),
		subset:     changes,
	}
	if opts.Mode != ModeExhaustive {
		t.cache = NewInteractionCache()
	}
	for l := range active {
		if t.eligible(l) {
			t.pad = max(t.pad, t.layerRadius(l))
		}
	}

	key := base
	key.Group = group
	var taskLayers []string
	for l := range active {
		if tc.GroupOf(l) == group {
			taskLayers = append(taskLayers, l)
		}
	}
	area := kinds.Has(ViolMinArea) && tc.HasAreaRules(taskLayers)
	ctl := newController(lib, num, opts.Dates, key, area,
		opts.Mode == ModeFull, opts.Mode != ModeIncremental, date)

	logger.Debug("task started", "cells", len(num.Order()))
	err = t.run(ctx, ctl)
	elapsed := time.Since(start)
	if opts.Metrics != nil {
		opts.Metrics.ObserveTask(group, elapsed, t.stats, errors.Is(err, ErrAborted))
	}
	span.SetAttributes(
		attribute.Int64("drc.searches", t.stats.Searches),
		attribute.Int64("drc.cells_checked", t.stats.CellsChecked),
		attribute.Int64("drc.cells_skipped", t.stats.CellsSkipped),
		attribute.Int64("drc.violations", t.stats.Violations),
	)
	out := &taskOutcome{group: group, stats: t.stats, state: ctl.state}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug("task stopped", "error", err, "elapsed", elapsed)
		return out, err
	}
	out.updates = ctl.updates
	span.SetStatus(codes.Ok, "")
	logger.Debug("task finished", "violations", t.stats.Violations, "elapsed", elapsed)
	return out, nil
}

// run checks the reached cells children first, so a cell's sub-cells are
// settled before deciding whether it can be skipped.
func (t *task) run(ctx context.Context, ctl *controller) error {
	order := t.num.Order()
	for i := len(order) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return abortErr(ctx)
		}
		c := t.lib.Cell(order[i])
		if t.subset != nil && c.ID != t.num.Top() {
			continue
		}
		skip, err := ctl.canSkip(ctx, c)
		if err != nil {
			return fmt.Errorf("read good date of %s: %w", c.Name, err)
		}
		if skip {
			ctl.skipped(c)
			t.stats.CellsSkipped++
			t.log.Debug("cell skipped", "cell", c.Name)
			continue
		}
		t.cellViolations = 0
		if err := t.checkCell(ctx, c); err != nil {
			return err
		}
		t.num.Proto(c.ID).Checked = true
		t.stats.CellsChecked++
		ctl.finish(c, t.cellViolations)
	}
	return nil
}

// summarize merges the task outcomes. A cell is dirty when any task found
// it dirty and clean when every task that visited it left it clean.
func summarize(lib *layout.Library, outcomes []taskOutcome) *Result {
	res := &Result{Groups: make(map[string]Stats)}
	if len(outcomes) == 0 {
		return res
	}
	clean := make([]bool, len(lib.Cells))
	dirty := make([]bool, len(lib.Cells))
	for _, o := range outcomes {
		res.Stats.Add(o.stats)
		res.Groups[o.group] = o.stats
		for id, s := range o.state {
			switch s {
			case stateClean:
				clean[id] = true
			case stateDirty:
				dirty[id] = true
			}
		}
	}
	for id, c := range lib.Cells {
		switch {
		case dirty[id]:
			res.Dirty = append(res.Dirty, c.Name)
		case clean[id]:
			res.Clean = append(res.Clean, c.Name)
		}
	}
	sort.Strings(res.Clean)
	sort.Strings(res.Dirty)
	return res
}
