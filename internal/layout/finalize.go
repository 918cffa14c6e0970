package layout

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/hdrc/internal/geom"
)

// ErrCycle is wrapped by errors about cells that contain themselves.
var ErrCycle = errors.New("cell containment cycle")

// Problem is one structural defect found in a library.
type Problem struct {
	Cell    string
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Cell, p.Message)
}

// ValidationError collects the problems that stop a library from being
// finalized.
type ValidationError struct {
	Problems []Problem
	cycle    bool
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0].String()
	}
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%d problems: %s", len(e.Problems), strings.Join(parts, "; "))
}

// Unwrap lets errors.Is(err, ErrCycle) see a cycle problem.
func (e *ValidationError) Unwrap() error {
	if e.cycle {
		return ErrCycle
	}
	return nil
}

// Finalize validates the library and builds the derived state the checker
// needs: anonymous nets, cell bounds, spatial indexes, the topological cell
// order and the maximum shape size. It is idempotent.
func (l *Library) Finalize() error {
	if l.finalized {
		return nil
	}
	problems := l.structuralProblems()
	order, cycle := l.topoSort()
	if cycle != nil {
		problems = append(problems, Problem{
			Cell:    cycle[0],
			Message: fmt.Sprintf("%v: %s", ErrCycle, strings.Join(cycle, " -> ")),
		})
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems, cycle: cycle != nil}
	}
	l.order = order

	for _, c := range l.Cells {
		l.deriveNets(c)
	}
	// Children before parents so instance bounds are known.
	for i := len(order) - 1; i >= 0; i-- {
		l.buildCell(l.Cells[order[i]])
	}

	l.maxShape = 0
	for _, p := range l.prims {
		l.maxShape = max(l.maxShape, p.Shape.Bounds().MaxDim())
	}
	l.finalized = true
	return nil
}

// Problems lists every structural defect of the library. When knownLayer is
// non-nil, primitives on layers it rejects are reported too.
func (l *Library) Problems(knownLayer func(string) bool) []Problem {
	problems := l.structuralProblems()
	if _, cycle := l.topoSort(); cycle != nil {
		problems = append(problems, Problem{
			Cell:    cycle[0],
			Message: fmt.Sprintf("%v: %s", ErrCycle, strings.Join(cycle, " -> ")),
		})
	}
	if knownLayer != nil {
		for _, c := range l.Cells {
			seen := make(map[string]bool)
			for _, p := range c.Prims {
				if !knownLayer(p.Layer) && !seen[p.Layer] {
					seen[p.Layer] = true
					problems = append(problems, Problem{Cell: c.Name, Message: fmt.Sprintf("unknown layer %q", p.Layer)})
				}
			}
		}
	}
	return problems
}

func (l *Library) structuralProblems() []Problem {
	var problems []Problem
	add := func(c *Cell, format string, args ...any) {
		problems = append(problems, Problem{Cell: c.Name, Message: fmt.Sprintf(format, args...)})
	}
	for _, c := range l.Cells {
		for _, p := range c.Prims {
			if p.Net != NoNet && (p.Net < 0 || p.Net >= len(c.Nets)) {
				add(c, "primitive %d references missing net %d", p.ID, p.Net)
			}
			if p.Shape.Bounds().IsEmpty() {
				add(c, "primitive %d has no geometry", p.ID)
			}
		}
		for _, inst := range c.Insts {
			child := l.Cell(inst.Cell)
			if child == nil {
				add(c, "instance %q references missing cell %d", inst.Name, inst.Cell)
				continue
			}
			for _, cn := range sortedKeys(inst.Conns) {
				pn := inst.Conns[cn]
				switch {
				case cn < 0 || cn >= len(child.Nets):
					add(c, "instance %q connects missing net %d of %s", inst.Name, cn, child.Name)
				case !child.Nets[cn].Exported:
					add(c, "instance %q connects unexported net %q of %s", inst.Name, child.Nets[cn].Name, child.Name)
				case pn < 0 || pn >= len(c.Nets):
					add(c, "instance %q connects to missing net %d", inst.Name, pn)
				}
			}
		}
	}
	return problems
}

// topoSort orders all cells parents first. When a cycle exists it returns
// the names along it instead.
func (l *Library) topoSort() (order []CellID, cycle []string) {
	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, len(l.Cells))
	var post []CellID
	var stack []CellID

	var visit func(id CellID) bool
	visit = func(id CellID) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, inst := range l.Cells[id].Insts {
			child := inst.Cell
			if l.Cell(child) == nil {
				continue
			}
			switch color[child] {
			case grey:
				for i, s := range stack {
					if s == child {
						for _, c := range stack[i:] {
							cycle = append(cycle, l.Cells[c].Name)
						}
						cycle = append(cycle, l.Cells[child].Name)
						return false
					}
				}
			case white:
				if !visit(child) {
					return false
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		post = append(post, id)
		return true
	}

	for id := range l.Cells {
		if color[id] == white && !visit(CellID(id)) {
			return nil, cycle
		}
	}
	order = make([]CellID, len(post))
	for i, id := range post {
		order[len(post)-1-i] = id
	}
	return order, nil
}

// deriveNets gives every primitive without a net one. Unnamed primitives
// that touch on a layer share a net; a cluster touching named geometry on
// its layer joins that net.
func (l *Library) deriveNets(c *Cell) {
	var unnamed []int
	for i, p := range c.Prims {
		if p.Net == NoNet {
			unnamed = append(unnamed, i)
		}
	}
	if len(unnamed) == 0 {
		return
	}

	parent := make([]int, len(c.Prims))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	entries := make([]Entry, len(c.Prims))
	for i, p := range c.Prims {
		entries[i] = Entry{Kind: ItemPrimitive, Index: i, Box: p.Shape.Bounds()}
	}
	ix := NewIndex(entries)
	named := make(map[int]int) // cluster root -> net
	for _, i := range unnamed {
		p := c.Prims[i]
		ix.Search(p.Shape.Bounds(), func(e Entry) bool {
			q := c.Prims[e.Index]
			if e.Index == i || q.Layer != p.Layer {
				return true
			}
			if d, _ := geom.Separation(p.Shape, q.Shape); d > geom.Eps {
				return true
			}
			if q.Net != NoNet {
				if _, ok := named[find(i)]; !ok {
					named[find(i)] = q.Net
				}
				return true
			}
			ri, rq := find(i), find(e.Index)
			if ri != rq {
				parent[rq] = ri
				if nq, ok := named[rq]; ok {
					if _, taken := named[ri]; !taken {
						named[ri] = nq
					}
				}
			}
			return true
		})
	}

	roots := make([]int, 0, len(unnamed))
	seen := make(map[int]bool)
	for _, i := range unnamed {
		if r := find(i); !seen[r] {
			seen[r] = true
			roots = append(roots, r)
		}
	}
	sort.Ints(roots)
	for _, r := range roots {
		if _, ok := named[r]; !ok {
			named[r] = c.AddNet(fmt.Sprintf("$%d", c.Prims[r].ID), false)
		}
	}
	for _, i := range unnamed {
		c.Prims[i].Net = named[find(i)]
	}
}

func (l *Library) buildCell(c *Cell) {
	bounds := geom.EmptyRect()
	entries := make([]Entry, 0, len(c.Prims)+len(c.Insts))
	for i, p := range c.Prims {
		b := p.Shape.Bounds()
		bounds = bounds.Union(b)
		entries = append(entries, Entry{Kind: ItemPrimitive, Index: i, Box: b})
	}
	for i, inst := range c.Insts {
		child := l.Cells[inst.Cell]
		if inst.Icon || child.Icon {
			continue
		}
		b := inst.Xf.ApplyRect(child.bounds)
		bounds = bounds.Union(b)
		entries = append(entries, Entry{Kind: ItemInstance, Index: i, Box: b})
	}
	c.bounds = bounds
	c.index = NewIndex(entries)
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
