package drc

import (
	"fmt"
	"math"

	"github.com/roach88/hdrc/internal/layout"
)

// maxNetSlots bounds the per-occurrence net table of one check.
const maxNetSlots = 1 << 28

// CheckProto is the numbering state of one cell reached from the top.
type CheckProto struct {
	Cell layout.CellID
	// HierCount is the number of places the cell occurs under the top cell.
	HierCount int
	// TotalPerCell is the next free global index of the cell.
	TotalPerCell int
	// Checked is set once a task has checked the cell.
	Checked bool
	// Parameterized means the cell's geometry depends on instance
	// parameters, so a stored good date cannot be trusted.
	Parameterized bool

	nets  []int
	nNets int
}

// CheckInst is the numbering state of one sub-cell instance.
//
// For a parent occurrence g the child occurrence is
// g*Multiplier + LocalIndex + Offset.
type CheckInst struct {
	Multiplier int
	LocalIndex int
	Offset     int
}

// Numbering assigns global indices to every (cell, instantiation path) pair
// reached from a top cell, and global numbers to every net occurrence. The
// slot arrays are indexed by dense library ids and owned by one task.
type Numbering struct {
	lib    *layout.Library
	top    layout.CellID
	protos []*CheckProto
	insts  []*CheckInst
	order  []layout.CellID
	nets   int
}

// BuildNumbering enumerates the hierarchy below top. Icon instances and
// icon cells are skipped.
func BuildNumbering(lib *layout.Library, top layout.CellID) (*Numbering, error) {
	topCell := lib.Cell(top)
	if topCell == nil {
		return nil, &InvariantError{Code: CodeUnknownCell, Message: fmt.Sprintf("no cell with id %d", top)}
	}
	n := &Numbering{
		lib:    lib,
		top:    top,
		protos: make([]*CheckProto, len(lib.Cells)),
		insts:  make([]*CheckInst, lib.NumInsts()),
	}
	if err := n.enumeratePrototypes(topCell); err != nil {
		return nil, err
	}
	if err := n.enumerateInstances(); err != nil {
		return nil, err
	}
	if err := n.enumerateNets(); err != nil {
		return nil, err
	}
	return n, nil
}

func skipInstance(lib *layout.Library, inst *layout.Instance) bool {
	if inst.Icon {
		return true
	}
	child := lib.Cell(inst.Cell)
	return child == nil || child.Icon
}

// enumeratePrototypes creates one CheckProto per reached cell and records
// the reached cells parents first.
func (n *Numbering) enumeratePrototypes(top *layout.Cell) error {
	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, len(n.lib.Cells))
	var post []layout.CellID

	var visit func(c *layout.Cell) error
	visit = func(c *layout.Cell) error {
		color[c.ID] = grey
		n.protos[c.ID] = &CheckProto{Cell: c.ID, Parameterized: c.Parameterized, nNets: len(c.Nets)}
		for _, inst := range c.Insts {
			if skipInstance(n.lib, inst) {
				continue
			}
			child := n.lib.Cell(inst.Cell)
			switch color[child.ID] {
			case grey:
				return &InvariantError{
					Code:    CodeCycle,
					Message: fmt.Sprintf("containment cycle through %s", child.Name),
					Cell:    c.Name,
				}
			case white:
				if err := visit(child); err != nil {
					return err
				}
			}
		}
		color[c.ID] = black
		post = append(post, c.ID)
		return nil
	}
	if err := visit(top); err != nil {
		return err
	}

	n.order = make([]layout.CellID, len(post))
	for i, id := range post {
		n.order[len(post)-1-i] = id
	}
	return nil
}

// enumerateInstances fills the CheckInst slots. Parents come first in
// n.order, so a cell's HierCount is final by the time it is processed.
func (n *Numbering) enumerateInstances() error {
	for _, id := range n.order {
		c := n.lib.Cells[id]
		p := n.protos[id]
		if id == n.top {
			p.HierCount = 1
		} else {
			p.HierCount = p.TotalPerCell
		}

		groups, protoOrder := groupByPrototype(n.lib, c)
		for _, child := range protoOrder {
			cp := n.protos[child]
			group := groups[child]
			m := len(group)
			for rank, inst := range group {
				n.insts[inst.ID] = &CheckInst{Multiplier: m, LocalIndex: rank, Offset: cp.TotalPerCell}
			}
			add, ok := mulInt(p.HierCount, m)
			if ok {
				add, ok = addInt(cp.TotalPerCell, add)
			}
			if !ok {
				return &InvariantError{
					Code:    CodeOverflow,
					Message: fmt.Sprintf("occurrence count of %s overflows", n.lib.Cells[child].Name),
					Cell:    c.Name,
				}
			}
			cp.TotalPerCell = add
		}
	}
	return nil
}

// groupByPrototype groups c's checked instances by referenced cell in order
// of first appearance.
func groupByPrototype(lib *layout.Library, c *layout.Cell) (map[layout.CellID][]*layout.Instance, []layout.CellID) {
	groups := make(map[layout.CellID][]*layout.Instance)
	var order []layout.CellID
	for _, inst := range c.Insts {
		if skipInstance(lib, inst) {
			continue
		}
		if _, ok := groups[inst.Cell]; !ok {
			order = append(order, inst.Cell)
		}
		groups[inst.Cell] = append(groups[inst.Cell], inst)
	}
	return groups, order
}

// enumerateNets numbers every net occurrence. Top-cell net i is global net
// i. A child net connected through an instance inherits the parent net's
// number for that occurrence; every other child net gets a fresh number.
func (n *Numbering) enumerateNets() error {
	total := 0
	for _, id := range n.order {
		p := n.protos[id]
		size, ok := mulInt(p.HierCount, p.nNets)
		if !ok || size > maxNetSlots-total {
			return &InvariantError{Code: CodeOverflow, Message: "net occurrence table too large", Cell: n.lib.Cells[id].Name}
		}
		total += size
		p.nets = make([]int, size)
	}

	top := n.protos[n.top]
	for i := range top.nets {
		top.nets[i] = i
	}
	n.nets = len(top.nets)

	for _, id := range n.order {
		c := n.lib.Cells[id]
		p := n.protos[id]
		for g := 0; g < p.HierCount; g++ {
			for _, inst := range c.Insts {
				if skipInstance(n.lib, inst) {
					continue
				}
				cg, err := n.GlobalIndex(inst, g)
				if err != nil {
					return err
				}
				cp := n.protos[inst.Cell]
				base := cg * cp.nNets
				for cn := 0; cn < cp.nNets; cn++ {
					if pn, ok := inst.Conns[cn]; ok {
						cp.nets[base+cn] = p.nets[g*p.nNets+pn]
						continue
					}
					cp.nets[base+cn] = n.nets
					n.nets++
				}
			}
		}
	}
	return nil
}

// Top returns the top cell of the numbering.
func (n *Numbering) Top() layout.CellID {
	return n.top
}

// Order returns the reached cells, parents first.
func (n *Numbering) Order() []layout.CellID {
	return n.order
}

// Reached reports whether cell occurs under the top cell.
func (n *Numbering) Reached(cell layout.CellID) bool {
	return int(cell) >= 0 && int(cell) < len(n.protos) && n.protos[cell] != nil
}

// Proto returns the CheckProto of a reached cell, or nil.
func (n *Numbering) Proto(cell layout.CellID) *CheckProto {
	if !n.Reached(cell) {
		return nil
	}
	return n.protos[cell]
}

// Inst returns the CheckInst of a numbered instance, or nil.
func (n *Numbering) Inst(id layout.InstID) *CheckInst {
	if int(id) < 0 || int(id) >= len(n.insts) {
		return nil
	}
	return n.insts[id]
}

// HierCount returns how many times cell occurs under the top cell.
func (n *Numbering) HierCount(cell layout.CellID) int {
	if p := n.Proto(cell); p != nil {
		return p.HierCount
	}
	return 0
}

// NumNets returns the number of global nets allocated.
func (n *Numbering) NumNets() int {
	return n.nets
}

// GlobalIndex returns the occurrence of inst's cell reached through
// occurrence g of inst's parent.
func (n *Numbering) GlobalIndex(inst *layout.Instance, g int) (int, error) {
	ci := n.Inst(inst.ID)
	if ci == nil {
		return 0, &InvariantError{Code: CodeMissingInst, Message: fmt.Sprintf("instance %q has no numbering", inst.Name)}
	}
	v, ok := mulInt(g, ci.Multiplier)
	if ok {
		v, ok = addInt(v, ci.LocalIndex+ci.Offset)
	}
	if !ok {
		return 0, &InvariantError{Code: CodeOverflow, Message: fmt.Sprintf("global index of %q overflows", inst.Name)}
	}
	return v, nil
}

// NetNumber returns the global number of local net net of cell in
// occurrence g.
func (n *Numbering) NetNumber(cell layout.CellID, net, g int) (int, error) {
	p := n.Proto(cell)
	if p == nil || net < 0 || net >= p.nNets || g < 0 || g >= p.HierCount {
		name := ""
		if c := n.lib.Cell(cell); c != nil {
			name = c.Name
		}
		return 0, &InvariantError{
			Code:    CodeMissingInst,
			Message: fmt.Sprintf("no net number for net %d in occurrence %d", net, g),
			Cell:    name,
		}
	}
	return p.nets[g*p.nNets+net], nil
}

func mulInt(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a < 0 || b < 0 || a > math.MaxInt/b {
		return 0, false
	}
	return a * b, true
}

func addInt(a, b int) (int, bool) {
	if a < 0 || b < 0 || a > math.MaxInt-b {
		return 0, false
	}
	return a + b, true
}
