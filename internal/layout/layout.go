package layout

import (
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/hdrc/internal/geom"
)

// CellID is the dense index of a cell in its Library.
type CellID int

// InstID is the dense library-wide index of an instance.
type InstID int

// PrimID is the dense library-wide index of a primitive.
type PrimID int

// NoNet marks a primitive that has not been assigned a net. Finalize gives
// every such primitive a net of its own, or the net of same-layer unnamed
// geometry it touches.
const NoNet = -1

// PrimKind is the kind of a primitive. It decides the crop rank.
type PrimKind uint8

const (
	KindNode PrimKind = iota
	KindWire
	KindContact
	KindPin
	KindTransistor
)

var primKindNames = [...]string{"node", "wire", "contact", "pin", "transistor"}

func (k PrimKind) String() string {
	if int(k) < len(primKindNames) {
		return primKindNames[k]
	}
	return fmt.Sprintf("PrimKind(%d)", uint8(k))
}

// ParsePrimKind converts a kind name such as "wire" into a PrimKind.
func ParsePrimKind(s string) (PrimKind, error) {
	for i, name := range primKindNames {
		if s == name {
			return PrimKind(i), nil
		}
	}
	return KindNode, fmt.Errorf("unknown primitive kind %q", s)
}

// CropRank orders primitive kinds for cropping: a shape is cropped against
// touching same-net shapes of higher rank.
func (k PrimKind) CropRank() int {
	switch k {
	case KindWire:
		return 0
	case KindNode:
		return 1
	case KindContact, KindPin, KindTransistor:
		return 2
	}
	return 0
}

// ItemKind tags an entry of a cell: a primitive or a sub-cell instance.
type ItemKind uint8

const (
	ItemPrimitive ItemKind = iota
	ItemInstance
)

func (k ItemKind) String() string {
	switch k {
	case ItemPrimitive:
		return "primitive"
	case ItemInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// Handle identifies a primitive or instance within one generation of a
// Library. Two handles name the same placement iff they are equal.
type Handle struct {
	Kind ItemKind
	ID   int
	Gen  uint64
}

// Net is one local network of a cell.
type Net struct {
	Name     string
	Exported bool
}

// Primitive is a shape on one layer belonging to one local net.
type Primitive struct {
	ID       PrimID
	Kind     PrimKind
	NodeType string
	Layer    string
	Shape    geom.Shape
	Net      int
	MultiCut bool
}

// Instance places a cell inside another with a transform from child to
// parent coordinates. Conns maps an exported child net to a parent net.
type Instance struct {
	ID    InstID
	Name  string
	Cell  CellID
	Xf    geom.Transform
	Icon  bool
	Conns map[int]int
}

// Cell is a named container of primitives and instances.
type Cell struct {
	ID            CellID
	Name          string
	Revision      int64
	Icon          bool
	Parameterized bool
	Prims         []*Primitive
	Insts         []*Instance
	Exclusions    []geom.Shape
	Nets          []Net

	netByName map[string]int
	bounds    geom.Rect
	index     *Index
}

// Bounds returns the bounding box of the cell's geometry, sub-cells
// included. It is valid after Finalize.
func (c *Cell) Bounds() geom.Rect {
	return c.bounds
}

// Index returns the cell's spatial index. It is valid after Finalize.
func (c *Cell) Index() *Index {
	return c.index
}

// NetIndex returns the local net named name.
func (c *Cell) NetIndex(name string) (int, bool) {
	i, ok := c.netByName[norm.NFC.String(name)]
	return i, ok
}

// AddNet adds a local net and returns its index. Adding an existing name
// returns the existing index, promoting it to exported when asked.
func (c *Cell) AddNet(name string, exported bool) int {
	name = norm.NFC.String(name)
	if c.netByName == nil {
		c.netByName = make(map[string]int)
	}
	if i, ok := c.netByName[name]; ok {
		c.Nets[i].Exported = c.Nets[i].Exported || exported
		return i
	}
	c.Nets = append(c.Nets, Net{Name: name, Exported: exported})
	c.netByName[name] = len(c.Nets) - 1
	return len(c.Nets) - 1
}

// Library owns a set of cells.
type Library struct {
	Cells []*Cell

	byName    map[string]CellID
	prims     []*Primitive
	insts     []*Instance
	gen       uint64
	finalized bool
	maxShape  float64
	order     []CellID
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{byName: make(map[string]CellID)}
}

// Generation is bumped by every mutation.
func (l *Library) Generation() uint64 {
	return l.gen
}

func (l *Library) touch() {
	l.gen++
	l.finalized = false
}

// Finalized reports whether the library is ready to be checked.
func (l *Library) Finalized() bool {
	return l.finalized
}

// AddCell creates an empty cell. Names are NFC-normalised and must be
// unique.
func (l *Library) AddCell(name string) (*Cell, error) {
	name = norm.NFC.String(name)
	if _, ok := l.byName[name]; ok {
		return nil, fmt.Errorf("duplicate cell %q", name)
	}
	c := &Cell{ID: CellID(len(l.Cells)), Name: name, bounds: geom.EmptyRect()}
	l.Cells = append(l.Cells, c)
	l.byName[name] = c.ID
	l.touch()
	return c, nil
}

// MustCell is AddCell for fixtures; it panics on a duplicate name.
func (l *Library) MustCell(name string) *Cell {
	c, err := l.AddCell(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Cell returns the cell with the given id.
func (l *Library) Cell(id CellID) *Cell {
	if id < 0 || int(id) >= len(l.Cells) {
		return nil
	}
	return l.Cells[id]
}

// Lookup returns the cell named name.
func (l *Library) Lookup(name string) (*Cell, bool) {
	id, ok := l.byName[norm.NFC.String(name)]
	if !ok {
		return nil, false
	}
	return l.Cells[id], true
}

// AddPrimitive appends p to cell c and assigns it an id.
func (l *Library) AddPrimitive(c *Cell, p Primitive) *Primitive {
	p.ID = PrimID(len(l.prims))
	p.Layer = norm.NFC.String(p.Layer)
	pp := &p
	l.prims = append(l.prims, pp)
	c.Prims = append(c.Prims, pp)
	l.touch()
	return pp
}

// AddInstance places child inside parent and assigns the instance an id.
func (l *Library) AddInstance(parent *Cell, child CellID, name string, xf geom.Transform, conns map[int]int) *Instance {
	inst := &Instance{
		ID:    InstID(len(l.insts)),
		Name:  norm.NFC.String(name),
		Cell:  child,
		Xf:    xf,
		Conns: conns,
	}
	l.insts = append(l.insts, inst)
	parent.Insts = append(parent.Insts, inst)
	l.touch()
	return inst
}

// AddExclusion marks s as a region of c where violations are not reported.
func (l *Library) AddExclusion(c *Cell, s geom.Shape) {
	c.Exclusions = append(c.Exclusions, s)
	l.touch()
}

// SetRevision records that c was modified at rev.
func (l *Library) SetRevision(c *Cell, rev int64) {
	c.Revision = rev
	l.touch()
}

// Prim returns the primitive with the given id.
func (l *Library) Prim(id PrimID) *Primitive {
	if id < 0 || int(id) >= len(l.prims) {
		return nil
	}
	return l.prims[id]
}

// Inst returns the instance with the given id.
func (l *Library) Inst(id InstID) *Instance {
	if id < 0 || int(id) >= len(l.insts) {
		return nil
	}
	return l.insts[id]
}

// NumPrims returns the number of primitive ids allocated.
func (l *Library) NumPrims() int {
	return len(l.prims)
}

// NumInsts returns the number of instance ids allocated.
func (l *Library) NumInsts() int {
	return len(l.insts)
}

// PrimHandle returns the handle of a primitive in the current generation.
func (l *Library) PrimHandle(id PrimID) Handle {
	return Handle{Kind: ItemPrimitive, ID: int(id), Gen: l.gen}
}

// InstHandle returns the handle of an instance in the current generation.
func (l *Library) InstHandle(id InstID) Handle {
	return Handle{Kind: ItemInstance, ID: int(id), Gen: l.gen}
}

// MaxShapeSize returns the largest extent of any primitive. It is valid
// after Finalize.
func (l *Library) MaxShapeSize() float64 {
	return l.maxShape
}

// TopoOrder returns every cell, parents before children. It is valid after
// Finalize.
func (l *Library) TopoOrder() []CellID {
	return l.order
}

// Layers returns the sorted set of layer names used by any primitive.
func (l *Library) Layers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range l.prims {
		if !seen[p.Layer] {
			seen[p.Layer] = true
			out = append(out, p.Layer)
		}
	}
	sort.Strings(out)
	return out
}

// CellNames returns the names of all cells in id order.
func (l *Library) CellNames() []string {
	out := make([]string, len(l.Cells))
	for i, c := range l.Cells {
		out[i] = c.Name
	}
	return out
}
