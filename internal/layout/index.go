package layout

import (
	"math"
	"sort"

	"github.com/roach88/hdrc/internal/geom"
)

// nodeCapacity is the fan-out of the packed R-tree.
const nodeCapacity = 8

// Entry is one item of a cell's spatial index. Index is the position of the
// item in Cell.Prims or Cell.Insts according to Kind.
type Entry struct {
	Kind  ItemKind
	Index int
	Box   geom.Rect
}

type rnode struct {
	box      geom.Rect
	children []*rnode
	entries  []Entry
}

// Index is a static R-tree packed with the Sort-Tile-Recursive algorithm.
// It is built once per cell and never modified.
type Index struct {
	root *rnode
	size int
}

// NewIndex packs entries into an R-tree. Entries with empty boxes are
// dropped.
func NewIndex(entries []Entry) *Index {
	var leaves []Entry
	for _, e := range entries {
		if !e.Box.IsEmpty() {
			leaves = append(leaves, e)
		}
	}
	ix := &Index{size: len(leaves)}
	if len(leaves) == 0 {
		return ix
	}

	level := packLeaves(leaves)
	for len(level) > 1 {
		level = packNodes(level)
	}
	ix.root = level[0]
	return ix
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.size
}

// Bounds returns the box enclosing every entry.
func (ix *Index) Bounds() geom.Rect {
	if ix == nil || ix.root == nil {
		return geom.EmptyRect()
	}
	return ix.root.box
}

// Search calls fn for every entry whose box overlaps box, touching included.
// It stops early and returns false when fn returns false.
func (ix *Index) Search(box geom.Rect, fn func(Entry) bool) bool {
	if ix == nil || ix.root == nil {
		return true
	}
	return ix.root.search(box, fn)
}

func (n *rnode) search(box geom.Rect, fn func(Entry) bool) bool {
	if !n.box.Overlaps(box) {
		return true
	}
	for _, e := range n.entries {
		if e.Box.Overlaps(box) && !fn(e) {
			return false
		}
	}
	for _, c := range n.children {
		if !c.search(box, fn) {
			return false
		}
	}
	return true
}

// tiles splits n items into vertical slices of whole nodes.
func tiles(n int) (sliceLen int) {
	pages := int(math.Ceil(float64(n) / nodeCapacity))
	slices := int(math.Ceil(math.Sqrt(float64(pages))))
	return slices * nodeCapacity
}

func packLeaves(entries []Entry) []*rnode {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Box.Center().X < entries[j].Box.Center().X
	})
	step := tiles(len(entries))
	var out []*rnode
	for s := 0; s < len(entries); s += step {
		slice := entries[s:min(s+step, len(entries))]
		sort.SliceStable(slice, func(i, j int) bool {
			return slice[i].Box.Center().Y < slice[j].Box.Center().Y
		})
		for k := 0; k < len(slice); k += nodeCapacity {
			chunk := slice[k:min(k+nodeCapacity, len(slice))]
			n := &rnode{box: geom.EmptyRect(), entries: append([]Entry(nil), chunk...)}
			for _, e := range chunk {
				n.box = n.box.Union(e.Box)
			}
			out = append(out, n)
		}
	}
	return out
}

func packNodes(nodes []*rnode) []*rnode {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].box.Center().X < nodes[j].box.Center().X
	})
	step := tiles(len(nodes))
	var out []*rnode
	for s := 0; s < len(nodes); s += step {
		slice := nodes[s:min(s+step, len(nodes))]
		sort.SliceStable(slice, func(i, j int) bool {
			return slice[i].box.Center().Y < slice[j].box.Center().Y
		})
		for k := 0; k < len(slice); k += nodeCapacity {
			chunk := slice[k:min(k+nodeCapacity, len(slice))]
			n := &rnode{box: geom.EmptyRect(), children: append([]*rnode(nil), chunk...)}
			for _, c := range chunk {
				n.box = n.box.Union(c.box)
			}
			out = append(out, n)
		}
	}
	return out
}
