package drc

import (
	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/layout"
)

// InteractionKey describes two instances in a relative placement. DX and
// DY are the offset of B's origin from A's, and Trigger is the parent cell
// in which the pair was found.
type InteractionKey struct {
	CellA   layout.CellID
	OrientA geom.Orient
	CellB   layout.CellID
	OrientB geom.Orient
	DX, DY  float64
	Trigger layout.CellID
}

// PairKey returns the normalised key of instances a and b placed in
// trigger. The key is the same whichever instance comes first.
func PairKey(trigger layout.CellID, a, b *layout.Instance) InteractionKey {
	k := InteractionKey{
		CellA:   a.Cell,
		OrientA: a.Xf.O,
		CellB:   b.Cell,
		OrientB: b.Xf.O,
		DX:      b.Xf.DX - a.Xf.DX,
		DY:      b.Xf.DY - a.Xf.DY,
		Trigger: trigger,
	}
	return k.normalize()
}

func (k InteractionKey) normalize() InteractionKey {
	swap := k.CellB < k.CellA || (k.CellB == k.CellA && k.OrientB < k.OrientA)
	if k.CellA == k.CellB && k.OrientA == k.OrientB {
		swap = k.DX < 0 || (k.DX == 0 && k.DY < 0)
	}
	if swap {
		k.CellA, k.CellB = k.CellB, k.CellA
		k.OrientA, k.OrientB = k.OrientB, k.OrientA
		k.DX, k.DY = -k.DX, -k.DY
	}
	return k
}

// InteractionCache remembers instance pairs that were already compared.
// It belongs to one task and is not safe for concurrent use.
type InteractionCache struct {
	seen map[InteractionKey]struct{}
}

// NewInteractionCache returns an empty cache.
func NewInteractionCache() *InteractionCache {
	return &InteractionCache{seen: make(map[InteractionKey]struct{})}
}

// Seen reports whether key was recorded before. A new key is recorded and
// Seen returns false.
func (c *InteractionCache) Seen(key InteractionKey) bool {
	key = key.normalize()
	if _, ok := c.seen[key]; ok {
		return true
	}
	c.seen[key] = struct{}{}
	return false
}

// Len returns the number of recorded pairs.
func (c *InteractionCache) Len() int {
	return len(c.seen)
}
