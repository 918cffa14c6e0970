// Package layout is the cell database the checker reads.
//
// A Library owns cells. Each cell holds primitives (shapes on a layer that
// belong to a local net), instances of other cells placed with a Manhattan
// transform, exclusion shapes, and a local netlist. Cells, instances and
// primitives carry dense library-wide integer ids so that per-check state can
// live in slot arrays instead of identity-keyed maps.
//
// A Library must be finalized before it is checked: Finalize rejects
// containment cycles and dangling references, derives anonymous nets, computes
// cell bounds, and packs a static R-tree per cell.
package layout
