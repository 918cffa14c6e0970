// Package geom provides the planar geometry used by the checker.
//
// Coordinates are float64 layout units. Placement transforms are restricted to
// the eight Manhattan orientations plus a translation, so an axis-aligned box
// stays an axis-aligned box under any transform. Shapes are a closed variant:
// either a Box (the Manhattan fast path) or a general Polygon.
//
// Points, rects, shapes and transforms are immutable; every operation returns
// a new value. Transforms compose by value, which lets recursive hierarchy walks
// pass the accumulated transform down the call stack without save/restore.
package geom

// Eps is the tolerance used for coordinate comparisons.
const Eps = 1e-9
