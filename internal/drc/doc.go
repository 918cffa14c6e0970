// Package drc is the hierarchical, incremental design-rule checker.
//
// A check never flattens the design. Each cell is checked once, in its own
// coordinates, against the geometry it contains directly and through its
// sub-cell instances:
//
//   - BuildNumbering assigns every (cell, instantiation path) pair a global
//     index, and every net occurrence a global net number, so connectivity
//     across the hierarchy is an integer comparison.
//   - The spatial search walks per-cell R-trees, composing immutable
//     transforms on the way down.
//   - An InteractionCache remembers instance pairs already compared in the
//     same relative placement.
//   - The Evaluator decides whether two candidate shapes violate a rule.
//   - Stored good dates let Run skip cells whose last check is still valid.
//
// Run splits a check into one task per layer group plus a node-size task.
// Tasks share only read-only inputs and the Sink.
package drc
