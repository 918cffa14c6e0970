// Package tech holds a technology: its layers and the design rules that
// apply to them.
//
// Technologies are written in CUE and checked against an embedded schema
// before being decoded. Rules are immutable values; a rule may carry an
// expression condition over the geometry under test (width, length,
// multicut) that decides whether it applies.
//
// Lookups never fail: a layer pair without a rule simply has nothing to
// check.
package tech
