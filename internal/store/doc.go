// Package store provides SQLite-backed persistence for design-rule checks.
//
// The store holds:
//   - Good dates: per cell, task group, rule set and violation mask, the
//     date the cell was last found clean. Store implements drc.DateStore,
//     so good dates survive between invocations.
//   - Runs: one record per check, identified by a UUIDv7 and ordered by a
//     logical sequence number.
//   - Violations: the violations of each run, in report order.
//
// # Ordering
//
// Runs are ordered by seq, never by wall time. Violations of a run are read
// back in the order they were written.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
