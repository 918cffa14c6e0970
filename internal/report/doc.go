// Package report renders check results for people and programs.
//
// Text output colours severities when writing to a terminal. JSON output
// is a single document with counts, optional run metadata and one object
// per violation. Compare diffs the violations of two runs line by line so
// a designer can see what an edit fixed or broke.
package report
