// Package stack captures and renders goroutine call stacks for hang
// diagnostics.
//
// Snapshots are decoded from the runtime's own traceback text, ordered by
// goroutine id so dumps are reproducible, and rendered as plain text with
// one block per goroutine carrying function, file and line per frame.
// Capture never fails: a goroutine whose frames cannot be decoded is
// reported with an empty frame list.
package stack
