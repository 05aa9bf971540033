// Package runner executes a manifest of commands, one at a time, each
// under its own wall-clock deadline.
//
// Every unit runs as a child process in its own process group. When a
// unit's deadline fires, the goroutine stacks are dumped for diagnosis
// and the unit's whole process tree is killed; the run then continues
// with the next unit. Outcomes are rendered as a summary table once the
// manifest is exhausted.
package runner
