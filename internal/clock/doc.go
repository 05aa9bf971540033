// Package clock abstracts wall-clock access and one-shot timer scheduling
// behind a TimeSource interface, with a real implementation backed by the
// time package and a manually driven fake for deterministic tests.
package clock
