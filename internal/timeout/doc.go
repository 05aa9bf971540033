// Package timeout enforces a wall-clock deadline on one unit of work at a
// time.
//
// A Guard arms a Deadline via Begin before the work runs and releases it
// via End on every exit path. Two strategies detect expiry: the signal
// strategy raises SIGALRM and cancels the protected context with an
// *ExpiredError cause, so the host can fail just that unit and continue;
// the thread strategy dumps from a dedicated timer goroutine and
// terminates the whole process with a distinct exit status. Either way the
// diagnostic dump of goroutine stacks is written before the failure or
// termination.
package timeout
