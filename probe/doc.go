// Package probe implements the build-feedback probe.
//
// The package is split by concern:
//   - locator: validate a project directory and find its build manifest
//   - compile: run the external feedback process under a bounded deadline
//   - error: the closed failure taxonomy shared by both
//   - observability: process-wide hooks fed by every call
//
// Nothing here keeps state between calls. Each call owns the process it
// spawns, the buffers it captures into and the timer that bounds it, so
// concurrent calls against the same directory never coordinate.
package probe
