// Package host is the privileged side of the sandbox: it admits guest
// submissions, owns the process-wide address-space regions, and drives the
// interpreter for each execution.
//
// A Host accepts two commands. LOAD starts a detached worker for the
// privileged identity and returns at once. RUN executes inline on the
// caller's goroutine with the caller's streams and returns the exit code.
// Interpreter invocations are serialized because every execution shares the
// same fixed regions.
package host
