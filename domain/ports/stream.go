package ports

import "io"

// Stream is a borrowed standard stream. The context holding it never owns
// the underlying file; Release drops the reference exactly once.
type Stream interface {
	io.Reader
	io.Writer

	// Release drops the reference. Calls after the first are no-ops.
	Release() error
}
