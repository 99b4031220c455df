package entities

const (
	// MaxArgs is the fixed capacity of a submission's argument list.
	MaxArgs = 256

	// MaxArgLen is the longest argument accepted, in bytes.
	MaxArgLen = 1024
)

// Submission is a validated request in host-owned storage.
// Code and Args never alias the caller's buffers.
type Submission struct {
	Code     []byte
	Args     [][]byte
	ID       uint64
	Executor ExecutorKind
	Identity Identity
}

// Size returns the number of host bytes the submission holds.
func (s *Submission) Size() int {
	n := len(s.Code)
	for _, a := range s.Args {
		n += len(a)
	}
	return n
}
