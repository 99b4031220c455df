package ports

import (
	"context"

	"github.com/cervus-dev/cervus/domain/entities"
)

// InvokeParams is everything an interpreter invocation is given besides the
// capability context.
type InvokeParams struct {
	Code    []byte
	Limits  entities.Limits
	Regions RegionSet
}

// RegionSet is the three reserved regions, as handed to the interpreter.
type RegionSet struct {
	TLS     MappedRegion
	Runtime MappedRegion
	Virtual MappedRegion
}

// MappedRegion is a region descriptor, optionally backed by addressable memory.
type MappedRegion interface {
	Descriptor() entities.Region

	// Bytes returns the region's memory, or nil when it is not mapped
	// into the host process.
	Bytes() []byte
}

// Interpreter executes guest code. Implementations must reach host services
// only through caps and must poll for cancellation only through the
// capability calls that document a checkpoint.
type Interpreter interface {
	// Invoke runs code to completion and returns the guest exit code.
	// A non-nil error means the guest did not exit normally; the returned
	// code is then the code to report.
	Invoke(ctx context.Context, params InvokeParams, caps Capabilities) (int32, error)
}
