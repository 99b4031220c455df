package wazero

import (
	"github.com/tetratelabs/wazero/experimental"
)

// regionAllocator places guest linear memory at the start of a host-mapped
// region. Invocations are serialized by the host, so a region backs at most
// one live memory at a time.
type regionAllocator struct {
	region []byte
	mems   []*regionMemory
}

var _ experimental.MemoryAllocator = (*regionAllocator)(nil)

func newRegionAllocator(region []byte) *regionAllocator {
	return &regionAllocator{region: region}
}

// Allocate implements experimental.MemoryAllocator.
func (a *regionAllocator) Allocate(_, maxBytes uint64) experimental.LinearMemory {
	m := &regionMemory{region: a.region, max: maxBytes}
	a.mems = append(a.mems, m)
	return m
}

// reset frees every memory handed out, whether or not wazero already did.
func (a *regionAllocator) reset() {
	for _, m := range a.mems {
		m.Free()
	}
	a.mems = nil
}

// regionMemory is a linear memory that grows in place inside region.
type regionMemory struct {
	region []byte
	max    uint64
	used   uint64
}

// Reallocate implements experimental.LinearMemory. The backing address never
// changes, so growth never copies.
func (m *regionMemory) Reallocate(size uint64) []byte {
	if size > uint64(len(m.region)) || size > m.max {
		return nil
	}
	if size > m.used {
		m.used = size
	}
	return m.region[:size:size]
}

// Free implements experimental.LinearMemory. The region stays mapped; the
// bytes the guest touched are cleared for the next invocation.
func (m *regionMemory) Free() {
	clear(m.region[:m.used])
	m.used = 0
}
