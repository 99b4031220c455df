package vmm

import (
	"fmt"
	"sync"
)

// DefaultHeapBackingLimit is the largest region HeapMapper backs with memory.
const DefaultHeapBackingLimit = 64 << 20

// HeapMapper is a Mapper that never touches the address space. Every region
// "lands" at its base; regions up to a size limit are backed by Go heap
// memory so the interpreter can still place guest memory in them. It exists
// for unprivileged development and for tests.
type HeapMapper struct {
	mapped map[uint64][]byte
	limit  uint64
	mu     sync.Mutex
}

// NewHeapMapper returns a HeapMapper that backs regions up to limit bytes.
func NewHeapMapper(limit uint64) *HeapMapper {
	return &HeapMapper{mapped: make(map[uint64][]byte), limit: limit}
}

// Map implements ports.Mapper.
func (h *HeapMapper) Map(base, length uint64) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.mapped[base]; ok {
		return 0, fmt.Errorf("heap mapper: %#x already mapped", base)
	}
	var mem []byte
	if length <= h.limit {
		mem = make([]byte, length)
	}
	h.mapped[base] = mem
	return base, nil
}

// Unmap implements ports.Mapper.
func (h *HeapMapper) Unmap(addr, length uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.mapped[addr]; !ok {
		return fmt.Errorf("heap mapper: %#x not mapped", addr)
	}
	delete(h.mapped, addr)
	return nil
}

// Bytes implements ports.Mapper.
func (h *HeapMapper) Bytes(addr, length uint64) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mapped[addr]
}
