//go:build linux

package vmm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// SystemMapper maps regions with mmap(2).
//
// MAP_FIXED_NOREPLACE makes an occupied range fail with EEXIST instead of
// silently replacing part of the host process. Kernels older than 4.17 treat
// the flag as a hint and may return another address; Manager rejects that.
type SystemMapper struct{}

const mapFlags = unix.MAP_SHARED | unix.MAP_ANONYMOUS | unix.MAP_FIXED_NOREPLACE | unix.MAP_NORESERVE

// Map implements ports.Mapper.
func (SystemMapper) Map(base, length uint64) (uint64, error) {
	p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(uintptr(base)), uintptr(length), //nolint:govet // fixed guest address, not a Go pointer
		unix.PROT_READ|unix.PROT_WRITE, mapFlags)
	if err != nil {
		return 0, err
	}
	return uint64(uintptr(p)), nil
}

// Unmap implements ports.Mapper.
func (SystemMapper) Unmap(addr, length uint64) error {
	return unix.MunmapPtr(unsafe.Pointer(uintptr(addr)), uintptr(length)) //nolint:govet // see Map
}

// Bytes implements ports.Mapper.
func (SystemMapper) Bytes(addr, length uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), length) //nolint:govet // see Map
}
