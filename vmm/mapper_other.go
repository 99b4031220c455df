//go:build !linux

package vmm

import "errors"

// ErrUnsupported is returned by SystemMapper off Linux.
var ErrUnsupported = errors.New("vmm: fixed-address mappings require linux")

// SystemMapper is unavailable on this platform.
type SystemMapper struct{}

// Map implements ports.Mapper.
func (SystemMapper) Map(base, length uint64) (uint64, error) {
	return 0, ErrUnsupported
}

// Unmap implements ports.Mapper.
func (SystemMapper) Unmap(addr, length uint64) error {
	return ErrUnsupported
}

// Bytes implements ports.Mapper.
func (SystemMapper) Bytes(addr, length uint64) []byte {
	return nil
}
