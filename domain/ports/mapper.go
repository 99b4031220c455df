package ports

// Mapper places fixed-address mappings. The VMM depends on it so the
// kernel interaction can be replaced in tests.
type Mapper interface {
	// Map requests a shared, anonymous, read/write, no-reserve mapping of
	// length bytes at base and returns the address the mapping landed at.
	Map(base, length uint64) (addr uint64, err error)

	// Unmap releases a mapping made by Map.
	Unmap(addr, length uint64) error

	// Bytes returns an addressable view of a live mapping.
	Bytes(addr, length uint64) []byte
}
