// Package vmm reserves the guest address-space layout.
//
// Three regions are mapped once, in order, before any interpreter runs: the
// TLS slot, the runtime window and the virtual window. Each must land at its
// exact base. Guest code is compiled against those bases, so a layout that
// moved between runs would break it.
//
// Mappings are made without reserving backing memory up front (MAP_NORESERVE).
// The windows are several gigabytes and mostly untouched, so committing them
// would be wasteful; the price is that an allocation failure surfaces later as
// a fault on first touch instead of as an error from Init.
package vmm
