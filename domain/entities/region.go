package entities

import (
	"fmt"
	"os"
)

// Region names.
const (
	RegionTLS     = "tls"
	RegionRuntime = "runtime"
	RegionVirtual = "virtual"
)

// Default region placement.
const (
	DefaultTLSBase     uint64 = 0x10000
	DefaultRuntimeBase uint64 = 0x100000000
	DefaultVirtualBase uint64 = 0x800000000

	// DefaultWindowLen is the size of the runtime and virtual windows (4 GiB).
	DefaultWindowLen uint64 = 4 << 30
)

// Region is a fixed-address, fixed-size reservation in the host address space.
type Region struct {
	Name   string `json:"name" yaml:"name"`
	Base   uint64 `json:"base" yaml:"base" validate:"required"`
	Length uint64 `json:"length" yaml:"length" validate:"gt=0"`
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.Base + r.Length
}

func (r Region) String() string {
	return fmt.Sprintf("%s[%#x,%#x)", r.Name, r.Base, r.End())
}

// Layout is the full guest address-space layout. Exactly three regions.
type Layout struct {
	TLS     Region `json:"tls" yaml:"tls"`
	Runtime Region `json:"runtime" yaml:"runtime"`
	Virtual Region `json:"virtual" yaml:"virtual"`
}

// DefaultLayout returns the layout guest code is compiled against.
// The TLS slot is one page.
func DefaultLayout() Layout {
	return Layout{
		TLS:     Region{Name: RegionTLS, Base: DefaultTLSBase, Length: uint64(os.Getpagesize())},
		Runtime: Region{Name: RegionRuntime, Base: DefaultRuntimeBase, Length: DefaultWindowLen},
		Virtual: Region{Name: RegionVirtual, Base: DefaultVirtualBase, Length: DefaultWindowLen},
	}
}

// Regions returns the regions in mapping order.
func (l Layout) Regions() []Region {
	return []Region{l.TLS, l.Runtime, l.Virtual}
}
