package vmm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
)

// ErrNotInitialized is returned by Regions before a successful Init.
var ErrNotInitialized = errors.New("vmm: not initialized")

// PlacementError reports a mapping that landed away from its requested base.
type PlacementError struct {
	Region string
	Want   uint64
	Got    uint64
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("vmm: region %s mapped at %#x, want %#x", e.Region, e.Got, e.Want)
}

// Is makes a PlacementError match ErrInvalidArgument.
func (e *PlacementError) Is(target error) bool {
	return target == hosterrors.ErrInvalidArgument
}

// Region is a mapped region. It implements ports.MappedRegion.
type Region struct {
	mem  []byte
	desc entities.Region
}

// Descriptor returns the region's name, base and length.
func (r *Region) Descriptor() entities.Region {
	return r.desc
}

// Bytes returns the mapped memory, or nil if the mapper cannot expose it.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Manager owns the three process-wide regions.
type Manager struct {
	mapper   ports.Mapper
	logger   *slog.Logger
	initErr  error
	layout   entities.Layout
	mapped   []*Region
	pageSize uint64
	mu       sync.Mutex
	ready    bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithMapper replaces the system mapper.
func WithMapper(m ports.Mapper) Option {
	return func(mgr *Manager) {
		mgr.mapper = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(mgr *Manager) {
		mgr.logger = l
	}
}

// WithPageSize overrides the alignment regions are checked against.
func WithPageSize(size uint64) Option {
	return func(mgr *Manager) {
		mgr.pageSize = size
	}
}

// New creates a Manager for layout. Nothing is mapped until Init.
func New(layout entities.Layout, opts ...Option) *Manager {
	m := &Manager{
		layout:   layout,
		mapper:   SystemMapper{},
		logger:   slog.Default(),
		pageSize: uint64(os.Getpagesize()),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init maps the TLS slot, runtime window and virtual window, in that order.
// The first failure is returned as is and nothing further is mapped. Regions
// mapped before the failure stay mapped until Shutdown. A failed Init is not
// retried: later calls return the same error.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready {
		return nil
	}
	if m.initErr != nil {
		return m.initErr
	}

	for _, desc := range m.layout.Regions() {
		if err := m.mapRegion(desc); err != nil {
			m.initErr = err
			m.logger.Error("vmm: init failed", "region", desc.Name, "error", err)
			return err
		}
	}

	m.ready = true
	m.logger.Info("vmm: regions mapped",
		"tls", m.layout.TLS.String(),
		"runtime", m.layout.Runtime.String(),
		"virtual", m.layout.Virtual.String())
	return nil
}

func (m *Manager) mapRegion(desc entities.Region) error {
	if desc.Length == 0 || desc.Base%m.pageSize != 0 || desc.Length%m.pageSize != 0 {
		return hosterrors.New(hosterrors.KindInvalidArgument, "vmm: map "+desc.Name,
			"region %s is not page aligned (page size %d)", desc, m.pageSize)
	}

	addr, err := m.mapper.Map(desc.Base, desc.Length)
	if err != nil {
		return fmt.Errorf("vmm: map %s: %w", desc.Name, err)
	}
	if addr != desc.Base {
		// The misplaced mapping is not part of the layout; give it back.
		if uerr := m.mapper.Unmap(addr, desc.Length); uerr != nil {
			m.logger.Warn("vmm: failed to release misplaced mapping", "region", desc.Name, "addr", addr, "error", uerr)
		}
		return &PlacementError{Region: desc.Name, Want: desc.Base, Got: addr}
	}

	m.mapped = append(m.mapped, &Region{desc: desc, mem: m.mapper.Bytes(addr, desc.Length)})
	return nil
}

// Regions returns the mapped regions. It fails until Init has succeeded.
func (m *Manager) Regions() (ports.RegionSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return ports.RegionSet{}, ErrNotInitialized
	}
	return ports.RegionSet{TLS: m.mapped[0], Runtime: m.mapped[1], Virtual: m.mapped[2]}, nil
}

// Shutdown unmaps every region mapped so far, including those left behind by
// a failed Init. It is idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.mapped) - 1; i >= 0; i-- {
		r := m.mapped[i]
		if err := m.mapper.Unmap(r.desc.Base, r.desc.Length); err != nil {
			errs = append(errs, fmt.Errorf("vmm: unmap %s: %w", r.desc.Name, err))
		}
	}
	m.mapped = nil
	m.ready = false
	return errors.Join(errs...)
}
