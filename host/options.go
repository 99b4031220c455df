package host

import (
	"log/slog"

	"github.com/cervus-dev/cervus/domain/entities"
	"github.com/cervus-dev/cervus/domain/ports"
)

// RegionManager owns the process-wide regions. vmm.Manager implements it.
type RegionManager interface {
	Init() error
	Regions() (ports.RegionSet, error)
	Shutdown() error
}

// CompletionHandler receives the completion record of every execution.
// It is called on the executing goroutine and must not block.
type CompletionHandler func(entities.Completion)

// Option defines a functional option for configuring the Host.
type Option func(*Host)

// WithRegionManager replaces the regions built from the configured layout.
func WithRegionManager(m RegionManager) Option {
	return func(h *Host) {
		h.regions = m
	}
}

// WithPolicy sets the file-open policy applied to non-privileged identities.
func WithPolicy(p ports.Policy) Option {
	return func(h *Host) {
		h.policy = p
	}
}

// WithLogSink sets the global log privileged guests write to.
func WithLogSink(s ports.LogSink) Option {
	return func(h *Host) {
		h.sink = s
	}
}

// WithLogger sets the host logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		h.logger = l
	}
}

// WithCompletionHandler registers a handler for completion records.
func WithCompletionHandler(fn CompletionHandler) Option {
	return func(h *Host) {
		h.onComplete = fn
	}
}
