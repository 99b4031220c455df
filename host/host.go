package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/policy"
	"github.com/cervus-dev/cervus/domain/ports"
	"github.com/cervus-dev/cervus/vmm"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrAlreadyActive is returned by Init while another Host in the process
	// is initialized.
	ErrAlreadyActive = errors.New("host: another host is active in this process")

	// ErrNotRunning is returned for submissions outside Init..Shutdown.
	ErrNotRunning = errors.New("host: not running")

	// ErrShutdown is the termination cause given to executions at Shutdown.
	ErrShutdown = errors.New("host: shutting down")
)

// active guards the process-wide regions: only one Host may own them.
var active atomic.Bool

type hostState int32

const (
	stateNew hostState = iota
	stateRunning
	stateStopping
	stateStopped
)

// Host admits submissions and runs them.
type Host struct {
	interp     ports.Interpreter
	regions    RegionManager
	policy     ports.Policy
	sink       ports.LogSink
	logger     *slog.Logger
	onComplete CompletionHandler
	budget     *budget
	execLock   *semaphore.Weighted
	slots      *semaphore.Weighted
	baseCtx    context.Context
	baseCancel context.CancelCauseFunc
	workers    map[uint64]*Worker
	cfg        entities.Config
	wg         sync.WaitGroup
	mu         sync.Mutex
	nextID     atomic.Uint64
	state      hostState
	mapped     bool
}

// New creates a Host for cfg that runs guest code on interp. Nothing is
// mapped until Init.
func New(cfg entities.Config, interp ports.Interpreter, opts ...Option) *Host {
	h := &Host{
		cfg:      cfg,
		interp:   interp,
		logger:   slog.Default(),
		execLock: semaphore.NewWeighted(1),
		slots:    semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		workers:  make(map[uint64]*Worker),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.regions == nil {
		h.regions = vmm.New(cfg.Layout, vmm.WithLogger(h.logger))
	}
	if h.policy == nil {
		h.policy = policy.NewPolicy()
	}
	h.budget = newBudget(cfg.SubmissionBudget, cfg.AllocRetries, cfg.AllocRetryDelay)
	h.baseCtx, h.baseCancel = context.WithCancelCause(context.Background())
	return h
}

// Init claims the process-wide regions and maps them. A failed Init releases
// whatever was mapped and leaves the Host unusable.
func (h *Host) Init() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateRunning:
		return nil
	case stateStopping, stateStopped:
		return ErrNotRunning
	}

	if !active.CompareAndSwap(false, true) {
		return ErrAlreadyActive
	}
	if err := h.regions.Init(); err != nil {
		if serr := h.regions.Shutdown(); serr != nil {
			h.logger.Warn("host: release regions after failed init", "error", serr)
		}
		active.Store(false)
		h.state = stateStopped
		return fmt.Errorf("host: init regions: %w", err)
	}

	h.state = stateRunning
	h.mapped = true
	h.logger.Info("host: initialized",
		"max_workers", h.cfg.MaxWorkers,
		"submission_budget", h.cfg.SubmissionBudget,
		"privileged_identity", h.cfg.PrivilegedIdentity)
	return nil
}

// Shutdown terminates every live execution, waits for them until ctx is
// done, and unmaps the regions. If ctx ends first the regions stay mapped and
// Shutdown may be called again. It is idempotent.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.state == stateStopped {
		h.mu.Unlock()
		return nil
	}
	h.state = stateStopping
	live := len(h.workers)
	h.mu.Unlock()

	h.baseCancel(ErrShutdown)
	if live > 0 {
		h.logger.Info("host: terminating workers", "live", live)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("host: waiting for executions: %w", context.Cause(ctx))
	}

	h.mu.Lock()
	if h.state == stateStopped {
		h.mu.Unlock()
		return nil
	}
	h.state = stateStopped
	mapped := h.mapped
	h.mapped = false
	h.mu.Unlock()

	if !mapped {
		return nil
	}
	err := h.regions.Shutdown()
	active.Store(false)
	h.logger.Info("host: shut down")
	return err
}

// Config returns the configuration the Host was created with.
func (h *Host) Config() entities.Config {
	return h.cfg
}

// Workers returns the ids of live detached workers.
func (h *Host) Workers() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]uint64, 0, len(h.workers))
	for id := range h.workers {
		ids = append(ids, id)
	}
	return ids
}

// Worker returns the live detached worker with id, if any.
func (h *Host) Worker(id uint64) (*Worker, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.workers[id]
	return w, ok
}

// track registers an execution with Shutdown. It fails once Shutdown began.
func (h *Host) track() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != stateRunning {
		return hosterrors.Wrap(hosterrors.KindInternal, "submit", ErrNotRunning)
	}
	h.wg.Add(1)
	return nil
}

// Terminate requests fatal termination of the detached worker id. The worker
// observes it at its next checkpoint.
func (h *Host) Terminate(id uint64, cause error) bool {
	w, ok := h.Worker(id)
	if ok {
		w.Terminate(cause)
	}
	return ok
}

func (h *Host) privileged(id entities.Identity) bool {
	return id == h.cfg.PrivilegedIdentity
}
