package host

import (
	"context"
	"log/slog"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
)

// Caller is the submitting client: its identity and the standard streams it
// lent. Any stream may be nil.
type Caller struct {
	Stdin    ports.Stream
	Stdout   ports.Stream
	Stderr   ports.Stream
	Identity entities.Identity
}

func (c Caller) release(logger *slog.Logger) {
	for _, s := range []ports.Stream{c.Stdin, c.Stdout, c.Stderr} {
		if s == nil {
			continue
		}
		if err := s.Release(); err != nil {
			logger.Warn("host: release caller stream", "identity", c.Identity, "error", err)
		}
	}
}

// Result is the outcome of a dispatched command.
type Result struct {
	// ExitCode is the guest exit code of a RUN.
	ExitCode int32

	// WorkerID is the detached worker started by a LOAD.
	WorkerID uint64
}

// Dispatch routes a control command. Streams in caller are released on every
// path, including unknown commands.
func (h *Host) Dispatch(ctx context.Context, cmd entities.Command, caller Caller, req entities.Request) (Result, error) {
	switch cmd {
	case entities.CommandLoad:
		id, err := h.Load(ctx, caller, req)
		return Result{WorkerID: id}, err
	case entities.CommandRun:
		code, err := h.Run(ctx, caller, req)
		return Result{ExitCode: code}, err
	default:
		caller.release(h.logger)
		return Result{}, hosterrors.New(hosterrors.KindInvalidArgument, "dispatch", "unknown command %s", cmd)
	}
}

// Load admits req as a detached worker and returns its id without waiting.
// Only the privileged identity may load. The worker inherits no streams.
func (h *Host) Load(ctx context.Context, caller Caller, req entities.Request) (uint64, error) {
	const op = "load"
	caller.release(h.logger)

	if !h.privileged(caller.Identity) {
		return 0, hosterrors.New(hosterrors.KindPermissionDenied, op, "identity %s may not load", caller.Identity)
	}
	if err := h.track(); err != nil {
		return 0, err
	}

	sub, err := h.admit(ctx, caller.Identity, req)
	if err != nil {
		h.wg.Done()
		return 0, err
	}
	if !h.slots.TryAcquire(1) {
		h.free(sub)
		h.wg.Done()
		return 0, hosterrors.New(hosterrors.KindResourceExhausted, op, "%d workers live", h.cfg.MaxWorkers)
	}

	w := h.newWorker(context.Background(), sub, Caller{}, true)
	h.mu.Lock()
	h.workers[w.id] = w
	h.mu.Unlock()

	go func() {
		_, _ = w.run(context.Background())
	}()

	h.logger.Debug("host: worker started", "worker", w.id, "identity", caller.Identity, "code_size", len(req.Code))
	return w.id, nil
}

// Run executes req on the calling goroutine with the caller's streams and
// returns the guest exit code. Any identity may run. Cancelling ctx
// terminates the execution at its next checkpoint.
func (h *Host) Run(ctx context.Context, caller Caller, req entities.Request) (int32, error) {
	if err := h.track(); err != nil {
		caller.release(h.logger)
		return -1, err
	}

	sub, err := h.admit(ctx, caller.Identity, req)
	if err != nil {
		caller.release(h.logger)
		h.wg.Done()
		return -1, err
	}

	w := h.newWorker(ctx, sub, caller, false)
	return w.run(ctx)
}
