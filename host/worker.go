package host

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
	"github.com/cervus-dev/cervus/hostfuncs"
	"github.com/cervus-dev/cervus/internal/cancel"
)

// Worker is one execution: a submission, its capability context and its
// cancellation token. Detached workers run on their own goroutine; inline
// ones run on the caller's.
type Worker struct {
	host       *Host
	sub        *entities.Submission
	caps       *hostfuncs.Context
	token      *cancel.Token
	stop       func() bool
	done       chan struct{}
	completion entities.Completion
	state      atomic.Int32
	id         uint64
	detached   bool
}

// newWorker takes ownership of sub. Inline workers also take the caller's
// streams; detached ones never inherit any.
func (h *Host) newWorker(parent context.Context, sub *entities.Submission, caller Caller, detached bool) *Worker {
	token := cancel.New(parent)
	stop := context.AfterFunc(h.baseCtx, func() {
		token.Terminate(context.Cause(h.baseCtx))
	})

	opts := []hostfuncs.Option{
		hostfuncs.WithToken(token),
		hostfuncs.WithArgs(sub.Args),
		hostfuncs.WithPrivilegedIdentity(h.cfg.PrivilegedIdentity),
		hostfuncs.WithLogger(h.logger),
	}
	if h.sink != nil {
		opts = append(opts, hostfuncs.WithLogSink(h.sink))
	}
	if grants := h.cfg.GrantsFor(sub.Identity); grants != nil {
		opts = append(opts, hostfuncs.WithFileSystemPolicy(h.policy, grants))
	}
	if !detached {
		opts = append(opts, hostfuncs.WithStreams(caller.Stdin, caller.Stdout, caller.Stderr))
	}

	w := &Worker{
		host:     h,
		id:       sub.ID,
		sub:      sub,
		caps:     hostfuncs.NewContext(sub.Identity, opts...),
		token:    token,
		stop:     stop,
		done:     make(chan struct{}),
		detached: detached,
	}
	w.state.Store(int32(entities.WorkerCreated))
	return w
}

// ID returns the worker id, which is also the submission id.
func (w *Worker) ID() uint64 { return w.id }

// State returns the lifecycle state.
func (w *Worker) State() entities.WorkerState {
	return entities.WorkerState(w.state.Load())
}

// Done is closed once the worker has exited and released everything.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Completion returns the exit record. It is valid after Done is closed.
func (w *Worker) Completion() entities.Completion {
	<-w.done
	return w.completion
}

// Terminate requests fatal termination. A nil cause means
// cancel.ErrFatalTermination.
func (w *Worker) Terminate(cause error) { w.token.Terminate(cause) }

// Interrupt records a non-fatal interruption. The guest keeps running.
func (w *Worker) Interrupt() { w.token.Interrupt() }

// run executes the submission and releases everything the worker owns,
// whatever the outcome. The exit code is the interpreter's, unchanged.
func (w *Worker) run(ctx context.Context) (int32, error) {
	h := w.host
	started := time.Now()
	w.state.Store(int32(entities.WorkerRunning))

	code, err := w.invoke(ctx)

	if rerr := w.caps.Release(); rerr != nil {
		h.logger.Warn("host: release streams", "worker", w.id, "error", rerr)
	}
	w.stop()
	w.token.Release()
	executor, identity := w.sub.Executor, w.sub.Identity
	h.free(w.sub)
	w.state.Store(int32(entities.WorkerExited))

	w.completion = entities.Completion{
		Started:  started,
		Finished: time.Now(),
		Err:      err,
		WorkerID: w.id,
		Identity: identity,
		Executor: executor,
		ExitCode: code,
		Detached: w.detached,
	}
	h.complete(w)
	return code, err
}

func (w *Worker) invoke(ctx context.Context) (int32, error) {
	h := w.host
	if err := h.execLock.Acquire(w.token.Context(), 1); err != nil {
		return -1, hosterrors.Wrap(hosterrors.KindCancelled, "run", w.token.Cause())
	}
	defer h.execLock.Release(1)

	regions, err := h.regions.Regions()
	if err != nil {
		return -1, hosterrors.Wrap(hosterrors.KindInternal, "run", err)
	}
	return h.interp.Invoke(ctx, ports.InvokeParams{
		Code:    w.sub.Code,
		Limits:  h.cfg.Limits,
		Regions: regions,
	}, w.caps)
}

// complete records an exited worker and unregisters it from Shutdown.
func (h *Host) complete(w *Worker) {
	c := w.completion
	attrs := []any{
		"worker", c.WorkerID,
		"identity", c.Identity,
		"executor", c.Executor,
		"exit_code", c.ExitCode,
		"detached", c.Detached,
		"duration", c.Duration(),
	}
	if c.Err != nil {
		h.logger.Warn("host: worker exited", append(attrs, "error", c.Err)...)
	} else {
		h.logger.Info("host: worker exited", attrs...)
	}
	if h.onComplete != nil {
		h.onComplete(c)
	}

	if w.detached {
		h.mu.Lock()
		delete(h.workers, w.id)
		h.mu.Unlock()
		h.slots.Release(1)
	}
	close(w.done)
	h.wg.Done()
}
