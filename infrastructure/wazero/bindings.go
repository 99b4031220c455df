package wazero

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Identification reported to guests through runtime_name and
// runtime_spec_major/minor.
const (
	RuntimeName      = "Cervus"
	RuntimeSpecMajor = 0
	RuntimeSpecMinor = 0
)

var (
	statusFault    = hosterrors.KindFault.Status()
	statusInvalid  = hosterrors.KindInvalidArgument.Status()
	statusNotFound = hosterrors.KindNotFound.Status()
)

// bindings forwards host module calls to one execution's capabilities.
type bindings struct {
	caps   ports.Capabilities
	logger *slog.Logger
	maxLog uint32
}

// instantiateHostModule registers the host module on rt, bound to caps.
func (i *Interpreter) instantiateHostModule(ctx context.Context, rt wazero.Runtime, caps ports.Capabilities) error {
	b := &bindings{caps: caps, logger: i.logger, maxLog: i.cfg.MaxLogSize}

	builder := rt.NewHostModuleBuilder(i.cfg.ModuleName)
	export := func(name string, fn any) {
		builder.NewFunctionBuilder().WithFunc(fn).Export(name)
	}

	export("log_write", b.logWrite)
	export("identity", b.identity)
	export("io_get_stdin", b.stdin)
	export("io_get_stdout", b.stdout)
	export("io_get_stderr", b.stderr)
	export("resource_open", b.resourceOpen)
	export("resource_read", b.resourceRead)
	export("resource_write", b.resourceWrite)
	export("resource_close", b.resourceClose)
	export("env_yield", b.envYield)
	export("env_sleep", b.envSleep)
	export("env_reschedule", b.envReschedule)
	export("sem_create", b.semCreate)
	export("sem_destroy", b.semDestroy)
	export("sem_release", b.semRelease)
	export("sem_acquire", b.semAcquire)
	export("startup_arg_len", b.startupArgLen)
	export("startup_arg_at", b.startupArgAt)
	export("runtime_name", b.runtimeName)
	export("runtime_spec_major", b.runtimeSpecMajor)
	export("runtime_spec_minor", b.runtimeSpecMinor)
	export("env_get", b.envGet)

	_, err := builder.Instantiate(ctx)
	return err
}

// status converts err into the guest's status code. A cancellation does not
// return: it panics so wazero unwinds the guest, wrapping err with %w.
func (b *bindings) status(ctx context.Context, fn string, err error) int32 {
	if err == nil {
		return 0
	}
	if errors.Is(err, hosterrors.ErrCancelled) {
		panic(err)
	}
	b.logger.DebugContext(ctx, "wazero: host call failed", "function", fn, "error", err)
	return hosterrors.StatusOf(err)
}

// view returns the guest memory [ptr, ptr+length), clamped so counts fit an i32.
func view(m api.Module, ptr, length uint32) ([]byte, bool) {
	if length > math.MaxInt32 {
		length = math.MaxInt32
	}
	return m.Memory().Read(ptr, length)
}

func (b *bindings) logWrite(ctx context.Context, m api.Module, level int32, ptr, length uint32) int32 {
	if length > b.maxLog {
		return statusInvalid
	}
	text, ok := m.Memory().Read(ptr, length)
	if !ok {
		return statusFault
	}
	return b.status(ctx, "log_write", b.caps.Log(ports.LogLevel(level), string(text)))
}

func (b *bindings) identity() uint32 {
	return uint32(b.caps.Identity())
}

func streamStatus(h ports.Handle, ok bool) int32 {
	if !ok {
		return statusInvalid
	}
	return int32(h) //nolint:gosec // G115: stream handles are 0..2
}

func (b *bindings) stdin() int32 {
	return streamStatus(b.caps.Stdin())
}

func (b *bindings) stdout() int32 {
	return streamStatus(b.caps.Stdout())
}

func (b *bindings) stderr() int32 {
	return streamStatus(b.caps.Stderr())
}

func (b *bindings) resourceOpen(ctx context.Context, m api.Module, namePtr, nameLen, flagsPtr, flagsLen uint32) int32 {
	// Over-long names are refused before guest memory is even read.
	if nameLen > entities.MaxNameLen {
		return statusInvalid
	}
	name, ok := m.Memory().Read(namePtr, nameLen)
	if !ok {
		return statusFault
	}
	flags, ok := m.Memory().Read(flagsPtr, flagsLen)
	if !ok {
		return statusFault
	}
	h, err := b.caps.Open(string(name), string(flags))
	if err != nil {
		return b.status(ctx, "resource_open", err)
	}
	if h > math.MaxInt32 {
		_ = b.caps.Close(h)
		return hosterrors.KindResourceExhausted.Status()
	}
	return int32(h)
}

func (b *bindings) resourceRead(ctx context.Context, m api.Module, h, ptr, length uint32, offset int64) int32 {
	buf, ok := view(m, ptr, length)
	if !ok {
		return statusFault
	}
	n, err := b.caps.Read(ports.Handle(h), buf, offset)
	if err != nil {
		return b.status(ctx, "resource_read", err)
	}
	return int32(n) //nolint:gosec // G115: n <= len(buf) <= MaxInt32
}

func (b *bindings) resourceWrite(ctx context.Context, m api.Module, h, ptr, length uint32, offset int64) int32 {
	buf, ok := view(m, ptr, length)
	if !ok {
		return statusFault
	}
	n, err := b.caps.Write(ports.Handle(h), buf, offset)
	if err != nil {
		return b.status(ctx, "resource_write", err)
	}
	return int32(n) //nolint:gosec // G115: n <= len(buf) <= MaxInt32
}

func (b *bindings) resourceClose(ctx context.Context, h uint32) int32 {
	return b.status(ctx, "resource_close", b.caps.Close(ports.Handle(h)))
}

func (b *bindings) envYield(ctx context.Context) int32 {
	return b.status(ctx, "env_yield", b.caps.Yield())
}

func (b *bindings) envSleep(ctx context.Context, ms uint32) int32 {
	return b.status(ctx, "env_sleep", b.caps.Sleep(time.Duration(ms)*time.Millisecond))
}

func (b *bindings) envReschedule(ctx context.Context) int32 {
	return b.status(ctx, "env_reschedule", b.caps.Reschedule())
}

func (b *bindings) semCreate(ctx context.Context) int32 {
	id, err := b.caps.SemaphoreCreate()
	if err != nil {
		return b.status(ctx, "sem_create", err)
	}
	return int32(id) //nolint:gosec // G115: SemaphoreCreate never returns an id above MaxInt32
}

func (b *bindings) semDestroy(ctx context.Context, id uint32) int32 {
	return b.status(ctx, "sem_destroy", b.caps.SemaphoreDestroy(ports.SemaphoreID(id)))
}

func (b *bindings) semRelease(ctx context.Context, id uint32) int32 {
	return b.status(ctx, "sem_release", b.caps.SemaphoreRelease(ports.SemaphoreID(id)))
}

func (b *bindings) semAcquire(ctx context.Context, id uint32) int32 {
	return b.status(ctx, "sem_acquire", b.caps.SemaphoreAcquire(ports.SemaphoreID(id)))
}

func (b *bindings) startupArgLen() int32 {
	return int32(b.caps.ArgumentCount()) //nolint:gosec // G115: bounded by entities.MaxArgs
}

func (b *bindings) startupArgAt(ctx context.Context, m api.Module, index, ptr, length uint32) int32 {
	buf, ok := view(m, ptr, length)
	if !ok {
		return statusFault
	}
	n, err := b.caps.ReadArgument(int(index), buf)
	if err != nil {
		return b.status(ctx, "startup_arg_at", err)
	}
	return int32(n) //nolint:gosec // G115: bounded by entities.MaxArgLen
}

// runtimeName copies RuntimeName to the guest buffer and returns its length.
// A buffer too small for the whole name is rejected.
func (b *bindings) runtimeName(_ context.Context, m api.Module, ptr, length uint32) int32 {
	if length < uint32(len(RuntimeName)) {
		return statusInvalid
	}
	if !m.Memory().Write(ptr, []byte(RuntimeName)) {
		return statusFault
	}
	return int32(len(RuntimeName))
}

func (b *bindings) runtimeSpecMajor() int32 { return RuntimeSpecMajor }

func (b *bindings) runtimeSpecMinor() int32 { return RuntimeSpecMinor }

// envGet reports every variable as missing: executions have no environment.
func (b *bindings) envGet(keyPtr, keyLen, outPtr, outLen uint32) int32 {
	return statusNotFound
}
