package wazero

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
)

// Defaults for Config.
const (
	DefaultModuleName = "cervus"
	DefaultEntryPoint = "__app_main"
	DefaultMaxLogSize = 64 * 1024

	wasmPageSize = 65536
	maxPages     = 65536
)

// Config holds configuration for the interpreter.
type Config struct {
	// ModuleName is the host module guests import from (default: "cervus").
	ModuleName string

	// EntryPoint is the export called with no arguments (default: "__app_main").
	EntryPoint string

	// MaxLogSize limits the text of a single log_write call.
	MaxLogSize uint32
}

// Option configures the interpreter.
type Option func(*Config)

// WithModuleName sets the host module name.
func WithModuleName(name string) Option {
	return func(c *Config) {
		c.ModuleName = name
	}
}

// WithEntryPoint sets the exported function invoked as the program entry.
func WithEntryPoint(name string) Option {
	return func(c *Config) {
		c.EntryPoint = name
	}
}

// WithMaxLogSize sets the maximum log_write text size.
func WithMaxLogSize(size uint32) Option {
	return func(c *Config) {
		c.MaxLogSize = size
	}
}

func defaultConfig() Config {
	return Config{
		ModuleName: DefaultModuleName,
		EntryPoint: DefaultEntryPoint,
		MaxLogSize: DefaultMaxLogSize,
	}
}

// Interpreter implements ports.Interpreter with wazero's interpreter engine.
// Compiled code is cached across invocations; runtimes are not.
type Interpreter struct {
	cache  wazero.CompilationCache
	logger *slog.Logger
	cfg    Config
}

var _ ports.Interpreter = (*Interpreter)(nil)

// New creates an interpreter.
func New(logger *slog.Logger, opts ...Option) *Interpreter {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		cfg:    cfg,
		cache:  wazero.NewCompilationCache(),
		logger: logger,
	}
}

// Close releases the compilation cache.
func (i *Interpreter) Close(ctx context.Context) error {
	return i.cache.Close(ctx)
}

// Invoke compiles and instantiates params.Code, then calls the entry point.
//
// Only MaxMemory of params.Limits is enforced, as the memory page limit.
// wazero has no knobs for the operand stack, call depth or table slots.
// When the virtual region is mapped into the process and large enough,
// guest linear memory is placed at its start.
func (i *Interpreter) Invoke(ctx context.Context, params ports.InvokeParams, caps ports.Capabilities) (int32, error) {
	pages := params.Limits.MaxMemory / wasmPageSize
	if pages == 0 {
		pages = 1
	}
	if pages > maxPages {
		pages = maxPages
	}

	if region := params.Regions.Virtual; region != nil {
		if mem := region.Bytes(); uint64(len(mem)) >= pages*wasmPageSize {
			alloc := newRegionAllocator(mem)
			defer alloc.reset()
			ctx = experimental.WithMemoryAllocator(ctx, alloc)
		}
	}

	rcfg := wazero.NewRuntimeConfigInterpreter().
		WithCompilationCache(i.cache).
		WithMemoryLimitPages(uint32(pages)). //nolint:gosec // G115: capped at maxPages
		WithCloseOnContextDone(false)
	rt := wazero.NewRuntimeWithConfig(ctx, rcfg)
	defer func() {
		if err := rt.Close(ctx); err != nil {
			i.logger.WarnContext(ctx, "wazero: close runtime", "error", err)
		}
	}()

	if err := i.instantiateHostModule(ctx, rt, caps); err != nil {
		return -1, fmt.Errorf("wazero: host module: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, params.Code)
	if err != nil {
		return -1, hosterrors.Wrap(hosterrors.KindInvalidArgument, "compile", err)
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		return -1, hosterrors.Wrap(hosterrors.KindInvalidArgument, "instantiate", err)
	}

	entry := mod.ExportedFunction(i.cfg.EntryPoint)
	if entry == nil {
		return -1, hosterrors.New(hosterrors.KindInvalidArgument, "invoke", "export %q not found", i.cfg.EntryPoint)
	}
	def := entry.Definition()
	if len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 1 || def.ResultTypes()[0] != api.ValueTypeI32 {
		return -1, hosterrors.New(hosterrors.KindInvalidArgument, "invoke",
			"export %q must have type () -> i32", i.cfg.EntryPoint)
	}

	results, err := entry.Call(ctx)
	if err != nil {
		return -1, classify(i.cfg.EntryPoint, err)
	}
	return api.DecodeI32(results[0]), nil
}

// classify maps an error out of guest execution onto the host taxonomy.
// Cancellation unwinds through wazero wrapped, so errors.Is still finds it.
func classify(op string, err error) error {
	var he *hosterrors.HostError
	if errors.As(err, &he) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return hosterrors.Wrap(hosterrors.KindCancelled, op, err)
	}
	return hosterrors.Wrap(hosterrors.KindFault, op, err)
}
