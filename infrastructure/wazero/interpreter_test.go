package wazero

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
	"github.com/cervus-dev/cervus/hostfuncs"
	"github.com/cervus-dev/cervus/internal/cancel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufStream struct {
	bytes.Buffer
	releases int
}

func (s *bufStream) Release() error {
	s.releases++
	return nil
}

type testRegion struct {
	mem  []byte
	desc entities.Region
}

func (r *testRegion) Descriptor() entities.Region { return r.desc }
func (r *testRegion) Bytes() []byte               { return r.mem }

// probeCaps runs onYield instead of yielding.
type probeCaps struct {
	*hostfuncs.Context
	onYield func() error
}

func (p *probeCaps) Yield() error {
	return p.onYield()
}

var (
	noArgsI32  = funcType{results: []byte{valI32}}
	twoI32     = funcType{params: []byte{valI32, valI32}, results: []byte{valI32}}
	threeI32   = funcType{params: []byte{valI32, valI32, valI32}, results: []byte{valI32}}
	fourI32    = funcType{params: []byte{valI32, valI32, valI32, valI32}, results: []byte{valI32}}
	ioWithOff  = funcType{params: []byte{valI32, valI32, valI32, valI64}, results: []byte{valI32}}
	quietLog   = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func testParams(code []byte) ports.InvokeParams {
	return ports.InvokeParams{Code: code, Limits: entities.DefaultLimits()}
}

func newTestInterpreter(t *testing.T, opts ...Option) *Interpreter {
	t.Helper()
	interp := New(quietLog, opts...)
	t.Cleanup(func() { _ = interp.Close(context.Background()) })
	return interp
}

func TestInterpreter_ReturnsExitCode(t *testing.T) {
	interp := newTestInterpreter(t)
	caps := hostfuncs.NewContext(1000)

	code, err := interp.Invoke(context.Background(), testParams(answerModule), caps)
	require.NoError(t, err)
	assert.Equal(t, int32(42), code)

	// The builder produces the same program.
	built := program{body: i32(42)}.encode()
	assert.Equal(t, answerModule, built)

	// Negative exit codes survive the round trip.
	code, err = interp.Invoke(context.Background(), testParams(program{body: i32(-7)}.encode()), caps)
	require.NoError(t, err)
	assert.Equal(t, int32(-7), code)
}

func TestInterpreter_IdentityAndArguments(t *testing.T) {
	interp := newTestInterpreter(t)
	caps := hostfuncs.NewContext(1000, hostfuncs.WithArgs([][]byte{[]byte("abc"), []byte("de")}))

	prog := program{
		imports: []hostImport{{"identity", noArgsI32}, {"startup_arg_len", noArgsI32}},
		body:    code(call(0), call(1), []byte{opI32Add}),
	}
	exit, err := interp.Invoke(context.Background(), testParams(prog.encode()), caps)
	require.NoError(t, err)
	assert.Equal(t, int32(1002), exit)
}

func TestInterpreter_StartupArgAt(t *testing.T) {
	interp := newTestInterpreter(t)
	caps := hostfuncs.NewContext(1000, hostfuncs.WithArgs([][]byte{[]byte("abcdef")}))

	tests := []struct {
		name string
		body []byte
		want int32
	}{
		{"copies min of lengths", code(i32(0), i32(100), i32(3), call(0)), 3},
		{"whole argument", code(i32(0), i32(100), i32(64), call(0)), 6},
		{"copied bytes land in memory", code(i32(0), i32(100), i32(3), call(0), []byte{opDrop}, i32(100), load()), 0x636261},
		{"index out of range", code(i32(1), i32(100), i32(3), call(0)), hosterrors.KindInvalidArgument.Status()},
		{"buffer outside memory", code(i32(0), i32(70000), i32(3), call(0)), hosterrors.KindFault.Status()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := program{
				imports:     []hostImport{{"startup_arg_at", threeI32}},
				memoryPages: 1,
				body:        tt.body,
			}
			exit, err := interp.Invoke(context.Background(), testParams(prog.encode()), caps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, exit)
		})
	}
}

func TestInterpreter_RuntimeInfo(t *testing.T) {
	interp := newTestInterpreter(t)
	caps := hostfuncs.NewContext(1000)

	tests := []struct {
		name string
		imp  hostImport
		body []byte
		want int32
	}{
		{"name length", hostImport{"runtime_name", twoI32}, code(i32(100), i32(16), call(0)), 6},
		{"name lands in memory", hostImport{"runtime_name", twoI32},
			code(i32(100), i32(16), call(0), []byte{opDrop}, i32(100), load()), 0x76726543}, // "Cerv"
		{"name buffer too small", hostImport{"runtime_name", twoI32},
			code(i32(100), i32(5), call(0)), hosterrors.KindInvalidArgument.Status()},
		{"name buffer outside memory", hostImport{"runtime_name", twoI32},
			code(i32(70000), i32(16), call(0)), hosterrors.KindFault.Status()},
		{"spec major", hostImport{"runtime_spec_major", noArgsI32}, call(0), RuntimeSpecMajor},
		{"spec minor", hostImport{"runtime_spec_minor", noArgsI32}, call(0), RuntimeSpecMinor},
		{"env_get finds nothing", hostImport{"env_get", fourI32},
			code(i32(0), i32(4), i32(16), i32(16), call(0)), hosterrors.KindNotFound.Status()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := program{imports: []hostImport{tt.imp}, memoryPages: 1, body: tt.body}
			exit, err := interp.Invoke(context.Background(), testParams(prog.encode()), caps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, exit)
		})
	}
}

func TestInterpreter_LogWrite(t *testing.T) {
	interp := newTestInterpreter(t, WithMaxLogSize(8))
	prog := func(length int32) []byte {
		return program{
			imports:     []hostImport{{"log_write", threeI32}},
			memoryPages: 1,
			data:        []dataSegment{{offset: 16, bytes: []byte("hello")}},
			body:        code(i32(int32(ports.LogLevelInfo)), i32(16), i32(length), call(0)),
		}.encode()
	}

	t.Run("inherited stderr", func(t *testing.T) {
		stderr := &bufStream{}
		caps := hostfuncs.NewContext(1000, hostfuncs.WithStreams(nil, nil, stderr))

		exit, err := interp.Invoke(context.Background(), testParams(prog(5)), caps)
		require.NoError(t, err)
		assert.Zero(t, exit)
		assert.Equal(t, "[INFO] hello\n", stderr.String())
	})

	t.Run("unprivileged without stderr", func(t *testing.T) {
		caps := hostfuncs.NewContext(1000)
		exit, err := interp.Invoke(context.Background(), testParams(prog(5)), caps)
		require.NoError(t, err)
		assert.Equal(t, hosterrors.KindPermissionDenied.Status(), exit)
	})

	t.Run("text over the limit", func(t *testing.T) {
		stderr := &bufStream{}
		caps := hostfuncs.NewContext(1000, hostfuncs.WithStreams(nil, nil, stderr))
		exit, err := interp.Invoke(context.Background(), testParams(prog(9)), caps)
		require.NoError(t, err)
		assert.Equal(t, hosterrors.KindInvalidArgument.Status(), exit)
		assert.Zero(t, stderr.Len())
	})
}

func TestInterpreter_StreamWrite(t *testing.T) {
	interp := newTestInterpreter(t)
	stdout := &bufStream{}
	caps := hostfuncs.NewContext(1000, hostfuncs.WithStreams(nil, stdout, nil))

	prog := program{
		imports:     []hostImport{{"io_get_stdout", noArgsI32}, {"resource_write", ioWithOff}},
		memoryPages: 1,
		data:        []dataSegment{{offset: 0, bytes: []byte("out!")}},
		body:        code(call(0), i32(0), i32(4), i64(0), call(1)),
	}
	exit, err := interp.Invoke(context.Background(), testParams(prog.encode()), caps)
	require.NoError(t, err)
	assert.Equal(t, int32(4), exit)
	assert.Equal(t, "out!", stdout.String())
	assert.Zero(t, stdout.releases, "the interpreter never releases borrowed streams")

	// Detached executions have no streams.
	missing := program{imports: []hostImport{{"io_get_stdin", noArgsI32}}, body: call(0)}
	exit, err = interp.Invoke(context.Background(), testParams(missing.encode()), hostfuncs.NewContext(1000))
	require.NoError(t, err)
	assert.Equal(t, hosterrors.KindInvalidArgument.Status(), exit)
}

func TestInterpreter_OpenRejectsLongName(t *testing.T) {
	interp := newTestInterpreter(t)
	caps := hostfuncs.NewContext(entities.RootIdentity)

	prog := program{
		imports:     []hostImport{{"resource_open", fourI32}},
		memoryPages: 1,
		data:        []dataSegment{{offset: 0, bytes: []byte(strings.Repeat("a", 256))}, {offset: 512, bytes: []byte("w")}},
		body:        code(i32(0), i32(256), i32(512), i32(1), call(0)),
	}
	exit, err := interp.Invoke(context.Background(), testParams(prog.encode()), caps)
	require.NoError(t, err)
	assert.Equal(t, hosterrors.KindInvalidArgument.Status(), exit)
}

func TestInterpreter_CancellationUnwinds(t *testing.T) {
	interp := newTestInterpreter(t)
	tok := cancel.New(context.Background())
	tok.Terminate(nil)
	stdout := &bufStream{}
	caps := hostfuncs.NewContext(1000, hostfuncs.WithToken(tok), hostfuncs.WithStreams(nil, stdout, nil))

	// The guest would write after yielding; it never gets the chance.
	prog := program{
		imports:     []hostImport{{"env_yield", noArgsI32}, {"resource_write", ioWithOff}},
		memoryPages: 1,
		body:        code(call(0), []byte{opDrop}, i32(1), i32(0), i32(1), i64(0), call(1)),
	}
	_, err := interp.Invoke(context.Background(), testParams(prog.encode()), caps)
	require.Error(t, err)
	assert.ErrorIs(t, err, hosterrors.ErrCancelled)
	assert.ErrorIs(t, err, cancel.ErrFatalTermination)
	assert.Zero(t, stdout.Len())
}

func TestInterpreter_RejectsBadPrograms(t *testing.T) {
	interp := newTestInterpreter(t)
	caps := hostfuncs.NewContext(1000)

	tests := []struct {
		name string
		code []byte
		want error
	}{
		{"not wasm", []byte("#!/bin/sh\necho hi\n"), hosterrors.ErrInvalidArgument},
		{"missing entry point", program{entry: "main", body: i32(0)}.encode(), hosterrors.ErrInvalidArgument},
		{"wrong entry type", program{entryType: &funcType{params: []byte{valI32}, results: []byte{valI32}}, body: i32(0)}.encode(), hosterrors.ErrInvalidArgument},
		{"unknown import", program{imports: []hostImport{{"fork", noArgsI32}}, body: call(0)}.encode(), hosterrors.ErrInvalidArgument},
		{"trap", program{body: []byte{opUnreachable}}.encode(), hosterrors.ErrFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interp.Invoke(context.Background(), testParams(tt.code), caps)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInterpreter_MemoryLimit(t *testing.T) {
	interp := newTestInterpreter(t)
	params := testParams(program{memoryPages: 2, body: i32(0)}.encode())
	params.Limits.MaxMemory = wasmPageSize

	_, err := interp.Invoke(context.Background(), params, hostfuncs.NewContext(1000))
	assert.Error(t, err, "a module asking for more than the limit is refused")
}

func TestInterpreter_GuestMemoryInVirtualRegion(t *testing.T) {
	interp := newTestInterpreter(t)
	region := &testRegion{
		desc: entities.Region{Name: entities.RegionVirtual, Base: entities.DefaultVirtualBase, Length: wasmPageSize},
		mem:  make([]byte, wasmPageSize),
	}

	var seen byte
	caps := &probeCaps{Context: hostfuncs.NewContext(1000)}
	caps.onYield = func() error {
		seen = region.mem[8]
		return nil
	}

	prog := program{
		imports:     []hostImport{{"env_yield", noArgsI32}},
		memoryPages: 1,
		body:        code(i32(8), i32(42), store(), call(0), []byte{opDrop}, i32(8), load()),
	}
	params := testParams(prog.encode())
	params.Limits.MaxMemory = wasmPageSize
	params.Regions.Virtual = region

	exit, err := interp.Invoke(context.Background(), params, caps)
	require.NoError(t, err)
	assert.Equal(t, int32(42), exit)
	assert.Equal(t, byte(42), seen, "guest memory is the region")
	assert.Zero(t, region.mem[8], "region cleared after the invocation")
}

func TestRegionMemory(t *testing.T) {
	region := make([]byte, 4*wasmPageSize)
	alloc := newRegionAllocator(region)
	mem := alloc.Allocate(wasmPageSize, 2*wasmPageSize)
	defer alloc.reset()

	buf := mem.Reallocate(wasmPageSize)
	require.Len(t, buf, wasmPageSize)
	buf[10] = 1

	grown := mem.Reallocate(2 * wasmPageSize)
	require.Len(t, grown, 2*wasmPageSize)
	assert.Equal(t, &region[0], &grown[0], "growth never moves memory")
	assert.Equal(t, byte(1), grown[10])

	assert.Nil(t, mem.Reallocate(3*wasmPageSize), "beyond max")

	mem.Free()
	assert.Zero(t, region[10])
}
