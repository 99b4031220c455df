package host

import (
	"context"
	"testing"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	wazerointerp "github.com/cervus-dev/cervus/infrastructure/wazero"
	"github.com/cervus-dev/cervus/internal/testutil"
	"github.com/cervus-dev/cervus/vmm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWasmHost(t *testing.T, done *completions) *Host {
	t.Helper()
	const page = 4096

	cfg := testConfig()
	cfg.Limits.DefaultMemory = 1 << 20
	cfg.Limits.MaxMemory = 1 << 20
	cfg.Layout = entities.Layout{
		TLS:     entities.Region{Name: entities.RegionTLS, Base: 0x10000, Length: page},
		Runtime: entities.Region{Name: entities.RegionRuntime, Base: 0x100000, Length: 16 * page},
		Virtual: entities.Region{Name: entities.RegionVirtual, Base: 0x400000, Length: 1 << 20},
	}
	regions := vmm.New(cfg.Layout,
		vmm.WithMapper(vmm.NewHeapMapper(1<<20)),
		vmm.WithPageSize(page),
		vmm.WithLogger(testutil.Logger()))

	interp := wazerointerp.New(testutil.Logger())
	t.Cleanup(func() { _ = interp.Close(context.Background()) })

	return newTestHost(t, cfg, interp,
		WithRegionManager(regions),
		WithCompletionHandler(done.handler()))
}

func TestHost_RunWasmAsUser(t *testing.T) {
	done := newCompletions()
	h := newWasmHost(t, done)

	stdin, stdout, stderr := streams()
	code, err := h.Run(context.Background(),
		Caller{Identity: 1000, Stdin: stdin, Stdout: stdout, Stderr: stderr},
		request(testutil.AnswerModule))
	require.NoError(t, err)
	assert.Equal(t, int32(42), code)
	assert.Empty(t, h.Workers())
	testutil.AssertReleasedOnce(t, stdin, stdout, stderr)
	assert.Equal(t, int32(42), done.next(t).ExitCode)
}

func TestHost_LoadWasmAsRoot(t *testing.T) {
	done := newCompletions()
	h := newWasmHost(t, done)

	id, err := h.Load(context.Background(), Caller{Identity: entities.RootIdentity}, request(testutil.AnswerModule))
	require.NoError(t, err)

	c := done.next(t)
	assert.Equal(t, id, c.WorkerID)
	assert.Equal(t, entities.RootIdentity, c.Identity)
	assert.Equal(t, int32(42), c.ExitCode)
	assert.Equal(t, entities.ExecutorHexagonE, c.Executor)
	require.NoError(t, c.Err)
}

func TestHost_RunRejectsMalformedWasm(t *testing.T) {
	h := newWasmHost(t, newCompletions())

	_, err := h.Run(context.Background(), Caller{Identity: 1000}, request([]byte("not wasm")))
	testutil.AssertKind(t, hosterrors.KindInvalidArgument, err)
}
