//go:build linux

package control

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/host"
	"github.com/cervus-dev/cervus/internal/testutil"
	"github.com/cervus-dev/cervus/wireformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchFunc func(ctx context.Context, cmd entities.Command, caller host.Caller, req entities.Request) (host.Result, error)

func (f dispatchFunc) Dispatch(ctx context.Context, cmd entities.Command, caller host.Caller, req entities.Request) (host.Result, error) {
	return f(ctx, cmd, caller, req)
}

func startServer(t *testing.T, d Dispatcher, opts ...ServerOption) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")
	opts = append([]ServerOption{WithServerLogger(testutil.Logger())}, opts...)
	s := NewServer(path, d, opts...)
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-served)
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "socket removed on close")
	})
	return path
}

func answer(req entities.Request) entities.Request {
	req.Executor = int32(entities.ExecutorHexagonE)
	if req.Code == nil {
		req.Code = testutil.AnswerModule
	}
	return req
}

func TestServer_RunLendsStreamsAndIdentity(t *testing.T) {
	seen := make(chan host.Caller, 1)
	path := startServer(t, dispatchFunc(func(_ context.Context, cmd entities.Command, caller host.Caller, req entities.Request) (host.Result, error) {
		defer func() {
			for _, s := range []interface{ Release() error }{caller.Stdin, caller.Stdout, caller.Stderr} {
				if s != nil {
					_ = s.Release()
				}
			}
		}()
		seen <- caller
		assert.Equal(t, entities.CommandRun, cmd)
		_, err := caller.Stdout.Write([]byte("hello " + string(req.Args[0])))
		assert.NoError(t, err)
		return host.Result{ExitCode: 42}, nil
	}))

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	code, err := NewClient(path).Run(context.Background(),
		answer(entities.Request{Args: [][]byte{[]byte("world")}}),
		Stdio{Stdout: w})
	require.NoError(t, err)
	assert.Equal(t, int32(42), code)
	require.NoError(t, w.Close())

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))

	caller := <-seen
	assert.Equal(t, entities.Identity(os.Geteuid()), caller.Identity) //nolint:gosec // G115: uid
	assert.Nil(t, caller.Stdin)
	assert.Nil(t, caller.Stderr)
}

func TestServer_LoadReturnsWorkerID(t *testing.T) {
	path := startServer(t, dispatchFunc(func(context.Context, entities.Command, host.Caller, entities.Request) (host.Result, error) {
		return host.Result{WorkerID: 17}, nil
	}))

	id, err := NewClient(path).Load(context.Background(), answer(entities.Request{}))
	require.NoError(t, err)
	assert.Equal(t, uint64(17), id)
}

func TestServer_ErrorsKeepTheirKind(t *testing.T) {
	path := startServer(t, dispatchFunc(func(context.Context, entities.Command, host.Caller, entities.Request) (host.Result, error) {
		return host.Result{}, hosterrors.New(hosterrors.KindPermissionDenied, "load", "identity 1000 may not load")
	}))

	_, err := NewClient(path).Load(context.Background(), answer(entities.Request{}))
	assert.ErrorIs(t, err, hosterrors.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "may not load")
}

func TestServer_UnknownCommandReachesDispatcher(t *testing.T) {
	path := startServer(t, dispatchFunc(func(_ context.Context, cmd entities.Command, _ host.Caller, _ entities.Request) (host.Result, error) {
		assert.Equal(t, entities.CommandUnknown, cmd)
		return host.Result{}, hosterrors.New(hosterrors.KindInvalidArgument, "dispatch", "unknown command %s", cmd)
	}))

	resp, err := NewClient(path).Send(context.Background(), 0x2000, answer(entities.Request{}))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_argument", resp.Error.Type)
	assert.Equal(t, int32(-1), resp.ExitCode)
}

func rawExchange(t *testing.T, path string, payload []byte) wireformat.ResponseWire {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(payload)
	require.NoError(t, err)

	var resp wireformat.ResponseWire
	require.NoError(t, wireformat.ReadFrame(conn, wireformat.DefaultMaxFrameSize, &resp))
	return resp
}

func TestServer_MalformedFramesFault(t *testing.T) {
	never := dispatchFunc(func(context.Context, entities.Command, host.Caller, entities.Request) (host.Result, error) {
		t.Error("dispatcher reached")
		return host.Result{}, nil
	})
	path := startServer(t, never, WithMaxFrameSize(64))

	big, err := wireformat.EncodeFrame(wireformat.RequestWire{
		Command: uint32(entities.CommandRun),
		Request: answer(entities.Request{Code: []byte(strings.Repeat("x", 128))}),
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"garbage body", []byte{0, 0, 0, 2, 0xff, 0xff}},
		{"empty body", []byte{0, 0, 0, 0}},
		{"over limit", big},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rawExchange(t, path, tt.payload)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "fault", resp.Error.Type)
		})
	}
}

func TestServer_StreamCountMismatch(t *testing.T) {
	never := dispatchFunc(func(context.Context, entities.Command, host.Caller, entities.Request) (host.Result, error) {
		t.Error("dispatcher reached")
		return host.Result{}, nil
	})
	path := startServer(t, never)

	frame, err := wireformat.EncodeFrame(wireformat.RequestWire{
		Command: uint32(entities.CommandRun),
		Request: answer(entities.Request{}),
		Streams: []int32{wireformat.StreamStdout},
	})
	require.NoError(t, err)

	resp := rawExchange(t, path, frame)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_argument", resp.Error.Type)
}

func TestServer_HangupCancelsExecution(t *testing.T) {
	entered := make(chan struct{})
	cause := make(chan error, 1)
	path := startServer(t, dispatchFunc(func(ctx context.Context, _ entities.Command, _ host.Caller, _ entities.Request) (host.Result, error) {
		close(entered)
		<-ctx.Done()
		cause <- context.Cause(ctx)
		return host.Result{ExitCode: -1}, hosterrors.Wrap(hosterrors.KindCancelled, "run", context.Cause(ctx))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()
	_, err := NewClient(path).Run(ctx, answer(entities.Request{}), Stdio{})
	assert.ErrorIs(t, err, hosterrors.ErrCancelled)

	select {
	case got := <-cause:
		assert.ErrorIs(t, got, ErrClientGone)
	case <-time.After(5 * time.Second):
		t.Fatal("execution was not cancelled")
	}
}

func TestServer_ListenReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	l.SetUnlinkOnClose(false)
	require.NoError(t, l.Close())

	s := NewServer(path, nil, WithServerLogger(testutil.Logger()), WithSocketMode(0o600))
	require.NoError(t, s.Listen())
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	require.NoError(t, s.Close())
}

func TestServer_ListenRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	s := NewServer(path, nil, WithServerLogger(testutil.Logger()))
	assert.Error(t, s.Listen())
}
