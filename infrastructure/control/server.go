package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
	"github.com/cervus-dev/cervus/host"
	"github.com/cervus-dev/cervus/hostfuncs"
	"github.com/cervus-dev/cervus/wireformat"
	"golang.org/x/sys/unix"
)

// ErrClientGone is the termination cause when a client hangs up mid-request.
var ErrClientGone = errors.New("control: client closed the connection")

// maxPassedFDs is the most descriptors accepted with one request.
const maxPassedFDs = 3

// Dispatcher executes a decoded command. *host.Host implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd entities.Command, caller host.Caller, req entities.Request) (host.Result, error)
}

// Server accepts control connections on a Unix socket.
type Server struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	listener   *net.UnixListener
	path       string
	wg         sync.WaitGroup
	mu         sync.Mutex
	mode       fs.FileMode
	maxFrame   uint32
	closed     bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSocketMode sets the permission bits of the socket file.
func WithSocketMode(mode fs.FileMode) ServerOption {
	return func(s *Server) {
		s.mode = mode
	}
}

// WithMaxFrameSize bounds request frames.
func WithMaxFrameSize(n uint32) ServerOption {
	return func(s *Server) {
		s.maxFrame = n
	}
}

// WithServerLogger sets the server logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a server for the socket at path.
func NewServer(path string, d Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		path:       path,
		dispatcher: d,
		logger:     slog.Default(),
		mode:       0o666,
		maxFrame:   wireformat.DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen creates the socket, replacing a stale one left by a previous run.
func (s *Server) Listen() error {
	if fi, err := os.Lstat(s.path); err == nil {
		if fi.Mode()&fs.ModeSocket == 0 {
			return fmt.Errorf("control: %s exists and is not a socket", s.path)
		}
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("control: remove stale socket: %w", err)
		}
	}

	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: s.path, Net: "unix"})
	if err != nil {
		return fmt.Errorf("control: listen: %w", err)
	}
	if err := os.Chmod(s.path, s.mode); err != nil {
		_ = l.Close()
		return fmt.Errorf("control: chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	s.logger.Info("control: listening", "socket", s.path, "mode", s.mode)
	return nil
}

// Serve accepts connections until ctx is done or Close is called. Each
// connection is handled on its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("control: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := l.AcceptUnix()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("control: accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// Close stops accepting and removes the socket. In-flight connections are
// left to finish; Serve waits for them.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.listener == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	// UnixListener.Close unlinks the socket file.
	return s.listener.Close()
}

func (s *Server) handle(ctx context.Context, conn *net.UnixConn) {
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug("control: close connection", "error", err)
		}
	}()

	id, err := peerIdentity(conn)
	if err != nil {
		s.logger.Warn("control: peer credentials", "error", err)
		return
	}

	frame, files, err := s.readRequest(conn)
	if err != nil {
		closeFiles(files)
		s.logger.Warn("control: bad request", "identity", id, "error", err)
		s.respond(conn, wireformat.ResponseWire{
			ExitCode: -1,
			Error:    hosterrors.ToErrorDetail(hosterrors.Wrap(hosterrors.KindFault, "control", err)),
		})
		return
	}

	caller, err := bindStreams(id, frame.Streams, files)
	if err != nil {
		closeFiles(files)
		s.respond(conn, wireformat.ResponseWire{ExitCode: -1, Error: hosterrors.ToErrorDetail(err)})
		return
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go watchHangup(conn, cancel)

	cmd := entities.ParseCommand(frame.Command)
	s.logger.Debug("control: dispatch", "command", cmd, "identity", id, "code_size", len(frame.Request.Code))
	res, err := s.dispatcher.Dispatch(ctx, cmd, caller, frame.Request)

	resp := wireformat.ResponseWire{ExitCode: res.ExitCode, WorkerID: res.WorkerID}
	if err != nil {
		if res.ExitCode == 0 {
			resp.ExitCode = -1
		}
		resp.Error = hosterrors.ToErrorDetail(err)
		s.logger.Debug("control: command failed", "command", cmd, "identity", id, "error", err)
	}
	s.respond(conn, resp)
}

func (s *Server) respond(conn *net.UnixConn, resp wireformat.ResponseWire) {
	if err := wireformat.WriteFrame(conn, resp); err != nil {
		s.logger.Debug("control: write response", "error", err)
	}
}

// readRequest reads the request frame and any descriptors sent with its
// first bytes.
func (s *Server) readRequest(conn *net.UnixConn) (*wireformat.RequestWire, []*os.File, error) {
	var header [wireformat.HeaderSize]byte
	oob := make([]byte, unix.CmsgSpace(maxPassedFDs*4))

	n, oobn, _, _, err := conn.ReadMsgUnix(header[:], oob)
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	files, err := receivedFiles(oob[:oobn])
	if err != nil {
		return nil, files, err
	}
	if n < len(header) {
		if _, err := io.ReadFull(conn, header[n:]); err != nil {
			return nil, files, fmt.Errorf("read header: %w", err)
		}
	}

	size, err := wireformat.BodySize(header[:], s.maxFrame)
	if err != nil {
		return nil, files, err
	}
	var frame wireformat.RequestWire
	if err := wireformat.ReadBody(conn, size, &frame); err != nil {
		return nil, files, err
	}
	return &frame, files, nil
}

func receivedFiles(oob []byte) ([]*os.File, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	var files []*os.File
	for i := range msgs {
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		for _, fd := range fds {
			files = append(files, os.NewFile(uintptr(fd), fmt.Sprintf("peer-fd-%d", fd)))
		}
	}
	if len(files) > maxPassedFDs {
		return files, fmt.Errorf("%d descriptors passed, limit %d", len(files), maxPassedFDs)
	}
	return files, nil
}

// bindStreams pairs passed descriptors with the streams the frame names.
// The caller takes ownership of the files on success.
func bindStreams(id entities.Identity, names []int32, files []*os.File) (host.Caller, error) {
	caller := host.Caller{Identity: id}
	if len(names) != len(files) {
		return caller, hosterrors.New(hosterrors.KindInvalidArgument, "control",
			"%d streams named, %d descriptors passed", len(names), len(files))
	}

	var streams [3]ports.Stream
	for i, name := range names {
		if name < wireformat.StreamStdin || name > wireformat.StreamStderr || streams[name] != nil {
			return caller, hosterrors.New(hosterrors.KindInvalidArgument, "control", "bad stream index %d", name)
		}
		streams[name] = hostfuncs.NewFileStream(files[i])
	}
	caller.Stdin, caller.Stdout, caller.Stderr = streams[0], streams[1], streams[2]
	return caller, nil
}

// watchHangup cancels the request once the client closes its end. Clients
// send nothing after the request frame, so any read result ends the watch.
func watchHangup(conn *net.UnixConn, cancel context.CancelCauseFunc) {
	var b [1]byte
	_, _ = conn.Read(b[:])
	cancel(ErrClientGone)
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
