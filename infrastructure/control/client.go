package control

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/wireformat"
	"golang.org/x/sys/unix"
)

// Client sends commands to a host daemon.
type Client struct {
	path        string
	dialTimeout time.Duration
	maxFrame    uint32
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDialTimeout bounds connecting to the socket.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// NewClient creates a client for the socket at path.
func NewClient(path string, opts ...ClientOption) *Client {
	c := &Client{
		path:        path,
		dialTimeout: 5 * time.Second,
		maxFrame:    wireformat.DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stdio is the set of standard streams a RUN lends to the guest. Nil
// entries are not passed.
type Stdio struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// ProcessStdio returns this process's standard streams.
func ProcessStdio() Stdio {
	return Stdio{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Load submits req as a detached worker and returns its id.
func (c *Client) Load(ctx context.Context, req entities.Request) (uint64, error) {
	resp, err := c.do(ctx, entities.CommandLoad, req, Stdio{})
	if err != nil {
		return 0, err
	}
	return resp.WorkerID, nil
}

// Run executes req on the host with stdio lent to the guest and returns the
// exit code. Cancelling ctx hangs up, which terminates the execution.
func (c *Client) Run(ctx context.Context, req entities.Request, stdio Stdio) (int32, error) {
	resp, err := c.do(ctx, entities.CommandRun, req, stdio)
	if err != nil {
		return -1, err
	}
	return resp.ExitCode, nil
}

// Send issues a raw command code. It exists for commands this client does
// not name.
func (c *Client) Send(ctx context.Context, cmd uint32, req entities.Request) (*wireformat.ResponseWire, error) {
	return c.send(ctx, cmd, req, Stdio{})
}

func (c *Client) do(ctx context.Context, cmd entities.Command, req entities.Request, stdio Stdio) (*wireformat.ResponseWire, error) {
	resp, err := c.send(ctx, uint32(cmd), req, stdio)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return resp, hosterrors.FromErrorDetail(resp.Error)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, cmd uint32, req entities.Request, stdio Stdio) (*wireformat.ResponseWire, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	nc, err := dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", c.path, err)
	}
	conn := nc.(*net.UnixConn)
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	frame := wireformat.RequestWire{Command: cmd, Request: req}
	var fds []int
	for i, f := range []*os.File{stdio.Stdin, stdio.Stdout, stdio.Stderr} {
		if f == nil {
			continue
		}
		frame.Streams = append(frame.Streams, int32(i)) //nolint:gosec // G115: 0..2
		fds = append(fds, int(f.Fd()))
	}

	data, err := wireformat.EncodeFrame(frame)
	if err != nil {
		return nil, err
	}
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	if _, _, err := conn.WriteMsgUnix(data, oob, nil); err != nil {
		return nil, c.interrupted(ctx, fmt.Errorf("control: send: %w", err))
	}

	var resp wireformat.ResponseWire
	if err := wireformat.ReadFrame(conn, c.maxFrame, &resp); err != nil {
		return nil, c.interrupted(ctx, fmt.Errorf("control: receive: %w", err))
	}
	return &resp, nil
}

// interrupted prefers the context's cause when ctx closed the connection.
func (c *Client) interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return hosterrors.Wrap(hosterrors.KindCancelled, "control", context.Cause(ctx))
	}
	return err
}
