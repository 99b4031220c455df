package hostfuncs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
	"github.com/cervus-dev/cervus/internal/cancel"
)

// Fixed handles of the borrowed standard streams. Opened files start after them.
const (
	HandleStdin  ports.Handle = 0
	HandleStdout ports.Handle = 1
	HandleStderr ports.Handle = 2

	firstFileHandle ports.Handle = 3
)

// Context is the capability context of one execution.
// It implements ports.Capabilities.
type Context struct {
	token     *cancel.Token
	sink      ports.LogSink
	policy    ports.Policy
	grants    *entities.GrantSet
	logger    *slog.Logger
	files     map[ports.Handle]*openFile
	sems      map[ports.SemaphoreID]*guestSemaphore
	streams   [3]ports.Stream
	args      [][]byte
	mu        sync.Mutex
	release   sync.Once
	nextFile  ports.Handle
	nextSem   ports.SemaphoreID
	identity  entities.Identity
	privilege entities.Identity
	released  bool
}

var _ ports.Capabilities = (*Context)(nil)

type openFile struct {
	file *os.File
	mode entities.OpenMode
}

// Option configures a Context.
type Option func(*Context)

// WithStreams lends the caller's standard streams to the execution. Nil
// streams stay absent. The context releases each non-nil stream exactly once.
func WithStreams(stdin, stdout, stderr ports.Stream) Option {
	return func(c *Context) {
		c.streams = [3]ports.Stream{stdin, stdout, stderr}
	}
}

// WithArgs sets the startup arguments. The slice is used as is.
func WithArgs(args [][]byte) Option {
	return func(c *Context) {
		c.args = args
	}
}

// WithToken sets the cancellation token polled at every checkpoint.
func WithToken(t *cancel.Token) Option {
	return func(c *Context) {
		c.token = t
	}
}

// WithLogSink sets the global log privileged identities may write to.
func WithLogSink(s ports.LogSink) Option {
	return func(c *Context) {
		c.sink = s
	}
}

// WithFileSystemPolicy checks opens by non-privileged identities against grants.
// Without it, only privileged identities may open files.
func WithFileSystemPolicy(p ports.Policy, grants *entities.GrantSet) Option {
	return func(c *Context) {
		c.policy = p
		c.grants = grants
	}
}

// WithPrivilegedIdentity sets the identity treated as privileged.
func WithPrivilegedIdentity(id entities.Identity) Option {
	return func(c *Context) {
		c.privilege = id
	}
}

// WithLogger sets the logger for host-side diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) {
		c.logger = l
	}
}

// NewContext creates the capability context for one execution by identity.
func NewContext(identity entities.Identity, opts ...Option) *Context {
	c := &Context{
		identity:  identity,
		privilege: entities.RootIdentity,
		logger:    slog.Default(),
		files:     make(map[ports.Handle]*openFile),
		sems:      make(map[ports.SemaphoreID]*guestSemaphore),
		nextFile:  firstFileHandle,
		nextSem:   1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.token == nil {
		c.token = cancel.New(context.Background())
	}
	return c
}

// Identity returns the effective identity every permission decision uses.
func (c *Context) Identity() entities.Identity {
	return c.identity
}

// Privileged reports whether the context's identity is the privileged one.
func (c *Context) Privileged() bool {
	return c.identity == c.privilege
}

// Token returns the cancellation token the context polls.
func (c *Context) Token() *cancel.Token {
	return c.token
}

// Stdin returns the handle of the borrowed stdin, if any.
func (c *Context) Stdin() (ports.Handle, bool) {
	return HandleStdin, c.stream(HandleStdin) != nil
}

// Stdout returns the handle of the borrowed stdout, if any.
func (c *Context) Stdout() (ports.Handle, bool) {
	return HandleStdout, c.stream(HandleStdout) != nil
}

// Stderr returns the handle of the borrowed stderr, if any.
func (c *Context) Stderr() (ports.Handle, bool) {
	return HandleStderr, c.stream(HandleStderr) != nil
}

func (c *Context) stream(h ports.Handle) ports.Stream {
	if h >= firstFileHandle {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	return c.streams[h]
}

// Release drops the borrowed streams and closes files the guest left open.
// Only the first call has effect.
func (c *Context) Release() error {
	var errs []error
	c.release.Do(func() {
		c.mu.Lock()
		c.released = true
		streams := c.streams
		c.streams = [3]ports.Stream{}
		files := c.files
		c.files = make(map[ports.Handle]*openFile)
		c.sems = make(map[ports.SemaphoreID]*guestSemaphore)
		c.mu.Unlock()

		for _, s := range streams {
			if s == nil {
				continue
			}
			if err := s.Release(); err != nil {
				errs = append(errs, err)
			}
		}
		for h, f := range files {
			if err := f.file.Close(); err != nil {
				c.logger.Warn("hostfuncs: close leaked file", "handle", h, "name", f.file.Name(), "error", err)
			}
		}
	})
	return errors.Join(errs...)
}

func (c *Context) check(op string) error {
	return c.token.Check(op)
}

func invalidHandle(op string, h ports.Handle) error {
	return hosterrors.New(hosterrors.KindInvalidArgument, op, "unknown handle %d", h)
}
