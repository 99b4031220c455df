package hostfuncs

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
)

// DefaultFileMode is the permission of files created by a write open.
const DefaultFileMode os.FileMode = 0o644

// Open opens name for the access flags requests. name is a path or a
// file:// URL. Names longer than entities.MaxNameLen, other URL schemes and
// flags naming neither 'r' nor 'w' are rejected before the filesystem is
// touched. Any other name, the empty one included, is left to the filesystem.
func (c *Context) Open(name, flags string) (ports.Handle, error) {
	const op = "open"

	if len(name) > entities.MaxNameLen {
		return 0, hosterrors.New(hosterrors.KindInvalidArgument, op,
			"name is %d bytes, limit is %d", len(name), entities.MaxNameLen)
	}
	name, err := resourcePath(name)
	if err != nil {
		return 0, err
	}
	mode := entities.ParseOpenFlags(flags)
	if mode == entities.OpenNone {
		return 0, hosterrors.New(hosterrors.KindInvalidArgument, op, "flags %q grant no access", flags)
	}
	if err := c.checkOpen(name, mode); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(name, osFlags(mode), DefaultFileMode)
	if err != nil {
		return 0, hosterrors.Wrap(hosterrors.KindIO, op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		_ = f.Close()
		return 0, hosterrors.New(hosterrors.KindInvalidArgument, op, "context released")
	}
	h := c.nextFile
	c.nextFile++
	c.files[h] = &openFile{file: f, mode: mode}
	return h, nil
}

// resourcePath returns the filesystem path a resource name refers to. A
// "scheme://" name must use the file scheme with a non-empty path; anything
// after '?' is ignored.
func resourcePath(name string) (string, error) {
	scheme, rest, ok := strings.Cut(name, "://")
	if !ok || strings.ContainsRune(scheme, '/') {
		return name, nil
	}
	if scheme != "file" {
		return "", hosterrors.New(hosterrors.KindInvalidArgument, "open", "unsupported scheme %q", scheme)
	}
	path, _, _ := strings.Cut(rest, "?")
	if path == "" {
		return "", hosterrors.New(hosterrors.KindInvalidArgument, "open", "empty path in %q", name)
	}
	return path, nil
}

func (c *Context) checkOpen(name string, mode entities.OpenMode) error {
	if c.Privileged() {
		return nil
	}
	if c.policy == nil || c.grants == nil {
		return hosterrors.New(hosterrors.KindPermissionDenied, "open", "identity %s has no filesystem grants", c.identity)
	}
	for _, req := range entities.FileSystemRequestsFor(name, mode) {
		if !c.policy.CheckFileSystem(req, c.grants) {
			return hosterrors.New(hosterrors.KindPermissionDenied, "open",
				"identity %s may not %s %s", c.identity, req.Operation, name)
		}
	}
	return nil
}

func osFlags(mode entities.OpenMode) int {
	switch mode {
	case entities.OpenReadWrite:
		return os.O_RDWR | os.O_CREATE
	case entities.OpenWrite:
		return os.O_WRONLY | os.O_CREATE
	default:
		return os.O_RDONLY
	}
}

// Read reads into buf from handle h at offset. Stream handles ignore the
// offset. End of input reads as zero bytes.
func (c *Context) Read(h ports.Handle, buf []byte, offset int64) (int, error) {
	const op = "read"

	if err := c.check(op); err != nil {
		return 0, err
	}

	var (
		n   int
		err error
	)
	if s := c.stream(h); s != nil {
		n, err = s.Read(buf)
	} else {
		f, ferr := c.file(op, h)
		if ferr != nil {
			return 0, ferr
		}
		if !f.mode.CanRead() {
			return 0, hosterrors.New(hosterrors.KindPermissionDenied, op, "handle %d not open for reading", h)
		}
		n, err = f.file.ReadAt(buf, offset)
	}
	if cerr := c.check(op); cerr != nil {
		return 0, cerr
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, hosterrors.Wrap(hosterrors.KindIO, op, err)
	}
	return n, nil
}

// Write writes buf to handle h at offset. Stream handles ignore the offset.
func (c *Context) Write(h ports.Handle, buf []byte, offset int64) (int, error) {
	const op = "write"

	if err := c.check(op); err != nil {
		return 0, err
	}

	var (
		n   int
		err error
	)
	if s := c.stream(h); s != nil {
		n, err = s.Write(buf)
	} else {
		f, ferr := c.file(op, h)
		if ferr != nil {
			return 0, ferr
		}
		if !f.mode.CanWrite() {
			return 0, hosterrors.New(hosterrors.KindPermissionDenied, op, "handle %d not open for writing", h)
		}
		n, err = f.file.WriteAt(buf, offset)
	}
	if cerr := c.check(op); cerr != nil {
		return 0, cerr
	}
	if err != nil {
		return n, hosterrors.Wrap(hosterrors.KindIO, op, err)
	}
	return n, nil
}

// Close closes an opened file. Closing a stream handle is a no-op; the
// stream stays borrowed until Release.
func (c *Context) Close(h ports.Handle) error {
	const op = "close"

	if h < firstFileHandle {
		if c.stream(h) == nil {
			return invalidHandle(op, h)
		}
		return nil
	}

	c.mu.Lock()
	f, ok := c.files[h]
	delete(c.files, h)
	c.mu.Unlock()

	if !ok {
		return invalidHandle(op, h)
	}
	if err := f.file.Close(); err != nil {
		return hosterrors.Wrap(hosterrors.KindIO, op, err)
	}
	return nil
}

func (c *Context) file(op string, h ports.Handle) (*openFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[h]
	if !ok {
		return nil, invalidHandle(op, h)
	}
	return f, nil
}
