// Package testutil provides fixtures and assertions shared by the host tests.
package testutil

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AnswerModule is the smallest guest program: __app_main returns 42.
var AnswerModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0e, 0x01, 0x0a, '_', '_', 'a', 'p', 'p', '_', 'm', 'a', 'i', 'n', 0x00, 0x00,
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b,
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Stream is an in-memory ports.Stream that counts releases.
type Stream struct {
	buf      bytes.Buffer
	mu       sync.Mutex
	releases int
}

// NewStream returns a stream preloaded with input.
func NewStream(input string) *Stream {
	s := &Stream{}
	s.buf.WriteString(input)
	return s
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Read(p)
}

func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

// Release implements ports.Stream.
func (s *Stream) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	return nil
}

// Releases returns how many times Release was called.
func (s *Stream) Releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// String returns what was written and not yet read.
func (s *Stream) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// AssertKind asserts that err belongs to kind in the host error taxonomy.
func AssertKind(t *testing.T, kind hosterrors.Kind, err error, msgAndArgs ...interface{}) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	assert.Equal(t, kind, hosterrors.KindOf(err), msgAndArgs...)
}

// AssertReleasedOnce asserts that every stream was released exactly once.
func AssertReleasedOnce(t *testing.T, streams ...*Stream) {
	t.Helper()
	for i, s := range streams {
		assert.Equal(t, 1, s.Releases(), "stream %d", i)
	}
}

// Eventually waits for cond the way the host tests poll background workers.
func Eventually(t *testing.T, cond func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond, msgAndArgs...)
}
