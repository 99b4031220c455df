package hostfuncs

import (
	"os"
	"sync"

	"github.com/cervus-dev/cervus/domain/ports"
)

// FileStream lends a caller's file descriptor to an execution. Release closes
// the host's copy of the descriptor; the caller's own copy is unaffected.
type FileStream struct {
	f    *os.File
	err  error
	once sync.Once
}

var _ ports.Stream = (*FileStream)(nil)

// NewFileStream wraps f. The stream takes ownership of f.
func NewFileStream(f *os.File) *FileStream {
	return &FileStream{f: f}
}

func (s *FileStream) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

func (s *FileStream) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Release closes the descriptor. Calls after the first return the first result.
func (s *FileStream) Release() error {
	s.once.Do(func() {
		s.err = s.f.Close()
	})
	return s.err
}
