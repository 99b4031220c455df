package ports

import (
	"time"

	"github.com/cervus-dev/cervus/domain/entities"
)

// Handle names an open file or stream in a capability context.
type Handle uint32

// SemaphoreID names a counting semaphore in a capability context.
type SemaphoreID uint32

// LogLevel is the guest log severity.
type LogLevel int32

// Guest log levels.
const (
	LogLevelError   LogLevel = 1
	LogLevelWarning LogLevel = 3
	LogLevelInfo    LogLevel = 6
)

// Capabilities is the host-service surface an interpreter may use.
// Every operation returning an error reports it with a domain/errors Kind.
type Capabilities interface {
	Identity() entities.Identity

	Log(level LogLevel, text string) error

	// Stdin, Stdout and Stderr return a handle to the borrowed stream, or
	// false when the execution was not given one.
	Stdin() (Handle, bool)
	Stdout() (Handle, bool)
	Stderr() (Handle, bool)

	Open(name, flags string) (Handle, error)
	Read(h Handle, buf []byte, offset int64) (int, error)
	Write(h Handle, buf []byte, offset int64) (int, error)
	Close(h Handle) error

	Yield() error
	Sleep(d time.Duration) error
	Reschedule() error

	SemaphoreCreate() (SemaphoreID, error)
	SemaphoreDestroy(id SemaphoreID) error
	SemaphoreRelease(id SemaphoreID) error
	SemaphoreAcquire(id SemaphoreID) error

	ArgumentCount() int
	ReadArgument(index int, buf []byte) (int, error)
}
