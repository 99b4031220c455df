// Package errors provides the host's error taxonomy.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/cervus-dev/cervus/domain/entities"
)

// Kind classifies a host error.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindPermissionDenied
	KindFault
	KindResourceExhausted
	KindCancelled
	KindIO
	KindNotFound
)

// Sentinels for errors.Is. A *HostError matches the sentinel of its Kind.
var (
	ErrInternal          = stdErrors.New("internal error")
	ErrInvalidArgument   = stdErrors.New("invalid argument")
	ErrPermissionDenied  = stdErrors.New("permission denied")
	ErrFault             = stdErrors.New("bad address")
	ErrResourceExhausted = stdErrors.New("resource exhausted")
	ErrCancelled         = stdErrors.New("execution cancelled")
	ErrIO                = stdErrors.New("i/o error")
	ErrNotFound          = stdErrors.New("not found")
)

var kindSentinels = map[Kind]error{
	KindInternal:          ErrInternal,
	KindInvalidArgument:   ErrInvalidArgument,
	KindPermissionDenied:  ErrPermissionDenied,
	KindFault:             ErrFault,
	KindResourceExhausted: ErrResourceExhausted,
	KindCancelled:         ErrCancelled,
	KindIO:                ErrIO,
	KindNotFound:          ErrNotFound,
}

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindPermissionDenied:
		return "permission_denied"
	case KindFault:
		return "fault"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindCancelled:
		return "cancelled"
	case KindIO:
		return "io"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Status returns the negative status code reported to guest code.
func (k Kind) Status() int32 {
	return -int32(k) - 1
}

// HostError is an error raised by a host operation.
type HostError struct {
	Err  error
	Op   string
	Kind Kind
}

func (e *HostError) Error() string {
	msg := kindSentinels[e.Kind].Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *HostError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *HostError) Is(target error) bool {
	return target == kindSentinels[e.Kind]
}

// ToErrorDetail implements DetailedError.
func (e *HostError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: e.Kind.String(), Code: e.Op}
}

// New creates a HostError with a formatted cause.
func New(kind Kind, op, format string, args ...any) *HostError {
	return &HostError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap creates a HostError around err. A nil err yields a bare kind error.
func Wrap(kind Kind, op string, err error) *HostError {
	return &HostError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err. Errors outside the taxonomy are KindInternal.
func KindOf(err error) Kind {
	var he *HostError
	if stdErrors.As(err, &he) {
		return he.Kind
	}
	for kind, sentinel := range kindSentinels {
		if stdErrors.Is(err, sentinel) {
			return kind
		}
	}
	var me *MemoryError
	if stdErrors.As(err, &me) {
		return KindResourceExhausted
	}
	return KindInternal
}

// StatusOf returns the guest status code for err, or 0 for nil.
func StatusOf(err error) int32 {
	if err == nil {
		return 0
	}
	return KindOf(err).Status()
}

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    KindOf(err).String(),
	}
}

// FromErrorDetail rebuilds a HostError from a wire ErrorDetail so callers
// on the far side of the control channel can still use errors.Is.
func FromErrorDetail(d *entities.ErrorDetail) error {
	if d == nil {
		return nil
	}
	for kind := range kindSentinels {
		if kind.String() == d.Type {
			return &HostError{Kind: kind, Op: d.Code, Err: stdErrors.New(d.Message)}
		}
	}
	return d
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// MemoryError represents a submission storage reservation failure.
type MemoryError struct {
	Requested int64 // Requested reservation size
	Current   int64 // Current total reserved
	Limit     int64 // Maximum allowed
	Attempts  int   // Reservation attempts made
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory allocation failed after %d attempts: requested %d bytes, current %d bytes, limit %d bytes",
		e.Attempts, e.Requested, e.Current, e.Limit)
}

// Is makes a MemoryError match ErrResourceExhausted.
func (e *MemoryError) Is(target error) bool {
	return target == ErrResourceExhausted
}

// ToErrorDetail implements DetailedError.
func (e *MemoryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: KindResourceExhausted.String(), Code: "memory_limit"}
}
