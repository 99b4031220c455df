package entities

import "fmt"

// ErrorDetail provides structured error information.
// Used as the control channel error format.
// Error Types: "permission_denied", "invalid_argument", "fault", "resource_exhausted",
// "cancelled", "io", "config", "internal"
type ErrorDetail struct {
	// Wrapped contains a wrapped error for error chains.
	Wrapped *ErrorDetail `cbor:"4,keyasint,omitempty" json:"wrapped,omitempty"`

	// Message is a human-readable error description.
	Message string `cbor:"1,keyasint" json:"message"`

	// Type categorizes the error.
	Type string `cbor:"2,keyasint" json:"type"`

	// Code is a machine-readable error code.
	Code string `cbor:"3,keyasint,omitempty" json:"code,omitempty"`
}

// Error implements the error interface.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Type != "" && e.Type != "internal" {
		msg = fmt.Sprintf("%s: %s", e.Type, msg)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped.Error())
	}
	return msg
}

// NewErrorDetail creates a new ErrorDetail with the given type and message.
func NewErrorDetail(errorType, message string) *ErrorDetail {
	return &ErrorDetail{
		Type:    errorType,
		Message: message,
	}
}

// WithCode returns the ErrorDetail with the given code attached.
func (e *ErrorDetail) WithCode(code string) *ErrorDetail {
	e.Code = code
	return e
}
