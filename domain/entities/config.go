package entities

import (
	"time"
)

// Config is the host configuration.
type Config struct {
	// Grants maps an identity (decimal uid, or "*" for every identity) to the
	// filesystem grants non-privileged guests may open files under.
	Grants map[string]*GrantSet `json:"grants,omitempty" yaml:"grants,omitempty"`

	// GrantsFile is an optional YAML file of further grants, merged over Grants.
	GrantsFile string `json:"grants_file,omitempty" yaml:"grants_file,omitempty"`

	// Socket is the control channel socket path.
	Socket string `json:"socket" yaml:"socket" validate:"required"`

	// LogLevel is the logging verbosity level ("debug", "info", "warn", "error").
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`

	// LogFormat selects the slog handler ("text" or "json").
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty" validate:"omitempty,oneof=text json"`

	Layout Layout `json:"layout" yaml:"layout"`
	Limits Limits `json:"limits" yaml:"limits"`

	// SubmissionBudget caps the bytes held by live submissions.
	SubmissionBudget int64 `json:"submission_budget" yaml:"submission_budget" validate:"gt=0"`

	// MaxRequestSize caps a single control frame.
	MaxRequestSize uint32 `json:"max_request_size" yaml:"max_request_size" validate:"gt=0"`

	// AllocRetryDelay is the pause between budget reservation attempts.
	AllocRetryDelay time.Duration `json:"alloc_retry_delay" yaml:"alloc_retry_delay" validate:"gte=0"`

	// AllocRetries bounds budget reservation attempts before ResourceExhausted.
	AllocRetries int `json:"alloc_retries" yaml:"alloc_retries" validate:"gte=0"`

	// MaxWorkers bounds concurrently live detached workers.
	MaxWorkers int `json:"max_workers" yaml:"max_workers" validate:"gt=0"`

	// PrivilegedIdentity may LOAD and write to the global log.
	PrivilegedIdentity Identity `json:"privileged_identity" yaml:"privileged_identity"`

	// SocketMode is the permission bits applied to the control socket.
	SocketMode uint32 `json:"socket_mode" yaml:"socket_mode"`
}

// DefaultConfig returns the default host configuration.
func DefaultConfig() Config {
	return Config{
		Socket:             "/run/cervus/cvctl.sock",
		SocketMode:         0o666,
		LogLevel:           "info",
		LogFormat:          "text",
		Layout:             DefaultLayout(),
		Limits:             DefaultLimits(),
		SubmissionBudget:   256 << 20,
		MaxRequestSize:     64 << 20,
		AllocRetries:       8,
		AllocRetryDelay:    10 * time.Millisecond,
		MaxWorkers:         64,
		PrivilegedIdentity: RootIdentity,
	}
}

// GrantsFor returns the merged grants for id, or nil when none apply.
func (c Config) GrantsFor(id Identity) *GrantSet {
	merged := &GrantSet{}
	merged.Merge(c.Grants["*"])
	merged.Merge(c.Grants[id.String()])
	if merged.IsEmpty() {
		return nil
	}
	return merged
}
