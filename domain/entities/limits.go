package entities

// Limits are the sandbox budgets the interpreter is invoked under.
type Limits struct {
	// DefaultMemory is the initial linear memory size in bytes.
	DefaultMemory uint64 `json:"default_memory" yaml:"default_memory" validate:"gt=0,ltefield=MaxMemory"`

	// MaxMemory is the ceiling linear memory may grow to, in bytes.
	MaxMemory uint64 `json:"max_memory" yaml:"max_memory" validate:"gt=0"`

	// MaxSlots is the maximum number of table slots.
	MaxSlots uint64 `json:"max_slots" yaml:"max_slots" validate:"gt=0"`

	// StackSize is the operand stack size, in slots.
	StackSize uint64 `json:"stack_size" yaml:"stack_size" validate:"gt=0"`

	// CallStackSize is the maximum call depth.
	CallStackSize uint64 `json:"call_stack_size" yaml:"call_stack_size" validate:"gt=0"`
}

// DefaultLimits returns the sandbox budgets the host has always used.
func DefaultLimits() Limits {
	return Limits{
		DefaultMemory: 1 << 20,
		MaxMemory:     16 << 20,
		MaxSlots:      16384,
		StackSize:     1024,
		CallStackSize: 1024,
	}
}
