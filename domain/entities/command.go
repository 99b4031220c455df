package entities

import "fmt"

// Command is a control channel command code.
type Command uint32

const (
	// CommandUnknown is any code the host does not recognize.
	CommandUnknown Command = 0

	// CommandLoad admits a detached submission (privileged only).
	CommandLoad Command = 0x1001

	// CommandRun executes a submission inline on the caller's thread.
	CommandRun Command = 0x1002
)

// ParseCommand maps a raw command code onto the closed Command set.
// Unrecognized codes map to CommandUnknown.
func ParseCommand(code uint32) Command {
	switch Command(code) {
	case CommandLoad, CommandRun:
		return Command(code)
	default:
		return CommandUnknown
	}
}

func (c Command) String() string {
	switch c {
	case CommandLoad:
		return "LOAD"
	case CommandRun:
		return "RUN"
	default:
		return fmt.Sprintf("UNKNOWN(%#x)", uint32(c))
	}
}

// ExecutorKind selects the interpreter a submission runs under.
type ExecutorKind int32

const (
	// ExecutorUnknown is any executor the host does not recognize.
	ExecutorUnknown ExecutorKind = 0

	// ExecutorHexagonE is the WebAssembly interpreter.
	ExecutorHexagonE ExecutorKind = 0x01
)

// ParseExecutorKind maps a raw executor code onto the closed ExecutorKind set.
func ParseExecutorKind(code int32) ExecutorKind {
	if ExecutorKind(code) == ExecutorHexagonE {
		return ExecutorHexagonE
	}
	return ExecutorUnknown
}

func (k ExecutorKind) String() string {
	switch k {
	case ExecutorHexagonE:
		return "hexagon-e"
	default:
		return "unknown"
	}
}

// Request is the payload shared by LOAD and RUN.
// The code length is len(Code).
type Request struct {
	Executor int32    `cbor:"1,keyasint" json:"executor"`
	Code     []byte   `cbor:"2,keyasint" json:"code"`
	Args     [][]byte `cbor:"3,keyasint,omitempty" json:"args,omitempty"`
}
