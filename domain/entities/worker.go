package entities

import "time"

// WorkerState is the lifecycle state of an execution worker.
type WorkerState int32

const (
	// WorkerCreated means the submission is validated and owned, not yet running.
	WorkerCreated WorkerState = iota
	// WorkerRunning means the interpreter has been invoked.
	WorkerRunning
	// WorkerExited means the interpreter returned and storage was released.
	WorkerExited
)

func (s WorkerState) String() string {
	switch s {
	case WorkerCreated:
		return "created"
	case WorkerRunning:
		return "running"
	case WorkerExited:
		return "exited"
	default:
		return "invalid"
	}
}

// Completion is the record emitted when a worker exits.
type Completion struct {
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Err      error        `json:"-"`
	WorkerID uint64       `json:"worker_id"`
	Identity Identity     `json:"identity"`
	Executor ExecutorKind `json:"executor"`
	ExitCode int32        `json:"exit_code"`
	Detached bool         `json:"detached"`
}

// Duration returns how long the interpreter ran.
func (c Completion) Duration() time.Duration {
	return c.Finished.Sub(c.Started)
}
