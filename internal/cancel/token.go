// Package cancel implements the cooperative cancellation token polled at the
// capability context's checkpoints. Nothing here preempts guest code: a
// token only changes what the next checkpoint observes.
package cancel

import (
	"context"
	"errors"
	"sync/atomic"

	hosterrors "github.com/cervus-dev/cervus/domain/errors"
)

// ErrFatalTermination is the default cause of Terminate.
var ErrFatalTermination = errors.New("fatal termination requested")

// Token tracks whether fatal termination is pending for one execution.
// Only fatal termination cancels; interrupts are counted and otherwise ignored.
type Token struct {
	ctx        context.Context
	cancel     context.CancelCauseFunc
	interrupts atomic.Int64
}

// New returns a token that also reports fatal termination once parent is done.
func New(parent context.Context) *Token {
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Terminate marks fatal termination pending. A nil cause means ErrFatalTermination.
func (t *Token) Terminate(cause error) {
	if cause == nil {
		cause = ErrFatalTermination
	}
	t.cancel(cause)
}

// Interrupt records a non-fatal interruption. Checkpoints do not observe it.
func (t *Token) Interrupt() {
	t.interrupts.Add(1)
}

// Interrupts returns how many non-fatal interruptions were recorded.
func (t *Token) Interrupts() int64 {
	return t.interrupts.Load()
}

// Terminated reports whether fatal termination is pending.
func (t *Token) Terminated() bool {
	return t.ctx.Err() != nil
}

// Cause returns why the token terminated, or nil.
func (t *Token) Cause() error {
	return context.Cause(t.ctx)
}

// Context returns a context that is done once fatal termination is pending.
// Suspension points wait on it so termination wakes them.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Check is the checkpoint poll: it returns a Cancelled error for op when
// fatal termination is pending.
func (t *Token) Check(op string) error {
	if t.Terminated() {
		return hosterrors.Wrap(hosterrors.KindCancelled, op, t.Cause())
	}
	return nil
}

// Release frees the token's resources. The token reads as terminated afterwards.
func (t *Token) Release() {
	t.cancel(context.Canceled)
}
