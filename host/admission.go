package host

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"golang.org/x/sync/semaphore"
)

// admit validates req and copies it into host-owned storage charged to the
// submission budget. Nothing is charged when validation fails.
func (h *Host) admit(ctx context.Context, id entities.Identity, req entities.Request) (*entities.Submission, error) {
	const op = "admit"

	kind := entities.ParseExecutorKind(req.Executor)
	if kind == entities.ExecutorUnknown {
		return nil, hosterrors.New(hosterrors.KindInvalidArgument, op, "unknown executor %d", req.Executor)
	}
	if len(req.Code) == 0 {
		return nil, hosterrors.New(hosterrors.KindInvalidArgument, op, "empty code")
	}
	if len(req.Args) > entities.MaxArgs {
		return nil, hosterrors.New(hosterrors.KindInvalidArgument, op,
			"%d arguments, limit is %d", len(req.Args), entities.MaxArgs)
	}
	size := int64(len(req.Code))
	for i, a := range req.Args {
		if len(a) > entities.MaxArgLen {
			return nil, hosterrors.New(hosterrors.KindInvalidArgument, op,
				"argument %d is %d bytes, limit is %d", i, len(a), entities.MaxArgLen)
		}
		size += int64(len(a))
	}

	if err := h.budget.reserve(ctx, size); err != nil {
		return nil, err
	}

	sub := &entities.Submission{
		ID:       h.nextID.Add(1),
		Executor: kind,
		Identity: id,
		Code:     bytes.Clone(req.Code),
	}
	if len(req.Args) > 0 {
		sub.Args = make([][]byte, len(req.Args))
		for i, a := range req.Args {
			sub.Args[i] = bytes.Clone(a)
		}
	}
	return sub, nil
}

// free releases a submission's storage. The submission is unusable after.
func (h *Host) free(sub *entities.Submission) {
	h.budget.release(int64(sub.Size()))
	sub.Code = nil
	sub.Args = nil
}

// budget bounds the bytes held by live submissions. Reservation retries a
// bounded number of times before failing with a MemoryError.
type budget struct {
	sem     *semaphore.Weighted
	used    atomic.Int64
	limit   int64
	delay   time.Duration
	retries int
}

func newBudget(limit int64, retries int, delay time.Duration) *budget {
	return &budget{
		sem:     semaphore.NewWeighted(limit),
		limit:   limit,
		retries: retries,
		delay:   delay,
	}
}

func (b *budget) reserve(ctx context.Context, n int64) error {
	if n == 0 {
		return nil
	}
	attempts := 0
	for {
		attempts++
		if b.sem.TryAcquire(n) {
			b.used.Add(n)
			return nil
		}
		if n > b.limit || attempts > b.retries {
			return &hosterrors.MemoryError{
				Requested: n,
				Current:   b.used.Load(),
				Limit:     b.limit,
				Attempts:  attempts,
			}
		}

		timer := time.NewTimer(b.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return hosterrors.Wrap(hosterrors.KindCancelled, "admit", context.Cause(ctx))
		}
	}
}

func (b *budget) release(n int64) {
	if n == 0 {
		return
	}
	b.used.Add(-n)
	b.sem.Release(n)
}
