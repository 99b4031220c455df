package hostfuncs

import (
	"math"

	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
	"golang.org/x/sync/semaphore"
)

// MaxSemaphores bounds the semaphores one execution may hold.
const MaxSemaphores = 1024

// guestSemaphore is a counting semaphore starting at zero. The weighted
// semaphore is created fully acquired: its free weight is the guest count.
type guestSemaphore struct {
	w *semaphore.Weighted
}

func newGuestSemaphore() *guestSemaphore {
	w := semaphore.NewWeighted(math.MaxInt64)
	if !w.TryAcquire(math.MaxInt64) {
		panic("hostfuncs: fresh semaphore not acquirable")
	}
	return &guestSemaphore{w: w}
}

// SemaphoreCreate creates a semaphore with count zero.
func (c *Context) SemaphoreCreate() (ports.SemaphoreID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.sems) >= MaxSemaphores {
		return 0, hosterrors.New(hosterrors.KindResourceExhausted, "sem_create", "%d semaphores in use", len(c.sems))
	}
	// Ids are returned to the guest as positive i32s and never reused.
	if c.nextSem > math.MaxInt32 {
		return 0, hosterrors.New(hosterrors.KindResourceExhausted, "sem_create", "semaphore ids exhausted")
	}
	id := c.nextSem
	c.nextSem++
	c.sems[id] = newGuestSemaphore()
	return id, nil
}

// SemaphoreDestroy forgets a semaphore. Goroutines blocked on it stay blocked
// until released by fatal termination.
func (c *Context) SemaphoreDestroy(id ports.SemaphoreID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sems[id]; !ok {
		return unknownSemaphore("sem_destroy", id)
	}
	delete(c.sems, id)
	return nil
}

// SemaphoreRelease increments the count. It never blocks.
func (c *Context) SemaphoreRelease(id ports.SemaphoreID) error {
	s, err := c.semaphore("sem_release", id)
	if err != nil {
		return err
	}
	s.w.Release(1)
	return nil
}

// SemaphoreAcquire decrements the count, blocking while it is zero.
// Fatal termination wakes a blocked acquire.
func (c *Context) SemaphoreAcquire(id ports.SemaphoreID) error {
	const op = "sem_acquire"

	if err := c.check(op); err != nil {
		return err
	}
	s, err := c.semaphore(op, id)
	if err != nil {
		return err
	}
	if err := s.w.Acquire(c.token.Context(), 1); err != nil {
		return hosterrors.Wrap(hosterrors.KindCancelled, op, c.token.Cause())
	}
	if err := c.check(op); err != nil {
		s.w.Release(1)
		return err
	}
	return nil
}

func (c *Context) semaphore(op string, id ports.SemaphoreID) (*guestSemaphore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sems[id]
	if !ok {
		return nil, unknownSemaphore(op, id)
	}
	return s, nil
}

func unknownSemaphore(op string, id ports.SemaphoreID) error {
	return hosterrors.New(hosterrors.KindInvalidArgument, op, "unknown semaphore %d", id)
}
