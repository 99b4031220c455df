package hostfuncs

import (
	"runtime"
	"time"
)

// Yield is a cooperative scheduling point.
func (c *Context) Yield() error {
	if err := c.check("yield"); err != nil {
		return err
	}
	runtime.Gosched()
	return nil
}

// Sleep suspends the execution for d. Fatal termination ends the sleep early
// and is reported by the poll that follows it.
func (c *Context) Sleep(d time.Duration) error {
	const op = "sleep"

	if err := c.check(op); err != nil {
		return err
	}
	if d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-c.token.Context().Done():
			timer.Stop()
		}
	}
	return c.check(op)
}

// Reschedule gives up the processor and polls again once resumed.
func (c *Context) Reschedule() error {
	const op = "reschedule"

	if err := c.check(op); err != nil {
		return err
	}
	runtime.Gosched()
	return c.check(op)
}
