package chat

import "time"

// Clock abstracts time for the engine so tests can drive reveal ticks and
// fail-safe timers deterministically. The Session's real clock posts timer
// callbacks onto the session loop, preserving the single-threaded model.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules fn after d and returns a cancel function. Cancel
	// after firing is a no-op.
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// loopClock is the production clock: callbacks are marshalled back onto the
// session loop before they touch any state.
type loopClock struct {
	post func(func()) bool
}

func (c *loopClock) Now() time.Time { return time.Now() }

func (c *loopClock) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { c.post(fn) })
	return func() { t.Stop() }
}
