package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l.WithField("component", "test")
}

// manualClock is a deterministic Clock for component tests. Timers fire
// inline from Advance, on the caller's goroutine.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	seq     int
	at      time.Time
	fn      func()
	stopped bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1700000000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{seq: c.seq, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		t.stopped = true
	}
}

// Advance moves the clock forward, firing due timers in deadline order. The
// clock steps to each deadline before firing, so callbacks that reschedule
// themselves (reveal ticks) keep firing within a single Advance.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// popDue removes and returns the earliest unstopped timer due by target,
// moving now to its deadline.
func (c *manualClock) popDue(target time.Time) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.SliceStable(c.timers, func(i, j int) bool {
		if !c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].at.Before(c.timers[j].at)
		}
		return c.timers[i].seq < c.timers[j].seq
	})
	for i, t := range c.timers {
		if t.stopped {
			continue
		}
		if !t.at.After(target) {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			if t.at.After(c.now) {
				c.now = t.at
			}
			return t
		}
	}
	return nil
}

func userMsg(id, content string) Message {
	return Message{ID: id, Sender: SenderUser, Content: content, State: PlaybackFinal, Meta: MetaPlain}
}

func assistantMsg(id, content string) Message {
	return Message{ID: id, Sender: SenderAssistant, Content: content, State: PlaybackIdle, Meta: MetaPlain}
}
