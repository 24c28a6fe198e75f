// Package triggertest provides a manually advanced clock for trigger tests.
package triggertest

import (
	"sort"
	"sync"
	"time"

	"github.com/migralert/migralert-backend/internal/trigger"
)

type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) trigger.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *FakeClock) NewTicker(d time.Duration) trigger.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{clock: c, every: d, next: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves time forward, delivering ticks and firing due timers in
// order. Timer callbacks run synchronously on the caller's goroutine.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next, ok := c.nextEventLocked(target)
		if !ok {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next
		var due []*fakeTimer
		kept := c.timers[:0]
		for _, t := range c.timers {
			if !t.stopped && !t.at.After(next) {
				t.stopped = true
				due = append(due, t)
				continue
			}
			if !t.stopped {
				kept = append(kept, t)
			}
		}
		c.timers = kept
		for _, tk := range c.tickers {
			if tk.stopped {
				continue
			}
			for !tk.next.After(next) {
				select {
				case tk.ch <- next:
				default:
				}
				tk.next = tk.next.Add(tk.every)
			}
		}
		c.mu.Unlock()

		sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		for _, t := range due {
			t.f()
		}
	}
}

func (c *FakeClock) nextEventLocked(limit time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	consider := func(at time.Time) {
		if at.After(limit) {
			return
		}
		if !found || at.Before(best) {
			best, found = at, true
		}
	}
	for _, t := range c.timers {
		if !t.stopped {
			consider(t.at)
		}
	}
	for _, tk := range c.tickers {
		if !tk.stopped {
			consider(tk.next)
		}
	}
	return best, found
}

// PendingTimers counts timers that have neither fired nor been stopped.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type fakeTimer struct {
	clock   *FakeClock
	at      time.Time
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeTicker struct {
	clock   *FakeClock
	every   time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	t.stopped = true
	t.clock.mu.Unlock()
}
