// Package trigger implements the press-and-hold panic button.
//
// A press arms a hold timer; releasing before it fires cancels with no side
// effect. When the hold completes the machine fires a dispatch in its own
// goroutine and returns to Idle with a busy flag set until that dispatch
// returns. Presses while busy are rejected, so at most one dispatch is in
// flight per machine.
package trigger

import (
	"errors"
	"sync"
	"time"
)

type State string

const (
	StateIdle      State = "idle"
	StatePressing  State = "pressing"
	StateConfirmed State = "confirmed"
)

const (
	DefaultHold = 3000 * time.Millisecond
	DefaultTick = 50 * time.Millisecond
)

var (
	ErrBusy     = errors.New("alert dispatch already in progress")
	ErrNotArmed = errors.New("panic button is not armed")
	ErrClosed   = errors.New("panic button closed")
)

type Config struct {
	Hold  time.Duration
	Tick  time.Duration
	Clock Clock

	// Armed is consulted on every press; nil means always armed.
	Armed func() bool
	// Dispatch runs once per completed hold, on its own goroutine.
	Dispatch func() error

	OnProgress     func(fraction float64)
	OnConfirmed    func()
	OnDispatchDone func(err error)
}

type Snapshot struct {
	State    State   `json:"state"`
	Busy     bool    `json:"busy"`
	Progress float64 `json:"progress"`
}

type Machine struct {
	cfg Config

	mu       sync.Mutex
	state    State
	busy     bool
	closed   bool
	progress float64
	started  time.Time
	gen      uint64
	timer    Timer
	ticker   Ticker
	stopTick chan struct{}
}

func New(cfg Config) *Machine {
	if cfg.Hold <= 0 {
		cfg.Hold = DefaultHold
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	return &Machine{cfg: cfg, state: StateIdle}
}

// Press starts a hold. Pressing while already pressing is a no-op. A closed
// machine still reports ErrBusy until its last dispatch returns.
func (m *Machine) Press() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.busy:
		return ErrBusy
	case m.closed:
		return ErrClosed
	case m.state == StatePressing:
		return nil
	}
	if m.cfg.Armed != nil && !m.cfg.Armed() {
		return ErrNotArmed
	}

	m.gen++
	gen := m.gen
	m.state = StatePressing
	m.progress = 0
	m.started = m.cfg.Clock.Now()
	m.timer = m.cfg.Clock.AfterFunc(m.cfg.Hold, func() { m.holdElapsed(gen) })
	m.ticker = m.cfg.Clock.NewTicker(m.cfg.Tick)
	m.stopTick = make(chan struct{})
	go m.runTicker(gen, m.ticker, m.stopTick)
	return nil
}

// Release cancels a pending hold and reports whether one was cancelled.
func (m *Machine) Release() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePressing {
		return false
	}
	m.cancelLocked()
	m.state = StateIdle
	m.progress = 0
	return true
}

// Close cancels any pending hold. A dispatch already started keeps running.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.state == StatePressing {
		m.cancelLocked()
		m.state = StateIdle
		m.progress = 0
	}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Busy: m.busy, Progress: m.progress}
}

func (m *Machine) cancelLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.stopTickerLocked()
}

func (m *Machine) stopTickerLocked() {
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	if m.stopTick != nil {
		close(m.stopTick)
		m.stopTick = nil
	}
}

func (m *Machine) runTicker(gen uint64, t Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			m.mu.Lock()
			if m.gen != gen || m.state != StatePressing {
				m.mu.Unlock()
				return
			}
			frac := float64(m.cfg.Clock.Now().Sub(m.started)) / float64(m.cfg.Hold)
			if frac > 1 {
				frac = 1
			}
			if frac < m.progress {
				frac = m.progress
			}
			m.progress = frac
			cb := m.cfg.OnProgress
			m.mu.Unlock()
			if cb != nil {
				cb(frac)
			}
		}
	}
}

func (m *Machine) holdElapsed(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state != StatePressing || m.closed {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.stopTickerLocked()
	m.state = StateConfirmed
	m.progress = 1
	m.busy = true
	m.mu.Unlock()

	if m.cfg.OnProgress != nil {
		m.cfg.OnProgress(1)
	}
	if m.cfg.OnConfirmed != nil {
		m.cfg.OnConfirmed()
	}

	m.mu.Lock()
	m.state = StateIdle
	m.progress = 0
	m.mu.Unlock()

	go m.dispatch()
}

func (m *Machine) dispatch() {
	var err error
	if m.cfg.Dispatch != nil {
		err = m.cfg.Dispatch()
	}
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
	if m.cfg.OnDispatchDone != nil {
		m.cfg.OnDispatchDone(err)
	}
}
