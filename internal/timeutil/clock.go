// Package timeutil provides a testable abstraction over wall-clock time and
// the report location used for calendar bucketing.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the source of time for sampling loops and reports.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// MockClock only moves when told to. Tickers created from it fire during
// Advance.
type MockClock struct {
	mu      sync.Mutex
	at      time.Time
	tickers []*MockTicker
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{at: start}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.at
}

// Set jumps to t. No ticker fires.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.at = t
	m.mu.Unlock()
}

// Advance moves the clock by d, then fires every live ticker that has come
// due. A ticker fires at most once per call.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.at = m.at.Add(d)
	at := m.at
	due := make([]*MockTicker, len(m.tickers))
	copy(due, m.tickers)
	m.mu.Unlock()

	for _, tk := range due {
		tk.fireIfDue(at)
	}
}

func (m *MockClock) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	tk := &MockTicker{
		c:      make(chan time.Time, 1),
		period: d,
		next:   m.at.Add(d),
	}
	m.tickers = append(m.tickers, tk)
	return tk
}

// Tickers lists the tickers created so far, oldest first.
func (m *MockClock) Tickers() []*MockTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockTicker, len(m.tickers))
	copy(out, m.tickers)
	return out
}

// MockTicker is created by MockClock. Its channel holds one pending tick;
// further ticks are dropped until it is read, as with time.Ticker.
type MockTicker struct {
	mu      sync.Mutex
	c       chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (tk *MockTicker) C() <-chan time.Time { return tk.c }

func (tk *MockTicker) Stop() {
	tk.mu.Lock()
	tk.stopped = true
	tk.mu.Unlock()
}

func (tk *MockTicker) Stopped() bool {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	return tk.stopped
}

// Trigger delivers a tick now regardless of the schedule.
func (tk *MockTicker) Trigger(at time.Time) {
	tk.offer(at)
}

func (tk *MockTicker) fireIfDue(at time.Time) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	if tk.stopped || at.Before(tk.next) {
		return
	}
	tk.offer(at)
	tk.next = at.Add(tk.period)
}

func (tk *MockTicker) offer(at time.Time) {
	select {
	case tk.c <- at:
	default:
	}
}
