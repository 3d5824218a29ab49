package smithy

import (
	"context"
	"sync"
	"time"
)

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

// Sleeper blocks for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemTimeSource reads the wall clock.
type SystemTimeSource struct{}

// Now returns time.Now().
func (SystemTimeSource) Now() time.Time {
	return time.Now()
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep waits for d or until ctx is cancelled.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ManualTimeSource is a clock that only moves when told to.
type ManualTimeSource struct {
	mu  sync.Mutex
	now time.Time
	log []time.Duration
}

// NewManualTimeSource returns a clock starting at start.
func NewManualTimeSource(start time.Time) *ManualTimeSource {
	return &ManualTimeSource{now: start}
}

// Now returns the current manual time.
func (m *ManualTimeSource) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t.
func (m *ManualTimeSource) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *ManualTimeSource) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.log = append(m.log, d)
	m.mu.Unlock()
}

// Sleeps returns every duration the clock was advanced by.
func (m *ManualTimeSource) Sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.log...)
}

// InstantSleeper returns immediately and advances a manual clock instead of
// waiting.
type InstantSleeper struct {
	Clock *ManualTimeSource
}

// Sleep advances the clock by d.
func (s InstantSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Clock != nil {
		s.Clock.Advance(d)
	}
	return nil
}

// NewInstantTimeAndSleep returns a manual clock and a sleeper bound to it.
func NewInstantTimeAndSleep(start time.Time) (*ManualTimeSource, InstantSleeper) {
	clock := NewManualTimeSource(start)
	return clock, InstantSleeper{Clock: clock}
}

// NeverSleeper blocks until ctx is done. Useful for timeouts that should never
// fire on their own.
type NeverSleeper struct{}

// Sleep waits for ctx.
func (NeverSleeper) Sleep(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

type tickWaiter struct {
	deadline time.Time
	done     chan struct{}
}

// TickAdvanceSleeper sleeps on a manual clock. Sleep blocks until Tick moves
// the clock to or past the sleep's deadline, so timeouts fire exactly when a
// test says so.
type TickAdvanceSleeper struct {
	clock *ManualTimeSource

	mu      sync.Mutex
	waiters []*tickWaiter
}

// NewTickAdvanceTimeAndSleep returns a manual clock and a sleeper bound to it.
func NewTickAdvanceTimeAndSleep(start time.Time) (*ManualTimeSource, *TickAdvanceSleeper) {
	clock := NewManualTimeSource(start)
	return clock, &TickAdvanceSleeper{clock: clock}
}

// Sleep waits until the clock reaches now+d or ctx is done.
func (s *TickAdvanceSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	w := &tickWaiter{deadline: s.clock.Now().Add(d), done: make(chan struct{})}
	s.mu.Lock()
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		s.remove(w)
		return ctx.Err()
	}
}

// Tick advances the clock by d and wakes every sleep that is now due.
func (s *TickAdvanceSleeper) Tick(d time.Duration) {
	s.clock.Advance(d)
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := s.waiters[:0]
	for _, w := range s.waiters {
		if w.deadline.After(now) {
			remaining = append(remaining, w)
			continue
		}
		close(w.done)
	}
	s.waiters = remaining
}

// Pending returns the number of sleeps in progress.
func (s *TickAdvanceSleeper) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

// WaitForPending polls until at least n sleeps are in progress or ctx is done.
func (s *TickAdvanceSleeper) WaitForPending(ctx context.Context, n int) error {
	for s.Pending() < n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

func (s *TickAdvanceSleeper) remove(target *tickWaiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w == target {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}
