package retry

import (
	"sync"
	"time"
)

// FakeClock is a Clock and Timer whose time only moves when a timer is
// started. Every wait completes immediately and advances Now by its duration.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
	c     chan time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start, c: make(chan time.Time, 1)}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) Start(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.waits = append(f.waits, d)
	now := f.now
	f.mu.Unlock()

	select {
	case f.c <- now:
	default:
	}
}

func (f *FakeClock) Stop() {}

func (f *FakeClock) C() <-chan time.Time { return f.c }

// Sleep advances the clock as if d had passed.
func (f *FakeClock) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.waits = append(f.waits, d)
}

// Waits returns every duration waited so far.
func (f *FakeClock) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}

// Elapsed is the total time the clock has moved.
func (f *FakeClock) Elapsed() time.Duration {
	var total time.Duration
	for _, w := range f.Waits() {
		total += w
	}
	return total
}
