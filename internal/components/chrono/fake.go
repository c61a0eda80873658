package chrono

import (
	"context"
	"sync"
	"time"
)

// FakeImpl implements API without ever blocking, time only moves forward when
// Sleep is called. Every requested sleep is recorded.
type FakeImpl struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewFakeImpl(start time.Time) *FakeImpl {
	return &FakeImpl{now: start}
}

func (f *FakeImpl) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeImpl) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

// Sleeps returns every duration passed to Sleep, in order.
func (f *FakeImpl) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}
