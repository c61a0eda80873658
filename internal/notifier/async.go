package notifier

import (
	"context"
	"sync"

	"followbot/internal/components/assert"
	"followbot/internal/components/telemetry"
)

const report_async_dropped = "async.dropped"

// Async hands notifications to a single background worker so Notify returns
// immediately. Notifications that do not fit in the queue are dropped.
type Async struct {
	inner Notifier
	tel   telemetry.API
	queue chan Notification

	// ctx outlives the caller's contexts so queued deliveries survive a Ctrl+C
	// until Close decides otherwise.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewAsync(inner Notifier, tel telemetry.API, size int) *Async {
	assert.NotNil(inner)
	assert.NotNil(tel)
	if size <= 0 {
		size = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		inner:  inner,
		tel:    telemetry.NewScopedAPI("notifier", tel),
		queue:  make(chan Notification, size),
		ctx:    ctx,
		cancel: cancel,
	}

	a.wg.Add(1)
	go a.work()
	return a
}

func (a *Async) work() {
	defer a.wg.Done()
	for n := range a.queue {
		a.inner.Notify(a.ctx, n)
	}
}

func (a *Async) Notify(_ context.Context, n Notification) {
	select {
	case a.queue <- n:
	default:
		a.tel.ReportWarning(report_async_dropped, n.Target)
	}
}

// Close stops accepting notifications and waits for the queue to drain. If ctx
// ends first, in-flight deliveries are cancelled and ctx.Err() is returned.
// Notify must not be called after Close.
func (a *Async) Close(ctx context.Context) error {
	a.once.Do(func() {
		close(a.queue)
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		<-done
		return ctx.Err()
	}
}
