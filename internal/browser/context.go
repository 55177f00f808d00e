package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from ctx1 that is canceled when either
// ctx1 or ctx2 is canceled. It inherits values from ctx1 only, which matters
// for chromedp: ctx1 carries the CDP target, ctx2 carries the operational
// deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext inherits values from its parent but ignores the parent's
// deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that keeps ctx's values (including the CDP
// target) but is not canceled when ctx is. Cleanup paths use it so a tab can
// still be closed after the operation that owned it was canceled.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
