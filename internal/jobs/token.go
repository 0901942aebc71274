package jobs

import (
	"context"
	"sync/atomic"
)

// CancellationToken is set once by the consumer and polled by the runner.
// Its Context is cancelled at the same moment so subprocess-backed stages
// can be killed instead of waiting for the next poll.
type CancellationToken struct {
	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewCancellationToken(parent context.Context) *CancellationToken {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &CancellationToken{ctx: ctx, cancel: cancel}
}

// Cancel sets the flag. Calling it more than once is harmless.
func (t *CancellationToken) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		t.cancel()
	}
}

// Cancelled reports whether Cancel was called, or the parent context ended.
func (t *CancellationToken) Cancelled() bool {
	if t.cancelled.Load() {
		return true
	}
	if t.ctx.Err() != nil {
		t.cancelled.Store(true)
		return true
	}
	return false
}

func (t *CancellationToken) Context() context.Context {
	return t.ctx
}

// Release frees the context resources once the job has finished.
func (t *CancellationToken) Release() {
	t.cancel()
}
