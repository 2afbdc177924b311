// Package worker bounds the number of blocking calls to the repository, the
// wallet daemon and the chain node that run at the same time.
package worker

import (
	"context"
	"sync/atomic"

	"github.com/iov-one/escrowd/errors"
)

// Pool runs functions with a limited concurrency.
type Pool struct {
	slots    chan struct{}
	inflight int64
}

// NewPool returns a pool running at most size functions at once.
func NewPool(size int) *Pool {
	if size <= 0 {
		panic("worker pool size must be greater than zero")
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Do waits for a free slot and runs fn in it. Waiting is aborted when the
// context is done. A panic in fn is returned as ErrPanic.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) (err error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return errors.Wrapf(errors.ErrTimeout, "waiting for a worker: %s", ctx.Err())
	}
	atomic.AddInt64(&p.inflight, 1)
	defer func() {
		atomic.AddInt64(&p.inflight, -1)
		<-p.slots
	}()
	defer errors.Recover(&err)

	return fn(ctx)
}

// InFlight returns the number of functions being run.
func (p *Pool) InFlight() int {
	return int(atomic.LoadInt64(&p.inflight))
}

// Size returns the maximum number of functions run at once.
func (p *Pool) Size() int {
	return cap(p.slots)
}
