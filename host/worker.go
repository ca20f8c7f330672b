package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStopped is returned by Do after Stop.
var ErrStopped = errors.New("host: worker stopped")

// request is a unit of work to be executed on the world goroutine.
type request struct {
	fn   func(*World) error
	done chan error
}

// Worker serializes all World access through a single goroutine.
// Script contexts are single-threaded; everything that touches a unit,
// including ticks, must go through the worker.
type Worker struct {
	world    *World
	requests chan request
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(w *World) *Worker {
	wk := &Worker{
		world:    w,
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go wk.loop()
	return wk
}

// loop processes requests sequentially on a dedicated goroutine.
func (wk *Worker) loop() {
	for {
		select {
		case req := <-wk.requests:
			req.done <- wk.execute(req.fn)
		case <-wk.quit:
			return
		}
	}
}

// execute runs a function on the world, recovering from panics.
func (wk *Worker) execute(fn func(*World) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host: panic: %v", r)
		}
	}()
	return fn(wk.world)
}

// Do submits a function for execution on the world goroutine and blocks
// until it completes or ctx is done.
func (wk *Worker) Do(ctx context.Context, fn func(*World) error) error {
	select {
	case <-wk.quit:
		return ErrStopped
	default:
	}

	req := request{
		fn:   fn,
		done: make(chan error, 1),
	}
	select {
	case wk.requests <- req:
	case <-wk.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-wk.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Advance runs n ticks on the world goroutine.
func (wk *Worker) Advance(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := wk.Do(ctx, func(w *World) error {
			w.Advance()
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// Stop shuts down the worker goroutine. Later calls do nothing.
func (wk *Worker) Stop() {
	wk.stopOnce.Do(func() { close(wk.quit) })
}
