package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Call is one unit of work for the executing goroutine.
type Call struct {
	// Fn performs all VM operations for this call.
	Fn func() error

	// Result receives Fn's error and is then closed.
	Result chan error
}

// Executor serializes all VM work onto the goroutine running Run.
//
// Usage:
//
//	exec := NewExecutor(16)
//	go exec.Run(ctx)
//	defer exec.Close()
//
//	// From any goroutine:
//	err := exec.Execute(ctx, func() error {
//	    return engine.CallUpdate(dt)
//	})
type Executor struct {
	queue  chan *Call
	closed atomic.Bool
	done   chan struct{}

	closeOnce sync.Once
}

// NewExecutor creates an executor buffering up to queueSize calls.
func NewExecutor(queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Executor{
		queue: make(chan *Call, queueSize),
		done:  make(chan struct{}),
	}
}

// Run processes calls until ctx is cancelled or Close is called. The
// goroutine running Run is the executing goroutine.
func (e *Executor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.drainQueue(ctx.Err())
			return
		case <-e.done:
			e.drainQueue(ErrExecutorClosed)
			return
		case call := <-e.queue:
			call.Result <- e.executeCall(call)
			close(call.Result)
		}
	}
}

func (e *Executor) executeCall(call *Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			default:
				err = fmt.Errorf("lua panic: %v", v)
			}
		}
	}()
	return call.Fn()
}

func (e *Executor) drainQueue(err error) {
	for {
		select {
		case call := <-e.queue:
			call.Result <- err
			close(call.Result)
		default:
			return
		}
	}
}

// Execute queues fn and waits for it to finish or for ctx to end. When ctx
// ends first the call still runs; only the wait is abandoned.
func (e *Executor) Execute(ctx context.Context, fn func() error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	call := &Call{Fn: fn, Result: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- call:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-call.Result:
		if !ok {
			return ErrExecutorClosed
		}
		return err
	}
}

// ExecuteAsync queues fn without waiting. It fails fast when the queue is
// full.
func (e *Executor) ExecuteAsync(fn func() error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	call := &Call{Fn: fn, Result: make(chan error, 1)}
	select {
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- call:
		return nil
	default:
		return ErrExecutorFull
	}
}

// Close stops the executor. Queued calls complete with ErrExecutorClosed.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}

// IsClosed returns true if the executor has been closed.
func (e *Executor) IsClosed() bool {
	return e.closed.Load()
}

// IsClosedErr reports whether err means the executor went away.
func IsClosedErr(err error) bool {
	return errors.Is(err, ErrExecutorClosed)
}
