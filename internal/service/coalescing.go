package service

import (
	"context"
	"sync"
	"time"
)

// inFlightRequest is a single upstream call several cycles may be waiting for.
type inFlightRequest[T any] struct {
	done   chan struct{} // closed once result or err is set
	result T
	err    error
}

// requestCoalescer collapses concurrent calls for the same key into one.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest[T]
	timeout  time.Duration
}

func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{
		inFlight: make(map[string]*inFlightRequest[T]),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight call for key or starts one. The call runs
// detached from ctx, so a caller that gives up does not cancel it for the
// others; it is bounded by the coalescer timeout instead. shared reports
// whether the result came from a call another caller started.
func (rc *requestCoalescer[T]) GetOrDo(ctx context.Context, key string, fn func(context.Context) T) (result T, shared bool, err error) {
	rc.mu.Lock()
	req, shared := rc.inFlight[key]
	if !shared {
		req = &inFlightRequest[T]{done: make(chan struct{})}
		rc.inFlight[key] = req
		go rc.run(context.WithoutCancel(ctx), key, req, fn)
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-req.done:
		return req.result, shared, req.err
	case <-waitCtx.Done():
		var zero T
		return zero, shared, waitCtx.Err()
	}
}

func (rc *requestCoalescer[T]) run(ctx context.Context, key string, req *inFlightRequest[T], fn func(context.Context) T) {
	fnCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			req.err = &panicError{source: key, value: r}
		}
		rc.mu.Lock()
		delete(rc.inFlight, key)
		rc.mu.Unlock()
		close(req.done)
	}()
	req.result = fn(fnCtx)
}
