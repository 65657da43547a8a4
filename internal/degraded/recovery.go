package degraded

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc checks whether the upstreams serve data again. nil means recovered.
type CheckFunc func(ctx context.Context) error

const checkTimeout = 10 * time.Second

var (
	recoveryMu sync.Mutex
	recoveryCh chan struct{}
)

// NotifyDegraded wakes the recovery listener, if one is running. Never blocks.
func NotifyDegraded() {
	recoveryMu.Lock()
	ch := recoveryCh
	recoveryMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// StartRecoveryListener runs RunRecovery whenever NotifyDegraded fires, one
// run at a time, until ctx is done.
func StartRecoveryListener(ctx context.Context, check CheckFunc, initial, max time.Duration, onExhausted func()) {
	ch := make(chan struct{}, 1)
	recoveryMu.Lock()
	recoveryCh = ch
	recoveryMu.Unlock()

	var running atomic.Bool
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				if running.Swap(true) {
					continue
				}
				go func() {
					defer running.Store(false)
					RunRecovery(ctx, check, initial, max, onExhausted)
				}()
			}
		}
	}()
}

// RunRecovery retries check on a Fibonacci schedule (initial, 2x, 3x, 5x, ... up to
// max). The first successful check clears the error window. If the last attempt
// still fails, onExhausted is called.
func RunRecovery(ctx context.Context, check CheckFunc, initial, max time.Duration, onExhausted func()) {
	if initial <= 0 || max < initial {
		return
	}
	delays := fibDelays(initial, max)
	for i, d := range delays {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
		attemptCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(attemptCtx)
		cancel()
		if err == nil {
			Reset()
			return
		}
		if i == len(delays)-1 && onExhausted != nil {
			onExhausted()
		}
	}
}

// fibDelays returns initial scaled by 1, 2, 3, 5, 8, ... while <= max.
func fibDelays(initial, max time.Duration) []time.Duration {
	var out []time.Duration
	for a, b := int64(1), int64(2); ; a, b = b, a+b {
		d := time.Duration(a) * initial
		if d > max {
			return out
		}
		out = append(out, d)
	}
}
