// Package runtime holds the lobby's concurrency machinery: the port
// pool, the session registry and the match orchestrator. It coordinates
// resources without containing matchmaking rules.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"lobby-lab/errors"
)

// PortAllocator owns the fixed pool of ports reserved for ephemeral game
// servers. Acquire hands out the lowest free port for deterministic,
// testable ordering; when the pool is exhausted callers queue FIFO and
// are unblocked by Release or by their context deadline. A single lock
// guards the free set; the pool is small and correctness, not
// throughput, is the requirement.
type PortAllocator struct {
	mu       sync.Mutex
	log      *slog.Logger
	min, max int
	used     map[int]bool
	waiters  []*portWaiter
}

type portWaiter struct {
	ch chan int
}

func NewPortAllocator(log *slog.Logger, min, max int) *PortAllocator {
	return &PortAllocator{
		log:  log,
		min:  min,
		max:  max,
		used: make(map[int]bool),
	}
}

// Acquire returns the lowest-numbered free port. When none is free the
// caller waits in FIFO order until a matching Release; the context
// deadline bounds the wait and surfaces ErrPortPoolExhausted instead of
// hanging forever.
func (a *PortAllocator) Acquire(ctx context.Context) (int, error) {
	a.mu.Lock()
	if port, ok := a.lowestFree(); ok {
		a.used[port] = true
		a.mu.Unlock()
		return port, nil
	}

	w := &portWaiter{ch: make(chan int, 1)}
	a.waiters = append(a.waiters, w)
	a.mu.Unlock()
	a.log.Debug("Port pool exhausted, queueing start request")

	select {
	case port := <-w.ch:
		return port, nil
	case <-ctx.Done():
	}

	// The waiter gave up. A concurrent Release may already have handed
	// it a port; that port must flow back to the pool, not leak.
	a.mu.Lock()
	for i, queued := range a.waiters {
		if queued == w {
			a.waiters = append(a.waiters[:i], a.waiters[i+1:]...)
			a.mu.Unlock()
			return 0, fmt.Errorf("%w: %v", errors.ErrPortPoolExhausted, ctx.Err())
		}
	}
	a.mu.Unlock()

	select {
	case port := <-w.ch:
		if err := a.Release(port); err != nil {
			a.log.Error("Failed to return unclaimed port", "port", port, "error", err)
		}
	default:
	}
	return 0, fmt.Errorf("%w: %v", errors.ErrPortPoolExhausted, ctx.Err())
}

// Release returns port to the pool, or hands it directly to the oldest
// waiter. Releasing a port that is already free is a programming
// invariant violation: it fails the operation but never the process.
func (a *PortAllocator) Release(port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if port < a.min || port > a.max {
		return fmt.Errorf("port %d outside pool [%d, %d]", port, a.min, a.max)
	}
	if !a.used[port] {
		return fmt.Errorf("%w: port %d", errors.ErrDoubleRelease, port)
	}

	if len(a.waiters) > 0 {
		w := a.waiters[0]
		a.waiters = a.waiters[1:]
		// The port stays marked used; ownership moves to the waiter
		// through the buffered channel.
		w.ch <- port
		return nil
	}

	delete(a.used, port)
	return nil
}

// Free reports how many ports are currently available.
func (a *PortAllocator) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.max - a.min + 1 - len(a.used)
}

func (a *PortAllocator) lowestFree() (int, bool) {
	for p := a.min; p <= a.max; p++ {
		if !a.used[p] {
			return p, true
		}
	}
	return 0, false
}
