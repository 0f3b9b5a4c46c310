package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lobby-lab/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestPortAllocator_AcquireLowestFree(t *testing.T) {
	req := require.New(t)

	// Given a fresh pool
	pool := NewPortAllocator(testLogger(), 10100, 10104)

	// When acquiring three ports
	first, err := pool.Acquire(context.Background())
	req.NoError(err)
	second, err := pool.Acquire(context.Background())
	req.NoError(err)
	third, err := pool.Acquire(context.Background())
	req.NoError(err)

	// Then ports come out in ascending order
	req.Equal(10100, first)
	req.Equal(10101, second)
	req.Equal(10102, third)
	req.Equal(2, pool.Free())
}

func TestPortAllocator_ReleasedPortIsReusedFirst(t *testing.T) {
	req := require.New(t)

	// Given a pool with the two lowest ports taken
	pool := NewPortAllocator(testLogger(), 10100, 10104)
	_, err := pool.Acquire(context.Background())
	req.NoError(err)
	_, err = pool.Acquire(context.Background())
	req.NoError(err)

	// When the lowest port is released
	req.NoError(pool.Release(10100))

	// Then the next acquisition returns it again
	port, err := pool.Acquire(context.Background())
	req.NoError(err)
	req.Equal(10100, port)
}

func TestPortAllocator_ExhaustionTimesOut(t *testing.T) {
	req := require.New(t)

	// Given a single-port pool already drained
	pool := NewPortAllocator(testLogger(), 10100, 10100)
	_, err := pool.Acquire(context.Background())
	req.NoError(err)

	// When acquiring with a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)

	// Then the wait surfaces pool exhaustion
	req.ErrorIs(err, errors.ErrPortPoolExhausted)
}

func TestPortAllocator_ReleaseUnblocksOldestWaiter(t *testing.T) {
	req := require.New(t)

	// Given a drained single-port pool and a queued waiter
	pool := NewPortAllocator(testLogger(), 10100, 10100)
	port, err := pool.Acquire(context.Background())
	req.NoError(err)

	got := make(chan int, 1)
	go func() {
		p, acquireErr := pool.Acquire(context.Background())
		req.NoError(acquireErr)
		got <- p
	}()
	req.Eventually(func() bool {
		pool.mu.Lock()
		defer pool.mu.Unlock()
		return len(pool.waiters) == 1
	}, time.Second, 5*time.Millisecond)

	// When the held port is released
	req.NoError(pool.Release(port))

	// Then the waiter receives it and the pool stays fully booked
	select {
	case p := <-got:
		req.Equal(10100, p)
	case <-time.After(time.Second):
		t.Fatal("waiter never received the released port")
	}
	req.Equal(0, pool.Free())
}

func TestPortAllocator_DoubleReleaseFailsOperationOnly(t *testing.T) {
	req := require.New(t)

	// Given a port acquired and released once
	pool := NewPortAllocator(testLogger(), 10100, 10104)
	port, err := pool.Acquire(context.Background())
	req.NoError(err)
	req.NoError(pool.Release(port))

	// When releasing it again
	err = pool.Release(port)

	// Then the violation is reported and the pool remains usable
	req.ErrorIs(err, errors.ErrDoubleRelease)
	next, err := pool.Acquire(context.Background())
	req.NoError(err)
	req.Equal(10100, next)
}

func TestPortAllocator_ReleaseOutsidePoolRejected(t *testing.T) {
	req := require.New(t)

	// Given a pool
	pool := NewPortAllocator(testLogger(), 10100, 10104)

	// When releasing a port the pool never owned
	err := pool.Release(9999)

	// Then the release fails
	req.Error(err)
}
