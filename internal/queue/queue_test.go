package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sleepJob(d time.Duration) func(context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		select {
		case <-time.After(d):
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func TestCapacityOneSerializesJobs(t *testing.T) {
	q := New(1)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Enqueue(context.Background(), q, sleepJob(100*time.Millisecond))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, 0, q.Running())
	assert.Equal(t, 0, q.Waiting())
}

func TestRunningNeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	const jobs = 20
	q := New(capacity)

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.Do(context.Background(), func(context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(capacity))
	assert.Positive(t, peak.Load())
}

func TestZeroCapacityDisablesGating(t *testing.T) {
	q := New(0)
	assert.False(t, q.Enabled())
	assert.False(t, q.Saturated())

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Enqueue(context.Background(), q, sleepJob(50*time.Millisecond))
		}()
	}
	wg.Wait()
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestNilQueueRunsImmediately(t *testing.T) {
	var q *Queue
	v, err := Enqueue(context.Background(), q, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, Stats{}, q.Stats())
}

func TestErrorsPassThroughAndReleaseSlot(t *testing.T) {
	q := New(1)
	boom := errors.New("encoder exploded")

	_, err := Enqueue(context.Background(), q, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, q.Running())

	v, err := Enqueue(context.Background(), q, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestPanicReleasesSlot(t *testing.T) {
	q := New(1)

	func() {
		defer func() { _ = recover() }()
		_ = q.Do(context.Background(), func(context.Context) error {
			panic("boom")
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, q.Do(ctx, func(context.Context) error { return nil }))
}

func TestSaturatedAndCancelWhileWaiting(t *testing.T) {
	q := New(1)
	hold := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = q.Do(context.Background(), func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	assert.True(t, q.Saturated())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	ran := false
	err := q.Do(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
	assert.Equal(t, 0, q.Waiting())

	close(hold)
	require.Eventually(t, func() bool { return !q.Saturated() }, time.Second, 5*time.Millisecond)
}

func TestNestedJobRunsInline(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := Enqueue(ctx, q, func(ctx context.Context) (int, error) {
		return Enqueue(ctx, q, func(context.Context) (int, error) {
			return 42, nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

type blockingGate struct {
	open chan struct{}
}

func (g *blockingGate) Wait(ctx context.Context) error {
	select {
	case <-g.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestGateHoldsAdmission(t *testing.T) {
	gate := &blockingGate{open: make(chan struct{})}
	q := New(2, WithGate(gate))

	done := make(chan error, 1)
	go func() {
		done <- q.Do(context.Background(), func(context.Context) error { return nil })
	}()

	select {
	case <-done:
		t.Fatal("job admitted while gate closed")
	case <-time.After(30 * time.Millisecond):
	}
	assert.Equal(t, 1, q.Waiting())
	assert.True(t, q.Saturated())

	close(gate.open)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("job not admitted after gate opened")
	}
}
