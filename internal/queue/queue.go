package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"media-forge/internal/logging"
	"media-forge/internal/metrics"
)

// Gate is consulted before a job is admitted. memory.Monitor implements it.
type Gate interface {
	Wait(ctx context.Context) error
}

// Queue bounds how many jobs run at once across every request in the
// process. A nil Queue or one with capacity 0 runs jobs immediately.
type Queue struct {
	capacity int
	sem      *semaphore.Weighted
	gate     Gate

	running atomic.Int64
	waiting atomic.Int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithGate makes admission wait on g (typically a memory monitor) before
// competing for a slot.
func WithGate(g Gate) Option {
	return func(q *Queue) {
		q.gate = g
	}
}

// New creates a queue admitting at most capacity concurrent jobs.
// A capacity of 0 or less disables gating.
func New(capacity int, opts ...Option) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	q := &Queue{capacity: capacity}
	if capacity > 0 {
		q.sem = semaphore.NewWeighted(int64(capacity))
	}
	for _, opt := range opts {
		opt(q)
	}
	metrics.QueueCapacity.Set(float64(capacity))
	return q
}

// Enabled reports whether the queue limits concurrency.
func (q *Queue) Enabled() bool {
	return q != nil && q.sem != nil
}

// Capacity returns the configured limit, 0 when gating is disabled.
func (q *Queue) Capacity() int {
	if q == nil {
		return 0
	}
	return q.capacity
}

// Running returns the number of admitted jobs.
func (q *Queue) Running() int {
	if q == nil {
		return 0
	}
	return int(q.running.Load())
}

// Waiting returns the number of jobs blocked on admission.
func (q *Queue) Waiting() int {
	if q == nil {
		return 0
	}
	return int(q.waiting.Load())
}

// Saturated reports whether a new job would have to wait. It has no side
// effects and is meant for "you are in the queue" feedback.
func (q *Queue) Saturated() bool {
	if !q.Enabled() {
		return false
	}
	return q.running.Load() >= int64(q.capacity) || q.waiting.Load() > 0
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Capacity  int  `json:"capacity"`
	Running   int  `json:"running"`
	Waiting   int  `json:"waiting"`
	Saturated bool `json:"saturated"`
	Enabled   bool `json:"enabled"`
}

// Stats returns the current queue state.
func (q *Queue) Stats() Stats {
	return Stats{
		Capacity:  q.Capacity(),
		Running:   q.Running(),
		Waiting:   q.Waiting(),
		Saturated: q.Saturated(),
		Enabled:   q.Enabled(),
	}
}

type admittedKey struct{}

// admitted reports whether ctx belongs to a job already holding a slot of q.
func (q *Queue) admitted(ctx context.Context) bool {
	held, _ := ctx.Value(admittedKey{}).(*Queue)
	return held == q
}

// Enqueue runs job once admitted and returns its result. The slot is
// released on every exit path, including panics. Errors from job are
// returned unchanged; the queue never retries.
//
// A job enqueued from inside another job of the same queue runs inline on
// the slot its caller already holds, so nested pipelines cannot deadlock.
func Enqueue[T any](ctx context.Context, q *Queue, job func(ctx context.Context) (T, error)) (T, error) {
	if !q.Enabled() || q.admitted(ctx) {
		return job(ctx)
	}

	release, err := q.acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	start := time.Now()
	status := "error"
	defer func() {
		release()
		metrics.QueueJobDuration.Observe(time.Since(start).Seconds())
		metrics.QueueJobsTotal.WithLabelValues(status).Inc()
	}()

	res, err := job(context.WithValue(ctx, admittedKey{}, q))
	switch {
	case err == nil:
		status = "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "canceled"
	}
	return res, err
}

// Do is Enqueue for jobs without a result value.
func (q *Queue) Do(ctx context.Context, job func(ctx context.Context) error) error {
	_, err := Enqueue(ctx, q, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, job(ctx)
	})
	return err
}

func (q *Queue) acquire(ctx context.Context) (func(), error) {
	q.waiting.Add(1)
	metrics.QueueWaiting.Inc()
	waitStart := time.Now()

	err := q.admit(ctx)

	q.waiting.Add(-1)
	metrics.QueueWaiting.Dec()
	metrics.QueueWaitDuration.Observe(time.Since(waitStart).Seconds())

	if err != nil {
		metrics.QueueJobsTotal.WithLabelValues("canceled").Inc()
		logging.Debug("Queue admission abandoned: %v", err)
		return nil, err
	}

	q.running.Add(1)
	metrics.QueueRunning.Inc()

	return func() {
		q.running.Add(-1)
		metrics.QueueRunning.Dec()
		q.sem.Release(1)
	}, nil
}

func (q *Queue) admit(ctx context.Context) error {
	if q.gate != nil {
		if err := q.gate.Wait(ctx); err != nil {
			return err
		}
	}
	return q.sem.Acquire(ctx, 1)
}
