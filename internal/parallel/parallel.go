package parallel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"media-forge/internal/logging"
	"media-forge/internal/metrics"
	"media-forge/internal/tempfile"
)

// PanicError is returned when the bridged function panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("parallel worker panicked: %v", e.Value)
}

type outcome[T any] struct {
	value T
	err   error
}

// Run executes fn on a dedicated OS thread and waits for it. fn receives a
// context carrying a fresh child session; whatever fn reserves there is
// merged into the caller's session when fn returns, whether it succeeded,
// failed or panicked, so every artifact stays owned by the request.
//
// If ctx ends first Run returns ctx.Err() immediately. The worker keeps
// running (native code cannot be interrupted); when it finishes its files
// are merged into the caller's session if that is still open, and deleted
// otherwise. They are therefore not yet in the caller's session when Run
// returns early.
//
// Each call starts exactly one goroutine; workers are not pooled.
func Run[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	parent, ok := tempfile.FromContext(ctx)
	if !ok {
		return zero, tempfile.ErrNoSession
	}
	child := tempfile.NewSession(parent.Dir())

	done := make(chan outcome[T], 1)
	go work(tempfile.NewContext(ctx, child), fn, done)

	select {
	case out := <-done:
		err := out.err
		if mergeErr := parent.Merge(child); mergeErr != nil {
			err = errors.Join(err, fmt.Errorf("merge worker files: %w", mergeErr))
		}
		closeChild(child)
		recordOutcome(err)
		return out.value, err

	case <-ctx.Done():
		metrics.ParallelCallsTotal.WithLabelValues("abandoned").Inc()
		logging.Debug("parallel call abandoned: %v", ctx.Err())
		go func() {
			<-done
			if err := parent.Merge(child); err != nil {
				if errors.Is(err, tempfile.ErrClosed) {
					logging.Debug("request ended before abandoned worker, its files were deleted")
				} else {
					logging.Warn("merge abandoned worker files: %v", err)
				}
			}
			closeChild(child)
		}()
		return zero, ctx.Err()
	}
}

func work[T any](ctx context.Context, fn func(ctx context.Context) (T, error), done chan<- outcome[T]) {
	// libvips and other native libraries keep per-thread state.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	metrics.ParallelWorkersActive.Inc()
	defer metrics.ParallelWorkersActive.Dec()

	var out outcome[T]
	defer func() {
		if r := recover(); r != nil {
			out = outcome[T]{err: &PanicError{Value: r, Stack: debug.Stack()}}
			logging.Error("parallel worker panicked: %v", r)
		}
		done <- out
	}()

	out.value, out.err = fn(ctx)
}

func closeChild(child *tempfile.Session) {
	if err := child.Close(); err != nil {
		logging.Warn("parallel worker cleanup incomplete: %v", err)
	}
}

func recordOutcome(err error) {
	var pe *PanicError
	switch {
	case err == nil:
		metrics.ParallelCallsTotal.WithLabelValues("success").Inc()
	case errors.As(err, &pe):
		metrics.ParallelCallsTotal.WithLabelValues("panic").Inc()
	default:
		metrics.ParallelCallsTotal.WithLabelValues("error").Inc()
	}
}
