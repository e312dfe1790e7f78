// Package queue is the process-wide admission gate for heavy media work.
//
// Every ffmpeg invocation and every native image transform runs as a job of
// one shared Queue, so the number of encodes in flight stays bounded no
// matter how many requests arrive at once. Admission is FIFO (the
// underlying weighted semaphore queues waiters in order), which bounds how
// long any job can wait while capacity exists.
//
//	q := queue.New(cfg.QueueCapacity, queue.WithGate(monitor))
//	out, err := queue.Enqueue(ctx, q, func(ctx context.Context) (*tempfile.File, error) {
//		return encoder.Resize(ctx, in, 640, 480)
//	})
//
// Capacity 0 disables gating for deployments that limit concurrency
// elsewhere.
package queue
