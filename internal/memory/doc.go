// Package memory applies heap-based backpressure to job admission.
//
// ConfigureFromEnv translates a container memory limit into GOMEMLIMIT so
// the Go heap leaves headroom for ffmpeg and libvips. A Monitor samples heap
// usage and, above the pause ratio, holds new queue admissions in Wait until
// usage falls below the resume ratio. Running jobs are left alone; the queue
// consults Wait before acquiring a slot.
package memory
