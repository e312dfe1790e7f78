package process

import (
	"context"
	"sync"
)

// Status lines sent while a request moves through the pipeline.
const (
	StatusDownloading = "Downloading..."
	StatusQueued      = "Your command is in the queue..."
	StatusForging     = "Forging..."
	StatusUploading   = "Uploading..."
)

// Reporter receives progress for one request. Status replaces the current
// progress line; Notice is a one-off message such as a resize warning.
type Reporter interface {
	Status(msg string)
	Notice(msg string)
}

type nopReporter struct{}

func (nopReporter) Status(string) {}
func (nopReporter) Notice(string) {}

// Recorder is a Reporter that keeps everything it receives.
type Recorder struct {
	mu       sync.Mutex
	statuses []string
	notices  []string
}

// Status records a status line.
func (r *Recorder) Status(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, msg)
}

// Notice records a notice.
func (r *Recorder) Notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, msg)
}

// Statuses returns the status lines in order.
func (r *Recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

// Notices returns the notices in order.
func (r *Recorder) Notices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...)
}

// Resolver finds the source locations of a request's media inputs. It may
// return fewer than n.
type Resolver interface {
	Resolve(ctx context.Context, n int) ([]string, error)
}

// URLs is a Resolver over a fixed list, in order.
type URLs []string

// Resolve returns up to n of the listed URLs.
func (u URLs) Resolve(_ context.Context, n int) ([]string, error) {
	if n > len(u) {
		n = len(u)
	}
	return append([]string(nil), u[:n]...), nil
}
