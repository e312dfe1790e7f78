package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-forge/internal/process"
	"media-forge/internal/queue"
	"media-forge/internal/startup"
)

// maxBodyBytes bounds the JSON body of a process request.
const maxBodyBytes = 1 << 20

// Processor runs one transform request.
type Processor interface {
	Process(ctx context.Context, req process.Request) (*process.Result, error)
}

// Catalog looks up transforms by name.
type Catalog interface {
	Get(name string) (*process.Transform, bool)
	List() []*process.Transform
}

// QueueStats reports admission queue state.
type QueueStats interface {
	Stats() queue.Stats
}

type Handlers struct {
	proc    Processor
	catalog Catalog
	queue   QueueStats

	tempDir        string
	requestTimeout time.Duration
	started        time.Time
	ready          func() bool
}

// Option customizes Handlers.
type Option func(*Handlers)

// WithReadiness sets the check behind /readyz and /health.
func WithReadiness(ready func() bool) Option {
	return func(h *Handlers) {
		h.ready = ready
	}
}

func New(proc Processor, cat Catalog, q QueueStats, config *startup.Config, opts ...Option) *Handlers {
	h := &Handlers{
		proc:           proc,
		catalog:        cat,
		queue:          q,
		tempDir:        config.TempDir,
		requestTimeout: config.RequestTimeout,
		started:        time.Now(),
		ready:          func() bool { return true },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds every route to r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/transforms", h.ListTransforms).Methods("GET")
	api.HandleFunc("/queue", h.GetQueue).Methods("GET")
	api.HandleFunc("/process/{name}", h.Process).Methods("POST")
}

// MetricsHandler returns the Prometheus metrics handler
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
