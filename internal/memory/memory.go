package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"media-forge/internal/logging"
	"media-forge/internal/metrics"
)

// Config holds memory backpressure settings.
type Config struct {
	// LimitBytes is the heap budget. 0 falls back to GOMEMLIMIT, and if
	// that is unset the monitor never pauses.
	LimitBytes int64

	// ResumeRatio is the usage fraction below which a paused monitor resumes.
	ResumeRatio float64

	// PauseRatio is the usage fraction at which new admissions are held.
	PauseRatio float64

	// Interval is how often heap usage is sampled.
	Interval time.Duration
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig() Config {
	return Config{
		ResumeRatio: 0.7,
		PauseRatio:  0.85,
		Interval:    5 * time.Second,
	}
}

// Monitor samples heap usage and holds queue admissions while usage sits
// above the pause ratio. Jobs already running are never interrupted.
type Monitor struct {
	cfg   Config
	limit int64

	// sample reports the current heap allocation; replaced in tests.
	sample func() uint64

	mu      sync.RWMutex
	current uint64
	paused  bool
	resume  chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMonitor creates a monitor. Call Start to begin sampling.
func NewMonitor(cfg Config) *Monitor {
	limit := cfg.LimitBytes
	if limit == 0 {
		if goLimit := debug.SetMemoryLimit(-1); goLimit > 0 && goLimit < 1<<62 {
			limit = goLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %s", humanize.IBytes(uint64(limit)))
		}
	}
	if limit == 0 {
		logging.Warn("Memory monitor: no memory limit configured, admission backpressure disabled")
	}

	return &Monitor{
		cfg:    cfg,
		limit:  limit,
		sample: heapAlloc,
		resume: make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Enabled reports whether the monitor has a limit to enforce.
func (m *Monitor) Enabled() bool {
	return m != nil && m.limit > 0
}

// Start begins periodic sampling. It is a no-op without a limit.
func (m *Monitor) Start() {
	if !m.Enabled() {
		return
	}
	go m.loop()
}

// Stop ends sampling and releases anyone blocked in Wait.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) loop() {
	interval := m.cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) check() {
	alloc := m.sample()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit <= 0 {
		return
	}

	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.cfg.PauseRatio && !m.paused:
		logging.Warn("Memory critical (%.1f%% of %s), holding new jobs", usage*100, humanize.IBytes(uint64(m.limit)))
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case usage < m.cfg.ResumeRatio && m.paused:
		logging.Info("Memory recovered (%.1f%% of limit), admitting jobs", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// Wait blocks while the monitor is paused. It returns nil once admissions
// may proceed (or the monitor is stopped) and ctx.Err() if ctx ends first.
func (m *Monitor) Wait(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return nil
	}
	resume := m.resume
	m.mu.RUnlock()

	logging.Debug("Admission waiting for memory to recover")
	select {
	case <-resume:
		return nil
	case <-m.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether admissions are currently held.
func (m *Monitor) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns the last sampled usage fraction, or 0 without a limit.
func (m *Monitor) Usage() float64 {
	if m.limit <= 0 {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.current) / float64(m.limit)
}

// Limit returns the enforced heap budget in bytes.
func (m *Monitor) Limit() int64 {
	return m.limit
}
