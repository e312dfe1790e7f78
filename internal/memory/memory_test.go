package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func newTestMonitor(limit int64) (*Monitor, *atomic.Uint64) {
	var alloc atomic.Uint64
	m := NewMonitor(Config{LimitBytes: limit, ResumeRatio: 0.5, PauseRatio: 0.8, Interval: time.Hour})
	m.sample = alloc.Load
	return m, &alloc
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PauseRatio <= cfg.ResumeRatio {
		t.Errorf("pause ratio %.2f should exceed resume ratio %.2f", cfg.PauseRatio, cfg.ResumeRatio)
	}
	if cfg.Interval != 5*time.Second {
		t.Errorf("Interval = %v, want 5s", cfg.Interval)
	}
}

func TestMonitorPauseAndResume(t *testing.T) {
	m, alloc := newTestMonitor(1000)

	alloc.Store(900)
	m.check()
	if !m.Paused() {
		t.Fatal("expected monitor to pause at 90% usage")
	}

	// Between the ratios the state is sticky.
	alloc.Store(600)
	m.check()
	if !m.Paused() {
		t.Fatal("expected monitor to stay paused between ratios")
	}

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	alloc.Store(100)
	m.check()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after resume")
	}
	if got := m.Usage(); got != 0.1 {
		t.Errorf("Usage = %v, want 0.1", got)
	}
}

func TestMonitorWaitHonoursContext(t *testing.T) {
	m, alloc := newTestMonitor(1000)
	alloc.Store(1000)
	m.check()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := m.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	m, alloc := newTestMonitor(1000)
	alloc.Store(1000)
	m.check()

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()

	m.Stop()
	m.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait = %v after Stop", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not release waiter")
	}
}

func TestNilMonitorWait(t *testing.T) {
	var m *Monitor
	if err := m.Wait(context.Background()); err != nil {
		t.Errorf("nil monitor Wait = %v", err)
	}
	if m.Enabled() {
		t.Error("nil monitor should not be enabled")
	}
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", DefaultMemoryRatio},
		{"0.5", 0.5},
		{"1", 1},
		{"0", DefaultMemoryRatio},
		{"1.5", DefaultMemoryRatio},
		{"abc", DefaultMemoryRatio},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseRatio(tt.in); got != tt.want {
				t.Errorf("parseRatio(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfigureFromEnvWithoutLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")

	result := ConfigureFromEnv()
	if result.Configured || result.Source != "none" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestConfigureFromEnvInvalidLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "lots")

	if result := ConfigureFromEnv(); result.Configured {
		t.Errorf("expected invalid MEMORY_LIMIT to be ignored, got %+v", result)
	}
}
