package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"media-forge/internal/logging"
	"media-forge/internal/metrics"
)

// Tool names understood by Runner.
const (
	FFmpeg  = "ffmpeg"
	FFprobe = "ffprobe"
)

// Executor runs an external tool and returns its combined output.
type Executor interface {
	Run(ctx context.Context, tool string, args ...string) (string, error)
}

// CommandError is returned when a tool exits non-zero.
type CommandError struct {
	Tool     string
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d: %s", e.Tool, e.ExitCode, lastLine(e.Output))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Runner executes ffmpeg and ffprobe, tracking live processes so they can
// be killed on shutdown.
type Runner struct {
	paths map[string]string

	processMu sync.Mutex
	processes map[uint64]*exec.Cmd
	nextID    uint64
}

// NewRunner creates a runner using the given binaries. Empty paths fall
// back to looking the tool up on PATH.
func NewRunner(ffmpegPath, ffprobePath string) *Runner {
	if ffmpegPath == "" {
		ffmpegPath = FFmpeg
	}
	if ffprobePath == "" {
		ffprobePath = FFprobe
	}
	return &Runner{
		paths:     map[string]string{FFmpeg: ffmpegPath, FFprobe: ffprobePath},
		processes: make(map[uint64]*exec.Cmd),
	}
}

// Available reports whether both tools can be found.
func (r *Runner) Available() error {
	for _, name := range []string{FFmpeg, FFprobe} {
		if _, err := exec.LookPath(r.binary(name)); err != nil {
			return fmt.Errorf("%s not found: %w", name, err)
		}
	}
	return nil
}

func (r *Runner) binary(tool string) string {
	if p, ok := r.paths[tool]; ok {
		return p
	}
	return tool
}

// Run executes tool with args. The returned string is stdout followed by
// stderr, trimmed, with bare carriage returns turned into newlines so
// ffmpeg progress lines stay readable.
func (r *Runner) Run(ctx context.Context, tool string, args ...string) (string, error) {
	label := filepath.Base(tool)
	cmd := exec.CommandContext(ctx, r.binary(tool), args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start %s: %w", label, err)
	}

	id := r.track(cmd)
	logging.Debug("%s started with PID %d: %v", label, cmd.Process.Pid, args)

	err := cmd.Wait()
	r.untrack(id)
	metrics.ExternalCommandDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	output := normalizeOutput(stdout.String(), stderr.String())

	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		metrics.ExternalCommandFailures.WithLabelValues(label).Inc()
		cmdErr := &CommandError{Tool: label, Args: args, ExitCode: -1, Output: output, Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		logging.Error("%s (PID %d) failed: %v\n%s", label, cmd.Process.Pid, args, output)
		return "", cmdErr
	}

	logging.Debug("%s (PID %d) done in %s", label, cmd.Process.Pid, time.Since(start).Round(time.Millisecond))
	return output, nil
}

func (r *Runner) track(cmd *exec.Cmd) uint64 {
	r.processMu.Lock()
	defer r.processMu.Unlock()
	r.nextID++
	r.processes[r.nextID] = cmd
	metrics.ExternalCommandsRunning.Inc()
	return r.nextID
}

func (r *Runner) untrack(id uint64) {
	r.processMu.Lock()
	defer r.processMu.Unlock()
	if _, ok := r.processes[id]; ok {
		delete(r.processes, id)
		metrics.ExternalCommandsRunning.Dec()
	}
}

// Active returns the number of running processes.
func (r *Runner) Active() int {
	r.processMu.Lock()
	defer r.processMu.Unlock()
	return len(r.processes)
}

// Cleanup kills every process still running.
func (r *Runner) Cleanup() {
	r.processMu.Lock()
	defer r.processMu.Unlock()

	for _, cmd := range r.processes {
		if cmd.Process == nil {
			continue
		}
		logging.Info("Killing %s process %d", filepath.Base(cmd.Path), cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil {
			logging.Warn("failed to kill process %d: %v", cmd.Process.Pid, err)
		}
	}
}

func normalizeOutput(stdout, stderr string) string {
	out := strings.TrimSpace(stdout) + strings.TrimSpace(stderr)
	out = strings.ReplaceAll(out, "\r\n", "\n")
	return strings.ReplaceAll(out, "\r", "\n")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
