package ffmpeg

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestRunnerCombinesOutput(t *testing.T) {
	sh := requireShell(t)
	r := NewRunner("", "")

	out, err := r.Run(context.Background(), sh, "-c", `printf 'frame=1\rframe=2\n'; printf 'warn' >&2`)
	require.NoError(t, err)
	assert.Equal(t, "frame=1\nframe=2warn", out)
	assert.Equal(t, 0, r.Active())
}

func TestRunnerCommandError(t *testing.T) {
	sh := requireShell(t)
	r := NewRunner("", "")

	_, err := r.Run(context.Background(), sh, "-c", "echo 'Invalid data found' >&2; exit 3")

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "sh", cmdErr.Tool)
	assert.Contains(t, cmdErr.Output, "Invalid data found")
	assert.Contains(t, cmdErr.Error(), "exit code 3")
}

func TestRunnerContextCancel(t *testing.T) {
	sh := requireShell(t)
	r := NewRunner("", "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, sh, "-c", "exec sleep 5")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunnerCleanupKillsProcesses(t *testing.T) {
	sh := requireShell(t)
	r := NewRunner("", "")

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), sh, "-c", "exec sleep 5")
		done <- err
	}()

	require.Eventually(t, func() bool { return r.Active() == 1 }, time.Second, 5*time.Millisecond)
	r.Cleanup()

	select {
	case err := <-done:
		var cmdErr *CommandError
		assert.True(t, errors.As(err, &cmdErr))
	case <-time.After(2 * time.Second):
		t.Fatal("process survived Cleanup")
	}
}

func TestRunnerMissingBinary(t *testing.T) {
	r := NewRunner("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	assert.Error(t, r.Available())

	_, err := r.Run(context.Background(), FFmpeg, "-version")
	assert.Error(t, err)
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "c", lastLine("a\nb\nc\n"))
	assert.Equal(t, "only", lastLine("only"))
}
