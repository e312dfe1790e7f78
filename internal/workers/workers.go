package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns a worker count for the given per-CPU multiplier, capped at
// limit (0 for no cap). It reads GOMAXPROCS rather than NumCPU so container
// CPU limits are respected.
func Count(multiplier float64, limit int) int {
	n := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForCPU sizes pools of CPU-bound work such as encodes (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO sizes pools of I/O-bound work such as downloads (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// FromEnv returns the positive integer in the named environment variable,
// or fallback when it is unset or invalid. A value of "0" is accepted and
// returned as 0 so operators can disable a limit explicitly.
func FromEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
