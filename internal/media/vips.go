package media

import (
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"media-forge/internal/logging"
)

var (
	vipsMu        sync.Mutex
	vipsStarted   bool
	vipsAvailable bool
)

// vipsLogLevel maps the application level to the quietest libvips level
// that still shows what the operator asked for.
func vipsLogLevel(level logging.LogLevel) vips.LogLevel {
	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo
	case logging.LevelInfo:
		return vips.LogLevelWarning
	case logging.LevelWarn:
		return vips.LogLevelError
	default:
		return vips.LogLevelCritical
	}
}

func vipsLog(domain string, level vips.LogLevel, msg string) {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical:
		logging.Error("[%s] %s", domain, msg)
	case vips.LogLevelWarning:
		logging.Warn("[%s] %s", domain, msg)
	default:
		logging.Debug("[%s] %s", domain, msg)
	}
}

// InitVips starts libvips. Call it once at startup; later calls are no-ops.
// concurrency bounds libvips' internal worker threads per operation.
func InitVips(concurrency int) error {
	vipsMu.Lock()
	defer vipsMu.Unlock()

	if vipsStarted {
		return nil
	}

	vips.LoggingSettings(vipsLog, vipsLogLevel(logging.GetLevel()))
	vips.Startup(&vips.Config{
		ConcurrencyLevel: concurrency,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsStarted = true
	vipsAvailable = true
	logging.Info("libvips initialized (version: %s)", vips.Version)
	return nil
}

// ShutdownVips releases libvips. It cannot be restarted afterwards.
func ShutdownVips() {
	vipsMu.Lock()
	defer vipsMu.Unlock()

	if vipsAvailable {
		vips.Shutdown()
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// VipsAvailable reports whether libvips is running. When it is not, the
// pure-Go imaging implementations are used instead.
func VipsAvailable() bool {
	vipsMu.Lock()
	defer vipsMu.Unlock()
	return vipsAvailable
}
