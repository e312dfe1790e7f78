package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"media-forge/internal/logging"
	"media-forge/internal/memory"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// LoadConfig prints the startup banner, loads the configuration (see Load),
// logs every resolved value and prepares the temp directory.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	section("CONFIGURATION")
	cfg, err := Load(ConfigPath())
	if err != nil {
		return nil, err
	}
	cfg.log()

	logging.Info("")
	section("DIRECTORY SETUP")
	if cfg.TempDir, err = filepath.Abs(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("failed to resolve temp directory path: %w", err)
	}
	logging.Info("  Temp directory (absolute): %s", cfg.TempDir)
	if err := ensureDirectory(cfg.TempDir, "temp"); err != nil {
		return nil, fmt.Errorf("temp directory error: %w", err)
	}
	logging.Debug("  Testing temp directory write access...")
	if err := testWriteAccess(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("temp directory is not writable (required for every request): %w", err)
	}
	logging.Info("  [OK] Temp directory is writable")

	return cfg, nil
}

func section(title string) {
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("")
	section("MEMORY")
	switch result.Source {
	case "GOMEMLIMIT":
		logging.Info("  GOMEMLIMIT:      %s (from environment)", humanize.IBytes(uint64(result.GoMemLimit)))
	case "MEMORY_LIMIT":
		logging.Info("  Container limit: %s", humanize.IBytes(uint64(result.ContainerLimit)))
		logging.Info("  GOMEMLIMIT:      %s (%.0f%%)", humanize.IBytes(uint64(result.GoMemLimit)), result.Ratio*100)
	default:
		logging.Info("  No memory limit configured (set MEMORY_LIMIT or GOMEMLIMIT)")
	}
}

// LogToolsInit logs external tool availability. A missing ffmpeg leaves the
// server up, but every media transform will fail.
func LogToolsInit(err error) {
	logging.Info("")
	section("EXTERNAL TOOLS")
	if err != nil {
		logging.Warn("  ffmpeg/ffprobe check failed: %v", err)
		logging.Warn("  Media transforms will fail until they are installed")
		return
	}
	logging.Info("  [OK] ffmpeg and ffprobe are available")
}

// LogVipsInit logs libvips startup.
func LogVipsInit(concurrency int, err error) {
	if err != nil {
		logging.Warn("  libvips unavailable (%v), image transforms use the pure Go fallback", err)
		return
	}
	logging.Info("  [OK] libvips started (concurrency %d)", concurrency)
}

// LogQueueInit logs the admission queue setup.
func LogQueueInit(capacity int, memoryGated bool) {
	logging.Info("")
	section("JOB QUEUE")
	if capacity == 0 {
		logging.Info("  Admission gating disabled (QUEUE_CAPACITY=0)")
		return
	}
	logging.Info("  Capacity:        %d concurrent jobs", capacity)
	if memoryGated {
		logging.Info("  Memory gate:     ON (admissions pause under memory pressure)")
	} else {
		logging.Info("  Memory gate:     OFF")
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })
	return routes, err
}

// LogHTTPRoutes logs the registered routes at debug level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}
		logging.Debug("  Registered routes (%d total):", len(routes))
		for _, route := range routes {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	section(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
                    _ _             __
   _ __ ___   ___  __| (_) __ _      / _| ___  _ __ __ _  ___
  | '_ ' _ \ / _ \/ _' | |/ _' |____| |_ / _ \| '__/ _' |/ _ \
  | | | | | |  __/ (_| | | (_| |____|  _| (_) | | | (_| |  __/
  |_| |_| |_|\___|\__,_|_|\__,_|    |_|  \___/|_|  \__, |\___|
                                                   |___/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	if entries, err := os.ReadDir(path); err == nil && len(entries) > 0 {
		// Files left by a crashed process are not owned by any session.
		logging.Warn("    %s directory holds %d entries from a previous run", name, len(entries))
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
