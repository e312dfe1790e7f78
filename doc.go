// Package main provides the entry point for the media-forge server.
//
// media-forge runs named transforms (resize, trim, fps, togif, tovideo,
// topng, stack, thumbnail, info) on media fetched from URLs and returns a
// file that fits within a configured upload limit.
//
// # Application Lifecycle
//
//  1. Memory Configuration: sets GOMEMLIMIT from GOMEMLIMIT or MEMORY_LIMIT
//  2. Configuration Loading: defaults, then mediaforge.yaml, then environment
//  3. Component Initialization:
//     - ffmpeg/ffprobe runner and prober
//     - libvips for the stack and thumbnail transforms
//     - Memory monitor gating the job queue
//     - Size fitter, input normalizer and downloader
//     - Transform catalog and request processor
//  4. HTTP Server Setup: routes, request ids, access log and metrics
//  5. Graceful Shutdown: on SIGINT/SIGTERM the HTTP server drains, running
//     ffmpeg processes are killed and libvips is shut down
//
// # HTTP Server
//
//  1. Main Server (default port 8080):
//     - POST /api/process/{name}: run a transform
//     - GET /api/transforms: list the catalog
//     - GET /api/queue: queue capacity and occupancy
//     - /health, /livez, /readyz, /version
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//
// # Environment Variables
//
//   - MEDIAFORGE_CONFIG: YAML config file (default: ./mediaforge.yaml if present)
//   - PORT, METRICS_PORT, METRICS_ENABLED, LOG_HEALTH_CHECKS
//   - TEMP_DIR: where request artifacts are written
//   - MIN_RESOLUTION, MAX_RESOLUTION, MAX_FRAMES, MAX_FPS
//   - UPLOAD_SIZE_LIMIT, ABORT_SIZE_LIMIT, SOFT_SIZE_LIMIT, MAX_DOWNLOAD_SIZE
//   - REQUEST_TIMEOUT, QUEUE_CAPACITY, VIPS_CONCURRENCY
//   - FFMPEG_PATH, FFPROBE_PATH
//   - LOG_LEVEL: debug/info/warn/error
//   - GOMEMLIMIT, MEMORY_LIMIT, MEMORY_RATIO
//
// # Related Packages
//
//   - [media-forge/internal/process]: request orchestration
//   - [media-forge/internal/transforms]: the transform catalog
//   - [media-forge/internal/fitter]: upload size fitting
//   - [media-forge/internal/ffmpeg]: ffmpeg and ffprobe
//   - [media-forge/internal/tempfile]: per-request artifact sessions
//   - [media-forge/internal/queue]: global admission queue
package main
