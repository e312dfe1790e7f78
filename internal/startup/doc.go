// Package startup handles configuration loading and startup/shutdown
// logging.
//
// # Configuration
//
// [LoadConfig] layers three sources, lowest precedence first: built-in
// defaults ([Defaults]), an optional YAML file (MEDIAFORGE_CONFIG, or
// mediaforge.yaml in the working directory) and environment variables:
//
//   - PORT, METRICS_PORT, METRICS_ENABLED, LOG_HEALTH_CHECKS
//   - TEMP_DIR: where every request's intermediate files live
//   - MIN_RESOLUTION, MAX_RESOLUTION, MAX_FRAMES, MAX_FPS: input bounds
//   - UPLOAD_SIZE_LIMIT, ABORT_SIZE_LIMIT, SOFT_SIZE_LIMIT: output size
//     envelope; sizes accept plain bytes or humanized values ("25MiB")
//   - MAX_DOWNLOAD_SIZE, REQUEST_TIMEOUT
//   - QUEUE_CAPACITY: concurrent jobs, 0 disables gating
//   - VIPS_CONCURRENCY, FFMPEG_PATH, FFPROBE_PATH
//   - LOG_LEVEL / DEBUG (see the logging package)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT (see the memory package)
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// The Log* functions print the boxed sections the server emits while it
// starts and stops.
package startup
