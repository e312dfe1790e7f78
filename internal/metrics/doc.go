// Package metrics provides Prometheus instrumentation for media-forge.
//
// All metrics are prefixed with "mediaforge_" and registered with the default
// registry through promauto, so importing the package is enough to expose
// them on the /metrics endpoint served by main.
//
// # Metric Categories
//
//   - HTTP: request totals, durations and in-flight requests.
//   - Queue: capacity, running and waiting jobs, admission wait time and
//     job totals by terminal status.
//   - Parallel: dedicated worker threads in use and bridged call outcomes.
//   - Sessions: open sessions and temp file reservations, deletions,
//     hand-offs and deletion failures. In a healthy process reserved minus
//     deleted minus released stays close to zero between requests.
//   - Fitter: corrective encode attempts and final results per media kind.
//   - External tools: ffmpeg/ffprobe durations, failures and live processes.
//   - Pipeline: request outcomes per transform, end-to-end duration and
//     input downloads.
//   - Memory: usage ratio against the configured limit and admission pauses.
//
// InitializeMetrics pre-creates the labelled series so dashboards do not
// show gaps before the first event.
package metrics
