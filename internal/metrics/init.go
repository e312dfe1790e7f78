package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, status := range []string{"success", "error", "canceled"} {
		QueueJobsTotal.WithLabelValues(status)
	}

	for _, status := range []string{"success", "error", "panic", "abandoned"} {
		ParallelCallsTotal.WithLabelValues(status)
	}

	kinds := []string{"VIDEO", "AUDIO", "IMAGE", "GIF"}
	for _, k := range kinds {
		for _, outcome := range []string{"fit", "too_big"} {
			FitterAttempts.WithLabelValues(k, outcome)
		}
		for _, result := range []string{"unchanged", "fitted", "aborted", "exhausted", "unsupported"} {
			FitterResults.WithLabelValues(k, result)
		}
	}

	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		ExternalCommandDuration.WithLabelValues(tool)
		ExternalCommandFailures.WithLabelValues(tool)
	}

	for _, status := range []string{"success", "error", "too_large"} {
		DownloadsTotal.WithLabelValues(status)
	}
}

// InitializeTransformMetrics pre-populates the per-transform series for the
// given transform names.
func InitializeTransformMetrics(names ...string) {
	for _, name := range names {
		for _, status := range []string{"success", "user_error", "error", "canceled"} {
			ProcessRequestsTotal.WithLabelValues(name, status)
		}
		ProcessDuration.WithLabelValues(name)
	}
}
