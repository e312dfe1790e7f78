package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"media-forge/internal/download"
	"media-forge/internal/ffmpeg"
	"media-forge/internal/fitter"
	"media-forge/internal/handlers"
	"media-forge/internal/logging"
	"media-forge/internal/media"
	"media-forge/internal/mediatype"
	"media-forge/internal/memory"
	"media-forge/internal/metrics"
	"media-forge/internal/middleware"
	"media-forge/internal/normalize"
	"media-forge/internal/process"
	"media-forge/internal/queue"
	"media-forge/internal/startup"
	"media-forge/internal/transforms"
)

func main() {
	startTime := time.Now()

	// Configure GOMEMLIMIT before anything allocates heavily
	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memResult)

	// External tools
	runner := ffmpeg.NewRunner(config.FFmpegPath, config.FFprobePath)
	toolsErr := runner.Available()
	startup.LogToolsInit(toolsErr)
	startup.LogVipsInit(config.VipsConcurrency, media.InitVips(config.VipsConcurrency))

	prober := ffmpeg.NewProber(runner)
	classifier := mediatype.NewClassifier(prober)
	encoder := ffmpeg.NewEncoder(runner, prober, classifier)

	// Admission queue, held back under memory pressure
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	q := queue.New(config.QueueCapacity, queue.WithGate(monitor))
	startup.LogQueueInit(q.Capacity(), monitor.Enabled())

	fitCfg := fitter.Config{
		UploadLimit: int64(config.UploadSizeLimit),
		AbortLimit:  int64(config.AbortSizeLimit),
		SoftLimit:   int64(config.SoftSizeLimit),
	}
	if err := fitCfg.Validate(); err != nil {
		startup.LogFatal("Size limits: %v", err)
	}

	catalog := transforms.New(encoder, prober, classifier, transforms.Limits{
		MaxResolution: config.MaxResolution,
		MaxFPS:        config.MaxFPS,
	})
	metrics.InitializeMetrics()
	metrics.InitializeTransformMetrics(catalog.Names()...)

	proc := process.New(process.Deps{
		Queue:      q,
		Fetcher:    download.New(nil, int64(config.MaxDownloadSize)),
		Classifier: classifier,
		Normalizer: normalize.New(normalize.Limits{
			MinResolution: config.MinResolution,
			MaxResolution: config.MaxResolution,
			MaxFrames:     config.MaxFrames,
			MaxFPS:        config.MaxFPS,
		}, prober, encoder, classifier),
		Reencoder: encoder,
		Fitter:    fitter.New(fitCfg, prober, encoder, classifier, q),
		APNG:      prober,
	})

	h := handlers.New(proc, catalog, q, config, handlers.WithReadiness(func() bool {
		return toolsErr == nil && !monitor.Paused()
	}))

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.RequestID(middleware.Logger(loggingConfig)(router))

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		// Responses stream media produced after long jobs
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = startMetricsServer(config.MetricsPort, h.MetricsHandler())
	}

	go handleShutdown(srv, metricsSrv, runner, monitor)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	h.Register(r)
	return r
}

func startMetricsServer(port string, handler http.Handler) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	return srv
}

func handleShutdown(srv, metricsSrv *http.Server, runner *ffmpeg.Runner, monitor *memory.Monitor) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Killing running ffmpeg processes")
	runner.Cleanup()
	startup.LogShutdownStepComplete("External tools stopped")

	startup.LogShutdownStep("Stopping memory monitor")
	monitor.Stop()
	startup.LogShutdownStepComplete("Memory monitor stopped")

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Shutting down libvips")
	media.ShutdownVips()
	startup.LogShutdownStepComplete("libvips stopped")

	startup.LogShutdownComplete()
}
