package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clip-splitter/internal/artifacts"
	"clip-splitter/internal/filesystem"
	"clip-splitter/internal/handlers"
	"clip-splitter/internal/jobs"
	"clip-splitter/internal/logging"
	"clip-splitter/internal/media"
	"clip-splitter/internal/memory"
	"clip-splitter/internal/metrics"
	"clip-splitter/internal/middleware"
	"clip-splitter/internal/processor"
	"clip-splitter/internal/retention"
	"clip-splitter/internal/startup"
	"clip-splitter/internal/transcoder"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	startTime := time.Now()

	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	metrics.InitializeMetrics(config.StorageQuota)
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"uploads": config.UploadDir,
		"clips":   config.ClipsDir,
	}))

	// Storage
	store, err := artifacts.NewStore(config.UploadDir, config.ClipsDir)
	if err != nil {
		startup.LogFatal("Failed to initialize storage: %v", err)
	}
	accountant := artifacts.NewAccountant(store, config.StorageQuota)
	used, err := accountant.Usage()
	if err != nil {
		logging.Warn("Failed to measure storage usage: %v", err)
	}
	startup.LogStorageInit(config.StorageQuota, used)

	// Transcoder
	startup.LogTranscoderInit(config.FFmpegPath, config.FFprobePath)
	trans := transcoder.New(transcoder.Config{
		FFmpegPath:  config.FFmpegPath,
		FFprobePath: config.FFprobePath,
		CRF:         config.VideoCRF,
		Bitrate:     config.VideoBitrate,
		FPS:         config.VideoFPS,
		Preset:      config.VideoPreset,
		Watermark:   config.Watermark,
	})

	var posters processor.PosterGenerator
	if config.PostersEnabled {
		posters = media.NewPosterGenerator(trans, true)
	}
	startup.LogPosterInit(config.PostersEnabled)

	registry := jobs.NewRegistry(config.MaxConcurrentJobs)
	proc := processor.New(registry, store, processor.NewFFmpegEncoder(trans), posters)

	// Retention sweeper
	startup.LogSweeperInit(config.RetentionWindow, config.SweepInterval)
	sweeper := retention.NewSweeper(store, registry, config.RetentionWindow, config.SweepInterval)
	sweeper.Start()
	startup.LogSweeperStarted()

	h := handlers.New(registry, store, accountant, trans, proc, config)

	collector := metrics.NewCollector(h, 30*time.Second)
	if config.MetricsEnabled {
		collector.Start()
	}

	router := setupRouter(h, config)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Recover()(middleware.Logger(loggingConfig)(router))

	// Uploads can take as long as the transcode, so there are no body or
	// write deadlines on the app server.
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsRouter := http.NewServeMux()
		metricsRouter.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsRouter,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		return listen(srv, "HTTP server")
	})
	if metricsSrv != nil {
		g.Go(func() error {
			return listen(metricsSrv, "metrics server")
		})
	}
	g.Go(func() error {
		reason := "server error"
		select {
		case sig := <-sigChan:
			reason = sig.String()
		case <-gctx.Done():
		}
		shutdown(reason, h, registry, sweeper, collector, srv, metricsSrv)
		return nil
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:              config.Port,
		MetricsPort:       config.MetricsPort,
		MetricsEnabled:    config.MetricsEnabled,
		MaxConcurrentJobs: config.MaxConcurrentJobs,
		StartupDuration:   time.Since(startTime),
	})

	if err := g.Wait(); err != nil {
		startup.LogFatal("Server error: %v", err)
	}
}

func listen(srv *http.Server, name string) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()

	if config.MetricsEnabled {
		r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	r.HandleFunc("/upload", h.Upload).Methods("POST").Name("upload")

	r.HandleFunc("/clips/{project}/{filename}", h.ServeClip).Methods("GET", "HEAD").Name("clip")
	r.HandleFunc("/clips/{project}/{filename}", h.ClipsPreflight).Methods("OPTIONS")

	// Web client
	if config.StaticEnabled {
		r.PathPrefix("/").Handler(handlers.StaticUI(config.StaticDir)).Methods("GET", "HEAD")
	}

	return r
}

func shutdown(reason string, h *handlers.Handlers, registry *jobs.Registry, sweeper *retention.Sweeper, collector *metrics.Collector, srv, metricsSrv *http.Server) {
	startup.LogShutdownInitiated(reason)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	h.SetDraining()

	startup.LogShutdownStep("Closing admission and cancelling running jobs")
	n := registry.CancelAll()
	startup.LogShutdownStepComplete(fmt.Sprintf("Cancelled %d jobs", n))

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Stopping retention sweeper")
	sweeper.Stop()
	startup.LogShutdownStepComplete("Retention sweeper stopped")

	collector.Stop()

	startup.LogShutdownComplete()
}
