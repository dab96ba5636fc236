package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"media-publisher/internal/database"
	"media-publisher/internal/filesystem"
	"media-publisher/internal/handlers"
	"media-publisher/internal/indexer"
	"media-publisher/internal/logging"
	"media-publisher/internal/media"
	"media-publisher/internal/memory"
	"media-publisher/internal/metrics"
	"media-publisher/internal/middleware"
	"media-publisher/internal/publisher"
	"media-publisher/internal/startup"
	"media-publisher/internal/storage"
)

const (
	shutdownTimeout   = 30 * time.Second
	collectorInterval = time.Minute
)

func main() {
	startTime := time.Now()

	// GOMEMLIMIT must be in place before anything large is allocated
	startup.LogMemoryConfig(memory.ConfigureFromEnv())

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"public":   config.PublicDir,
		"cache":    config.CacheDir,
		"database": config.DatabaseDir,
	}))
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	ctx := context.Background()

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	if config.Encoder == media.EncoderVips {
		if err := media.InitVips(); err != nil {
			logging.Warn("libvips unavailable, falling back to imaging: %v", err)
		}
	}
	encoder, err := media.NewEncoder(config.Encoder)
	if err != nil {
		startup.LogFatal("Failed to create encoder: %v", err)
	}

	startup.LogThumbnailInit(config.ThumbnailsEnabled)
	thumbs := media.NewThumbnailGenerator(config.CacheDir, config.ThumbnailsEnabled)

	idx := indexer.New(db, thumbs, indexer.Config{
		Root:          config.PublicDir,
		Workers:       config.IndexWorkers,
		QueueSize:     config.IndexQueueSize,
		SweepInterval: config.IndexInterval,
	})
	health := idx.GetHealthStatus()
	startup.LogIndexerInit(health.Workers, health.QueueCapacity, config.IndexInterval)
	idx.Start()
	startup.LogIndexerStarted()

	backend, err := storage.New(ctx, config.StorageConfig(), db, nil)
	if err != nil {
		startup.LogFatal("Failed to create %s storage backend: %v", config.StorageBackend, err)
	}

	gate := memory.NewGate(memory.DefaultConfig())
	gate.Start()

	startup.LogPublisherInit(backend.Name(), encoder.Name(), config.NotifyMode, config.NotifyTimeout)
	pub := publisher.New(publisher.Options{
		Backend:       backend,
		Notifier:      idx,
		Encoder:       encoder,
		Gate:          gate,
		NotifyMode:    config.NotifyMode,
		NotifyTimeout: config.NotifyTimeout,
		SourceRoots:   config.SourceDirs,
	})

	metrics.SetAppInfo(startup.Version, startup.Commit, runtime.Version(), backend.Name())
	metrics.InitializeMetrics(backend.Name())
	collector := metrics.NewCollector(db, collectorInterval)
	collector.Start()

	h := handlers.New(db, idx, pub, thumbs, config)
	router := h.Router()
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           buildHandler(router, db, config),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      config.NotifyTimeout + 60*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(h, config.MetricsPort)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, metricsSrv, idx, gate, collector, db)

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

// buildHandler wraps the router in the middleware chain. Requests pass
// through request id, access log, auth and compression in that order;
// per-route metrics run inside the router so route templates are known.
func buildHandler(router *mux.Router, verifier middleware.TokenVerifier, config *startup.Config) http.Handler {
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogThumbnails = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks

	var handler http.Handler = router
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)
	handler = middleware.BearerAuth(verifier)(handler)
	handler = middleware.Logger(loggingConfig)(handler)
	return middleware.RequestID(handler)
}

func newMetricsServer(h *handlers.Handlers, port string) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", h.MetricsHandler())
	metricsMux.HandleFunc("/health", h.LivenessCheck)

	return &http.Server{
		Addr:         ":" + port,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

func handleShutdown(srv, metricsSrv *http.Server, idx *indexer.Indexer, gate *memory.Gate, collector *metrics.Collector, db *database.Database) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop taking requests first so no publish starts against a stopped indexer
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

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownStep("Stopping indexer")
	idx.Stop()
	startup.LogShutdownStepComplete("Indexer stopped")

	startup.LogShutdownStep("Stopping memory gate")
	gate.Stop()
	startup.LogShutdownStepComplete("Memory gate stopped")

	startup.LogShutdownStep("Closing database")
	if err := db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	media.ShutdownVips()
	startup.LogShutdownComplete()
}
