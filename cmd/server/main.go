package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChaseRain/slidegen/internal/api"
	"github.com/ChaseRain/slidegen/internal/infra/config"
	"github.com/ChaseRain/slidegen/internal/infra/httpclient"
	"github.com/ChaseRain/slidegen/internal/infra/limiter"
	"github.com/ChaseRain/slidegen/internal/infra/logger"
	"github.com/ChaseRain/slidegen/internal/service/delivery"
	"github.com/ChaseRain/slidegen/internal/service/generation"
	"github.com/ChaseRain/slidegen/internal/service/orchestrator"
	"github.com/ChaseRain/slidegen/internal/service/session"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Init logger
	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Init HTTP client
	httpClient := httpclient.New(httpclient.Options{
		Timeout: cfg.API.Timeout(),
	})

	// Init limiter
	lim := limiter.New(cfg.Limiter.MaxConcurrent, cfg.Limiter.RatePerSecond)

	// Init services
	genClient := generation.New(cfg.API.BaseURL, httpClient, zapLogger)

	store, err := session.New(ctx, session.Options{
		Type:          cfg.Session.Type,
		TTL:           cfg.Session.TTL(),
		RedisAddr:     cfg.Session.RedisAddr,
		RedisPassword: cfg.Session.RedisPassword,
		RedisDB:       cfg.Session.RedisDB,
	}, zapLogger)
	if err != nil {
		zapLogger.Error("failed to init session store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var archive delivery.Downloader
	if cfg.Delivery.ArchiveDir != "" {
		archive = delivery.NewArchive(cfg.Delivery.ArchiveDir, zapLogger)
	}

	// Init orchestrator
	orch := orchestrator.New(genClient, store, archive, lim, zapLogger, orchestrator.Options{
		SuccessBanner:    time.Duration(cfg.Banner.SuccessSeconds) * time.Second,
		ErrorBanner:      time.Duration(cfg.Banner.ErrorSeconds) * time.Second,
		ValidationBanner: time.Duration(cfg.Banner.ValidationSeconds) * time.Second,
		LimiterWait:      cfg.Limiter.Wait(),
		MaxIdle:          cfg.Session.MaxIdle(),
	})
	go orch.Run(ctx)

	// Init router
	router := api.NewRouter(orch, genClient, zapLogger, api.Options{
		CookieName:     cfg.Session.CookieName,
		CookieMaxAge:   cfg.Session.TTL(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	// Create server
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	// Start server
	go func() {
		zapLogger.Info("starting server",
			"addr", cfg.Server.Addr,
			"api_base_url", cfg.API.BaseURL,
			"session_store", cfg.Session.Type,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Error("server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout()+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", "error", err)
	}
	// stops the sweeper and cancels every pending banner timer
	stop()
	orch.Close()
	zapLogger.Info("server stopped")
}
