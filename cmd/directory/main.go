package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hftl-ims-research/wonder/internal/core/services"
	httphandlers "github.com/hftl-ims-research/wonder/internal/handlers/http"
	"github.com/hftl-ims-research/wonder/internal/infrastructure/middleware"
	"github.com/hftl-ims-research/wonder/internal/infrastructure/repositories"
	"github.com/hftl-ims-research/wonder/pkg/config"
	"github.com/hftl-ims-research/wonder/pkg/logger"
	"github.com/hftl-ims-research/wonder/pkg/tracing"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "wonder-directory",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer tp.Shutdown(context.Background())

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	directoryRepo := repoFactory.CreateDirectoryRepository()
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	if cfg.RateLimiting.Enabled {
		router.Use(middleware.RateLimitMiddleware(
			cfg.RateLimiting.HTTP.RequestsPerSecond,
			cfg.RateLimiting.HTTP.Burst,
		))
	}

	handler := httphandlers.NewDirectoryHandler(directoryRepo, authService, log)
	handler.SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Infow("metrics endpoint listening", "address", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Errorw("metrics server stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         cfg.Directory.Address,
		Handler:      router,
		ReadTimeout:  cfg.Directory.ReadTimeout,
		WriteTimeout: cfg.Directory.WriteTimeout,
	}

	go func() {
		log.Infow("directory listening", "address", cfg.Directory.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("directory server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down directory")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Directory.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorw("directory shutdown failed", "error", err)
	}
}
