package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	v1 "github.com/hikemate/trailpack/internal/infrastructure/http/v1"
	"github.com/hikemate/trailpack/internal/infrastructure/http/v1/handler"
	"github.com/hikemate/trailpack/internal/manager"
	"github.com/hikemate/trailpack/internal/store"
	"github.com/hikemate/trailpack/internal/usecase"
	"github.com/hikemate/trailpack/pkg/config"
	"github.com/hikemate/trailpack/pkg/logger"
	"github.com/hikemate/trailpack/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger.Level)

	l.Info("app config", "cfg", cfg)

	// Initialize OpenTelemetry if enabled
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	// Initialize the store backend
	st, err := store.New(cfg.Store, l)
	if err != nil {
		l.Fatal("failed to initialize store", "backend", cfg.Store.Backend, "error", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			l.Error("failed to close store", "error", err)
		}
	}()

	// Initialize use cases and the download manager
	offlineMap := usecase.NewOfflineMapUseCase(st, l)
	downloads := manager.New(st, cfg.Downloader, l)

	// Initialize the HTTP handler
	validate := validator.New()
	h := handler.NewHandler(validate, offlineMap, downloads)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTP.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.Server.ReadTimeout,
		WriteTimeout: cfg.HTTP.Server.WriteTimeout,
		IdleTimeout:  cfg.HTTP.Server.IdleTimeout,
	}

	go func() {
		l.Info("starting http server...", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("http server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	l.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	} else {
		l.Info("http server shutdown completed")
	}

	l.Info("application shutdown completed")
}
