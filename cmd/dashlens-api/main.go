package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashlens/internal/backend"
	"dashlens/internal/config"
	"dashlens/internal/httpapi"
	"dashlens/internal/observability"
	"dashlens/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	upstreamHTTPClient := &http.Client{Timeout: cfg.UpstreamHTTPTimeout, Transport: transport}

	initCtx, cancelInit := context.WithTimeout(context.Background(), cfg.OCR.Timeout)
	registry, err := backend.Init(initCtx, cfg, backend.Options{
		HTTPClient: upstreamHTTPClient,
		Observer:   metrics.ObserveUpstream,
		Logger:     logger,
	})
	cancelInit()
	if err != nil {
		logger.Error("backend initialization failed", "error", err)
		os.Exit(1)
	}

	pipelineService := pipeline.New(registry,
		pipeline.WithMaxPixels(int(cfg.MaxImagePixels)),
		pipeline.WithOCRTimeout(cfg.OCR.Timeout),
		pipeline.WithConcurrency(cfg.InferenceConcurrency),
		pipeline.WithObserver(metrics),
		pipeline.WithLogger(logger),
	)

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Pipeline:       pipelineService,
		Backends:       registry,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	// Writes must outlast the slowest full pipeline run.
	writeTimeout := cfg.OCR.Timeout + cfg.Captioning.Timeout + cfg.Synthesis.Timeout + 10*time.Second

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		avail := registry.Availability()
		logger.Info("server starting",
			"addr", cfg.ListenAddr,
			"service", cfg.ServiceName,
			"ocr", avail.OCR,
			"captioning", avail.Captioning,
			"synthesis", avail.Synthesis,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
