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

	"photovoice/internal/compose"
	"photovoice/internal/config"
	"photovoice/internal/httpapi"
	"photovoice/internal/observability"
	"photovoice/internal/resolve"
	"photovoice/internal/session"
	"photovoice/internal/upstream/dubber"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
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
	dubberHTTPClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: transport}
	dubberClient := dubber.New(cfg.DubberBaseURL, cfg.DubberAPIKey, dubberHTTPClient, dubber.WithObserver(metrics.ObserveDubber))

	store := session.NewStore(session.Factory{
		Client:       dubberClient,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
		Observer:     metrics.ObserveJob,
	})
	resolver := resolve.New(dubberClient)
	orchestrator := compose.New(resolver, dubberClient, cfg.CharacterQuota)

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Store:          store,
		Resolver:       resolver,
		Orchestrator:   orchestrator,
		Upstream:       dubberClient,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Synthesis requests block while the speech job is polled to
		// completion, so the write timeout must outlast the poll deadline.
		WriteTimeout: cfg.PollTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr)
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
