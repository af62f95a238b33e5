package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/biometria-se/async-messaged/internal/config"
	"github.com/biometria-se/async-messaged/internal/logging"
	"github.com/biometria-se/async-messaged/internal/procname"
	"github.com/biometria-se/async-messaged/internal/router"
	"github.com/biometria-se/async-messaged/internal/telemetry"
	"github.com/biometria-se/async-messaged/internal/transform"
)

// routerExitTimeout bounds how long main waits for the router goroutine
// to return after an abort before giving up on a clean shutdown.
const routerExitTimeout = 3 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	log := logging.New("daemon")

	if err := procname.Set(procname.DaemonName); err != nil {
		log.Warn("failed to set process name", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, procname.DaemonName, config.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""))
	if err != nil {
		log.Error("failed to initialize tracer", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Warn("error shutting down tracer", "error", err)
		}
	}()

	metrics := telemetry.NewRouterMetrics()
	metricsAddr := config.GetEnv("GRIZZLY_EXTRAS_METRICS_ADDR", "")
	if metricsAddr != "" {
		go serveMetrics(log, metricsAddr)
	}

	transformers := transform.NewDefaultRegistry()

	r, err := router.New(log, transformers, metrics)
	if err != nil {
		log.Error("failed to create router", "error", err)
		return 1
	}

	// Mirrors the reference daemon: signals set a one-shot abort event
	// rather than acting directly, so a second SIGINT/SIGTERM is a no-op.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info("router starting", slog.String("frontend", "tcp://127.0.0.1:5554"))

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Info("received signal, aborting router", slog.String("signal", sig.String()))
	case err := <-done:
		// the router stopped on its own, e.g. a bind failure surfaced
		// after construction; report its own exit status.
		if err != nil {
			log.Error("router exited with error", "error", err)
			return 1
		}
		log.Info("router exited cleanly")
		return 0
	}

	r.Abort()

	select {
	case err := <-done:
		if err != nil {
			log.Error("router exited with error", "error", err)
			return 1
		}
		log.Info("router exited cleanly")
		return 0
	case <-time.After(routerExitTimeout):
		// the router itself cannot be killed from here the way a
		// separate OS process could; logging and returning is the best
		// this process can do; the abort channel close still propagates
		// to every worker goroutine so they stop accepting new work.
		log.Warn("router did not exit within the shutdown timeout")
		return 1
	}
}

func serveMetrics(log *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics listening", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server failed", "error", err)
	}
}
