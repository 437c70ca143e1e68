// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main runs coapd, a production-shaped CoAP endpoint daemon with
// metrics, health checks, a send-path circuit breaker, per-peer rate
// limiting, and an optional fixed-capacity node pool for constrained
// deployments.
package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/coapkit/coapd/pkg/breaker"
	"github.com/coapkit/coapd/pkg/coap"
	"github.com/coapkit/coapd/pkg/health"
	"github.com/coapkit/coapd/pkg/metrics"
	"github.com/coapkit/coapd/pkg/pool"
	"github.com/coapkit/coapd/pkg/ratelimit"
	"github.com/coapkit/coapd/pkg/registry"
	"github.com/coapkit/coapd/pkg/transport/udp"
)

func main() {
	// Load configuration
	cfg := Config{}
	if err := godotenv.Load(); err != nil {
		// .env file is optional
	}
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	instanceID := uuid.New().String()
	logger = logger.With(slog.String("instance_id", instanceID))
	logger.Info("Starting coapd",
		slog.String("listen_address", cfg.ListenAddress),
		slog.Int("max_retransmit", cfg.MaxRetransmit),
		slog.Int("max_nodes", cfg.MaxNodes))

	m := metrics.New("coapd")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	go serveHTTP("metrics", cfg.MetricsPort, metricsMux, logger)

	// Open the socket
	sock, err := udp.Listen(cfg.ListenAddress)
	if err != nil {
		logger.Error("Failed to open UDP socket", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := sock.SetReadBuffer(cfg.SocketReadBuffer); err != nil {
		logger.Warn("Failed to set read buffer", slog.String("error", err.Error()))
	}
	if err := sock.SetWriteBuffer(cfg.SocketWriteBuffer); err != nil {
		logger.Warn("Failed to set write buffer", slog.String("error", err.Error()))
	}

	// Send-path circuit breaker
	cb := breaker.New(breaker.Config{
		MaxFailures:      cfg.BreakerMaxFailures,
		ResetTimeout:     cfg.BreakerResetTimeout,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
	})
	cb.OnStateChange(func(from, to breaker.State) {
		logger.Warn("Circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		m.ObserveBreakerState(int(to))
		if to == breaker.StateOpen {
			m.CircuitBreakerTrips.Inc()
		}
	})

	// Per-peer rate limiter; capacity 0 disables it
	var limiter coap.RateLimiter
	if cfg.RateLimitCapacity > 0 {
		l := ratelimit.NewLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill, cfg.RateLimitMaxPeers)
		defer l.Close()
		limiter = l
	}

	// Fixed node pool for constrained deployments; 0 selects the heap
	var allocator coap.Allocator
	if cfg.MaxNodes > 0 {
		allocator = pool.New(cfg.MaxNodes)
	}

	reg := registry.New()
	registerResources(reg, logger)

	ep := coap.NewEndpointContext(sock, coap.EndpointConfig{
		MaxRetransmit:   cfg.MaxRetransmit,
		ResponseTimeout: cfg.ResponseTimeoutSeconds * cfg.TicksPerSecond,
		TicksPerSecond:  cfg.TicksPerSecond,
		MaxPDUSize:      cfg.MaxPDUSize,
		Logger:          logger,
		PRNG:            coap.NewPRNG(seedFrom(cfg.ListenAddress)),
		Allocator:       allocator,
		Registry:        reg,
		WellKnown:       registry.NewLinkFormatRenderer(reg),
		Breaker:         cb,
		RateLimiter:     limiter,
		Instrumentation: m,
		ResponseHandler: func(_ *coap.EndpointContext, remote coap.PeerAddress, _ *coap.PDU, recv *coap.PDU, tid coap.TransactionID) {
			logger.Info("Response received",
				slog.String("peer", remote.String()),
				slog.Int("code", int(recv.Code)),
				slog.Int("transaction_id", int(tid)))
		},
		AddrConverter:        udp.ToPeerAddress,
		ReverseAddrConverter: udp.FromPeerAddress,
	})

	var shuttingDown atomic.Bool
	healthChecker := health.New(health.Config{
		SocketOpen: func() bool { return !ep.Closed() },
		Draining:   func() bool { return shuttingDown.Load() && !ep.CanExit() },
	})

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", healthChecker.Handler())
	healthMux.HandleFunc("/ready", healthChecker.ReadinessHandler())
	healthMux.HandleFunc("/live", health.LivenessHandler())
	go serveHTTP("health", cfg.HealthPort, healthMux, logger)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	// The engine is single-threaded and cooperative: one goroutine owns
	// Read, Dispatch, and Tick. The read deadline bounds each blocking
	// read so retransmission deadlines are still honored.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ep.Close()
			default:
			}
			if err := sock.SetReadDeadline(time.Now().Add(cfg.TickInterval)); err != nil {
				return err
			}
			ep.Read()
			ep.Dispatch()
			ep.Tick()
			m.SendQueueDepth.Set(float64(ep.SendQueue.Len()))
			m.ReceiveQueueDepth.Set(float64(ep.ReceiveQueue.Len()))
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	shuttingDown.Store(true)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan error)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit")
		os.Exit(1)
	}
}

// seedFrom derives the PRNG seed from the listen address bits xored with
// a clock offset, so two endpoints on one machine don't share a jitter
// sequence.
func seedFrom(listenAddress string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(listenAddress))
	return int64(h.Sum32()) ^ time.Now().UnixNano()
}

// setupLogger builds the structured logger: JSON in production, text for
// local runs. Unparseable levels fall back to info rather than failing
// startup.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// serveHTTP runs one of the daemon's ancillary HTTP listeners. These
// carry probe and scrape traffic only, so the timeouts are short and
// shared.
func serveHTTP(name string, port int, mux *http.ServeMux, logger *slog.Logger) {
	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting HTTP server",
		slog.String("name", name),
		slog.String("address", addr))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("HTTP server error",
			slog.String("name", name),
			slog.String("error", err.Error()))
	}
}
