// Package server provides the shared service lifecycle runner.
// cmd/otpserver delegates to server.Run for signal handling, config loading,
// observability init, health checks, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aelexs/sms-otp/internal/config"
	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/observability"
)

// SetupDeps is what a service receives to register its routes.
type SetupDeps struct {
	Config *config.Config
	Logger *slog.Logger
	Mux    *http.ServeMux
}

// CleanupFunc releases what Setup acquired. It runs after the HTTP server
// has drained.
type CleanupFunc func(ctx context.Context) error

// Params configures a service's lifecycle runner.
type Params struct {
	// Name identifies the service (e.g. "otpserver").
	Name string

	// PortFromConfig extracts the HTTP port for this service from config.
	PortFromConfig func(cfg *config.Config) int

	// Setup registers service routes on the shared mux. Optional.
	Setup func(ctx context.Context, deps SetupDeps) (CleanupFunc, error)
}

// Run executes the full service lifecycle: signal handling, config loading,
// observability initialization, HTTP server with health checks, and graceful
// shutdown. If ln is non-nil, it is used instead of creating a new listener
// from config (enables port-0 testing).
func Run(ctx context.Context, p Params, ln net.Listener) error {
	// Signal-based cancellation: ctx.Done() closes on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize structured logging with secret redaction
	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: p.Name,
		Environment: cfg.Environment,
	})

	// --- Startup order: telemetry -> service setup -> HTTP server ---

	serviceName := p.Name
	if cfg.OTEL.ServiceName != "" {
		serviceName = cfg.OTEL.ServiceName
	}
	telemetry, err := observability.InitTelemetry(ctx, observability.TelemetryConfig{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}

	// Health check shutdown coordination via atomic flag.
	var shuttingDown atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if shuttingDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"shutting_down","service":%q}`, p.Name)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":%q}`, p.Name)
	})

	cleanup := CleanupFunc(func(context.Context) error { return nil })
	if p.Setup != nil {
		c, setupErr := p.Setup(ctx, SetupDeps{Config: cfg, Logger: logger, Mux: mux})
		if setupErr != nil {
			shutdownTelemetry(telemetry, logger)
			return fmt.Errorf("setup %s: %w", p.Name, setupErr)
		}
		if c != nil {
			cleanup = c
		}
	}

	// Bind listener (use injected listener or create from config).
	if ln == nil {
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", p.PortFromConfig(cfg)))
		if err != nil {
			_ = cleanup(context.Background())
			shutdownTelemetry(telemetry, logger)
			return fmt.Errorf("listen: %w", err)
		}
	}

	server := &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// OTP waits hold the response open for up to MaxWaitTimeout.
		WriteTimeout: domain.MaxWaitTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Structured concurrency via errgroup ---
	g, ctx := errgroup.WithContext(ctx)

	// Goroutine 1: Serve HTTP
	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("addr", ln.Addr().String()),
			slog.String("environment", cfg.Environment),
			slog.String("otp_provider", cfg.OTP.Provider),
		)
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	// Goroutine 2: waits for context cancellation, then drains.
	// Shutdown order is explicit reverse of startup: HTTP server -> service -> telemetry.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")
		// Everything before the OTEL flush must finish inside this deadline.
		stepsDeadline := time.Now().Add(domain.GracefulShutdownTimeout - domain.ShutdownOTELTimeout)

		// 1. Mark shutting down: health checks return 503
		shuttingDown.Store(true)

		// 2. Drain delay: let callers observe the 503
		time.Sleep(domain.ShutdownDrainDelay)

		// 3. Drain HTTP server (reverse of startup: HTTP started last, stops first)
		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := server.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}

		// 4. Release service resources with what is left of the budget
		cleanupCtx, cleanupCancel := context.WithDeadline(context.Background(), stepsDeadline)
		defer cleanupCancel()
		if cleanupErr := cleanup(cleanupCtx); cleanupErr != nil {
			logger.Error("service cleanup error", slog.String("error", cleanupErr.Error()))
		}

		// 5. Flush OTEL
		shutdownTelemetry(telemetry, logger)

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}

func shutdownTelemetry(t *observability.Telemetry, logger *slog.Logger) {
	otelCtx, otelCancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
	defer otelCancel()
	if err := t.Shutdown(otelCtx); err != nil {
		logger.Error("failed to shutdown telemetry", slog.String("error", err.Error()))
	}
}
