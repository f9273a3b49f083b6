package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/ArYaN9696/QuitQ/internal/health"
	"github.com/ArYaN9696/QuitQ/internal/service/idempotency"
	"github.com/ArYaN9696/QuitQ/internal/service/outbox"
	"github.com/ArYaN9696/QuitQ/internal/transport/httpapi"
	"github.com/ArYaN9696/QuitQ/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Run поднимает REST API, gRPC health, ops-эндпоинты и фоновые воркеры.
// Возвращает nil после отмены ctx и корректной остановки всех компонентов.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := log.WithField("component", "app")
	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close dependencies")
		}
	}()

	apiHandler := newAPIHandler(deps, cfg, logger)
	opsHandler := newOpsRouter(newHealthHandler(deps))
	grpcServer, healthServer := newGRPCServer(logger)

	outboxWorker := outbox.NewWorker(deps.Store.Repositories().Outbox, deps.Publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(deps.DLQPublisher),
		outbox.WithConfig(outbox.Config{
			PollInterval:   cfg.OutboxPollInterval,
			BatchSize:      cfg.OutboxBatchSize,
			MaxAttempts:    cfg.OutboxMaxAttempts,
			RetryBaseDelay: cfg.OutboxRetryDelay,
		}),
	)
	cleanupWorker := idempotency.NewCleanupWorker(deps.IdempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, "api", &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           apiHandler,
			ReadHeaderTimeout: readHeaderTimeout,
		}, logger)
	})
	g.Go(func() error {
		return serveHTTP(gctx, "ops", &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           opsHandler,
			ReadHeaderTimeout: readHeaderTimeout,
		}, logger)
	})
	g.Go(func() error {
		return serveGRPC(gctx, cfg.GRPCAddr, grpcServer, healthServer, logger)
	})
	g.Go(func() error { return outboxWorker.Run(gctx) })
	g.Go(func() error { return cleanupWorker.Run(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("commerce service stopped")
	return nil
}

func newAPIHandler(deps *Dependencies, cfg Config, logger *log.Entry) http.Handler {
	apiLogger := logger.WithField("component", "http-api")
	repos := deps.Store.Repositories()
	handler := httpapi.NewHandler(deps.Ledger, deps.Reconciler, repos.Carts, repos.Catalog, apiLogger)
	idem := httpapi.NewIdempotency(deps.IdempotencyRepo, cfg.IdempotencyTTL, apiLogger)
	return httpapi.NewRouter(handler, idem, apiLogger)
}

func newHealthHandler(deps *Dependencies) *health.Handler {
	handler := health.NewHandler(version.Version())
	for name, checker := range deps.Checkers {
		handler.RegisterChecker(name, checker)
	}
	return handler
}

// newOpsRouter отдаёт метрики Prometheus и health-пробы.
func newOpsRouter(healthHandler *health.Handler) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler.ServeHTTP)
	r.Get("/readyz", healthHandler.ReadinessHandler)
	r.Get("/livez", health.LivenessHandler)
	return r
}

func newGRPCServer(logger *log.Entry) (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := grpchealth.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return server, healthServer
}

// serveHTTP обслуживает srv до отмены ctx, затем даёт запросам shutdownTimeout на завершение.
func serveHTTP(ctx context.Context, name string, srv *http.Server, logger *log.Entry) error {
	lis, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s server: %w", name, err)
	}
	entry := logger.WithFields(log.Fields{"server": name, "addr": lis.Addr().String()})

	errCh := make(chan error, 1)
	go func() {
		entry.Info("http server listening")
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			entry.WithError(err).Warn("http server shutdown with error")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server: %w", name, err)
	}
}

func serveGRPC(ctx context.Context, addr string, server *grpc.Server, healthServer *grpchealth.Server, logger *log.Entry) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen grpc server: %w", err)
	}
	entry := logger.WithField("addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		entry.Info("grpc server listening")
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			entry.Warn("graceful stop timed out, forcing grpc server stop")
			server.Stop()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("grpc server: %w", err)
	}
}
