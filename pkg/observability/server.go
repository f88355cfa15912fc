package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported for the engine.
const ServiceName = "gateway-sync"

// StartMetricsServer starts an HTTP server for Prometheus metrics and health checks
func StartMetricsServer(port int, healthChecker *HealthChecker, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	if healthChecker != nil {
		mux.HandleFunc("/health", healthChecker.HealthHandler())
	}

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if healthChecker != nil && !healthChecker.Healthy(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	return server
}

// StartGRPCHealthServer serves the standard grpc.health.v1 service and keeps
// its status in step with the health checker until ctx is cancelled.
func StartGRPCHealthServer(ctx context.Context, port int, healthChecker *HealthChecker, interval time.Duration, logger *zap.Logger) (*grpc.Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen grpc health: %w", err)
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryServerInterceptor()))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	reflection.Register(server)

	go watchHealth(ctx, healthChecker, healthSrv, interval)

	go func() {
		logger.Info("gRPC health server listening", zap.String("address", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			logger.Error("gRPC health server error", zap.Error(err))
		}
	}()

	return server, nil
}

func watchHealth(ctx context.Context, hc *HealthChecker, srv *health.Server, interval time.Duration) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if hc != nil && !hc.Healthy(ctx) {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		srv.SetServingStatus("", status)
		srv.SetServingStatus(ServiceName, status)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
