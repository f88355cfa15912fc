package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	// gRPC request metrics (ops health service)
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	grpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Queue depth, refreshed by the stats sampler
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_sync_queue_depth",
			Help: "Rows in gateway_sync_queue by state",
		},
		[]string{"state"},
	)
)

// SetQueueDepth publishes the current row count for a queue state
func SetQueueDepth(state string, count int64) {
	queueDepth.WithLabelValues(state).Set(float64(count))
}

// UnaryServerInterceptor returns a gRPC unary server interceptor that records Prometheus metrics
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		grpcRequestDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())

		statusCode := "OK"
		if err != nil {
			st, _ := status.FromError(err)
			statusCode = st.Code().String()
		}
		grpcRequestsTotal.WithLabelValues(info.FullMethod, statusCode).Inc()

		return resp, err
	}
}
