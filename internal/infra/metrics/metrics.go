// internal/infra/metrics/metrics.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Backend API metrics
var (
	// APIRequestsTotal counts backend API calls by method and status class (2xx, 4xx, ...).
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total backend API requests by method and status class",
		},
		[]string{"method", "status"},
	)

	// APIRequestDuration tracks backend API latency in seconds (headers received).
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Backend API request duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// TokenRefreshesTotal counts refresh attempts by outcome
	// (success, failure, missing_token, discarded).
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Access token refresh attempts by outcome",
		},
		[]string{"outcome"},
	)

	// TokenRefreshWaiters counts requests that waited on an in-flight refresh.
	TokenRefreshWaiters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "token_refresh_waiters_total",
			Help: "Requests queued behind an in-flight token refresh",
		},
	)
)

// Chat stream metrics
var (
	// StreamsTotal counts assistant reply streams by outcome (done, error, cancelled).
	StreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_streams_total",
			Help: "Assistant reply streams by outcome",
		},
		[]string{"outcome"},
	)

	StreamChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_stream_chunks_total",
			Help: "Text chunks received from assistant reply streams",
		},
	)
)

// Bot metrics
var (
	BotCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Telegram commands handled by command and result",
		},
		[]string{"command", "result"},
	)

	ScheduledJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Cron job executions by job and result",
		},
		[]string{"job", "result"},
	)
)

// StatusClass maps an HTTP status code to its class label, e.g. 404 -> "4xx".
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

// ObserveAPIRequest records one backend call.
func ObserveAPIRequest(method string, code int, elapsed time.Duration) {
	APIRequestsTotal.WithLabelValues(method, StatusClass(code)).Inc()
	APIRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("Metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("Metrics server stopped")
	}
}
