// Package metrics collects Prometheus metrics for the PlanetHub services
// and serves them over HTTP together with a health endpoint.
//
// Metrics are opt-in: when Init has not been called, every record function
// is a no-op, so instrumented code paths carry no overhead in deployments
// that do not scrape.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planethub/planethub/internal/logger"
	"github.com/planethub/planethub/pkg/svcerr"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	sessionsStarted prometheus.Counter
)

// Init creates the registry and registers all collectors. Calling Init more
// than once is a no-op.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	if registry != nil {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planethub_commands_total",
			Help: "Commands served, by service, verb, and result code",
		},
		[]string{"service", "verb", "code"},
	)

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planethub_command_duration_seconds",
			Help:    "Command handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "verb"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "planethub_sessions_active",
			Help: "Play-server sessions currently in the session table",
		},
	)

	sessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "planethub_sessions_started_total",
			Help: "Play-server sessions started since process start",
		},
	)

	registry.MustRegister(commandsTotal, commandDuration, activeSessions, sessionsStarted)
}

// IsEnabled reports whether Init has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return registry != nil
}

// RecordCommand counts one served command. The code label is the service
// error code, or "ok" for successful commands.
func RecordCommand(service, verb string, err error, duration time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		return
	}
	code := "ok"
	if err != nil {
		code = strconv.Itoa(svcerr.CodeOf(err))
	}
	commandsTotal.WithLabelValues(service, verb, code).Inc()
	commandDuration.WithLabelValues(service, verb).Observe(duration.Seconds())
}

// SetActiveSessions records the current session-table size.
func SetActiveSessions(n int) {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		return
	}
	activeSessions.Set(float64(n))
}

// SessionStarted counts one session start.
func SessionStarted() {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		return
	}
	sessionsStarted.Inc()
}

// Handler returns the scrape handler for the registry. It returns an error
// when metrics are disabled so that callers do not silently serve an empty
// endpoint.
func Handler() (http.Handler, error) {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		return nil, errors.New("metrics not initialized")
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// Serve runs the metrics HTTP server until the context is cancelled. It
// exposes GET /metrics and GET /health.
func Serve(ctx context.Context, host string, port int) error {
	handler, err := Handler()
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", handler)
	healthy := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
	r.Get("/health", healthy)
	r.Get("/health/ready", healthy)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics listening", "address", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
