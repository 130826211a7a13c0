// Package metrics exposes node counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bmnode"

var (
	registerOnce sync.Once

	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "connections",
			Help:      "Open connections by direction and state.",
		},
		[]string{"direction", "state"},
	)
	admissionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "admissions_rejected_total",
			Help:      "Connections refused by the admission policy.",
		},
		[]string{"direction", "reason"},
	)
	disconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "disconnects_total",
			Help:      "Closed connections by reason.",
		},
		[]string{"reason"},
	)
	envelopes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "envelopes_total",
			Help:      "Envelopes by direction and command.",
		},
		[]string{"direction", "command"},
	)
	parseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "parse_failures_total",
			Help:      "Rejected envelopes and payloads by kind.",
		},
		[]string{"kind"},
	)
	objects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "objects",
			Name:      "total",
			Help:      "Received objects by command and outcome.",
		},
		[]string{"command", "outcome"},
	)
	powSolves = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pow",
			Name:      "solves_total",
			Help:      "Completed proof-of-work searches.",
		},
	)
	powDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pow",
			Name:      "duration_seconds",
			Help:      "Proof-of-work search duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connections, admissionsRejected, disconnects,
			envelopes, parseFailures, objects, powSolves, powDuration)
	})
}

// ConnectionTransition moves one connection between state gauges. An empty
// from or to leaves that side untouched.
func ConnectionTransition(direction, from, to string) {
	RegisterMetrics()
	if from != "" {
		connections.WithLabelValues(direction, from).Dec()
	}
	if to != "" {
		connections.WithLabelValues(direction, to).Inc()
	}
}

func AdmissionRejected(direction, reason string) {
	RegisterMetrics()
	admissionsRejected.WithLabelValues(direction, reason).Inc()
}

func Disconnect(reason string) {
	RegisterMetrics()
	disconnects.WithLabelValues(reason).Inc()
}

func Envelope(direction, command string) {
	RegisterMetrics()
	envelopes.WithLabelValues(direction, command).Inc()
}

func ParseFailure(kind string) {
	RegisterMetrics()
	parseFailures.WithLabelValues(kind).Inc()
}

func Object(command, outcome string) {
	RegisterMetrics()
	objects.WithLabelValues(command, outcome).Inc()
}

func PoWSolved(d time.Duration) {
	RegisterMetrics()
	powSolves.Inc()
	powDuration.Observe(d.Seconds())
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
