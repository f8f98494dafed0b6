// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes run counters for the collection pipeline. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cafe outcomes recorded by CafeOutcome.
const (
	OutcomeExported = "exported"
	OutcomeRejected = "rejected"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Metrics groups the collectors registered for one run.
type Metrics struct {
	registry *prometheus.Registry

	CacheLookups   *prometheus.CounterVec
	RemoteCalls    *prometheus.CounterVec
	RemoteLatency  *prometheus.HistogramVec
	Cafes          *prometheus.CounterVec
	CitiesFinished prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cafe_collector_cache_lookups_total",
			Help: "Cache lookups by tier and result (hit or miss)",
		}, []string{"tier", "result"}),
		RemoteCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cafe_collector_remote_calls_total",
			Help: "Remote API calls by service and outcome",
		}, []string{"service", "outcome"}),
		RemoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cafe_collector_remote_latency_seconds",
			Help:    "Remote API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		Cafes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cafe_collector_cafes_total",
			Help: "Cafes processed by terminal outcome",
		}, []string{"outcome"}),
		CitiesFinished: f.NewCounter(prometheus.CounterOpts{
			Name: "cafe_collector_cities_finished_total",
			Help: "Queue items fully processed",
		}),
	}
}

// CacheLookup records a hit or a miss on tier.
func (m *Metrics) CacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(tier, result).Inc()
}

// RemoteCall records one completed call to service.
func (m *Metrics) RemoteCall(service string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RemoteCalls.WithLabelValues(service, outcome).Inc()
	m.RemoteLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

// CafeOutcome records the terminal state of one cafe.
func (m *Metrics) CafeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Cafes.WithLabelValues(outcome).Inc()
}

// CityFinished records a completed queue item.
func (m *Metrics) CityFinished() {
	if m == nil {
		return
	}
	m.CitiesFinished.Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
