// Package metrics exposes prometheus collectors for the monitor loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Metrics struct {
	Cycles        prometheus.Counter
	Switches      *prometheus.CounterVec
	ProbeFailures prometheus.Counter
	ApplyFailures prometheus.Counter
	SyncFailures  prometheus.Counter
	Score         *prometheus.GaugeVec
	Active        *prometheus.GaugeVec
	CycleSeconds  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wanwatch", Name: "cycles_total",
			Help: "Completed monitoring cycles.",
		}),
		Switches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wanwatch", Name: "switches_total",
			Help: "Committed interface switches.",
		}, []string{"forced"}),
		ProbeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wanwatch", Name: "probe_failures_total",
			Help: "Probes that came back unreachable.",
		}),
		ApplyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wanwatch", Name: "route_apply_failures_total",
			Help: "Failed policy-route applications.",
		}),
		SyncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wanwatch", Name: "sync_failures_total",
			Help: "Failed persisted-route synchronizations.",
		}),
		Score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wanwatch", Name: "interface_score",
			Help: "Latest composite score per interface.",
		}, []string{"interface"}),
		Active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wanwatch", Name: "interface_active",
			Help: "1 for the active interface, 0 otherwise.",
		}, []string{"interface"}),
		CycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wanwatch", Name: "cycle_duration_seconds",
			Help:    "Wall time of one monitoring cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	reg.MustRegister(m.Cycles, m.Switches, m.ProbeFailures, m.ApplyFailures,
		m.SyncFailures, m.Score, m.Active, m.CycleSeconds)
	return m
}

// Serve exposes /metrics on addr in a background goroutine, best effort.
func Serve(addr string, reg *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}
