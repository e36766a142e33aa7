// Package metrics collects Prometheus metrics and serves the ops endpoints.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"freegames_bot/internal/model"
)

// Collector records fetch, cycle and delivery metrics.
type Collector struct {
	fetches       *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	deliveries    *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freegames_fetch_total",
			Help: "Feed source fetches by result.",
		}, []string{"result"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freegames_cycles_total",
			Help: "Polling cycles by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "freegames_cycle_duration_seconds",
			Help:    "Duration of polling cycles.",
			Buckets: prometheus.DefBuckets,
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freegames_deliveries_total",
			Help: "Delivery decisions by outcome.",
		}, []string{"outcome"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "freegames_last_success_timestamp_seconds",
			Help: "Unix time of the last successful cycle.",
		}),
	}

	reg.MustRegister(
		c.fetches,
		c.cycles,
		c.cycleDuration,
		c.deliveries,
		c.lastSuccess,
	)

	return c
}

// RecordFetch counts one feed source fetch.
func (c *Collector) RecordFetch(_ string, err error) {
	c.fetches.WithLabelValues(result(err)).Inc()
}

// RecordCycle records the outcome of one polling cycle.
func (c *Collector) RecordCycle(report model.DeliveryReport, took time.Duration, err error) {
	c.cycles.WithLabelValues(result(err)).Inc()
	c.cycleDuration.Observe(took.Seconds())

	c.deliveries.WithLabelValues("delivered").Add(float64(report.Delivered))
	c.deliveries.WithLabelValues("failed").Add(float64(report.Failed))
	c.deliveries.WithLabelValues("skipped_dedup").Add(float64(report.SkippedDedup))
	c.deliveries.WithLabelValues("skipped_preference").Add(float64(report.SkippedPreference))

	if err == nil {
		c.lastSuccess.SetToCurrentTime()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Trigger requests an immediate polling cycle.
type Trigger interface {
	Trigger()
}

// Router serves /metrics, /healthz and POST /trigger.
func Router(gatherer prometheus.Gatherer, trigger Trigger) http.Handler {
	r := chi.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Post("/trigger", func(w http.ResponseWriter, _ *http.Request) {
		trigger.Trigger()
		w.WriteHeader(http.StatusAccepted)
	})

	return r
}
