package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the tracker's Prometheus metrics. Data loss under overload
// and unclassifiable events must be observable, not silently hidden; every
// drop path increments a counter here.
type Registry struct {
	registry *prometheus.Registry

	EventsConsumed *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec

	WindowEntries   prometheus.Gauge
	WindowEvictions prometheus.Counter

	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	ActiveClusters prometheus.Gauge
	LeadEdges      prometheus.Gauge

	AlertsEmitted    *prometheus.CounterVec
	AlertsSuppressed prometheus.Counter

	TierTransitions *prometheus.CounterVec
}

// NewRegistry creates a registry with all tracker metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,

		EventsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alpha_events_consumed_total",
				Help: "Raw chain events consumed, by chain",
			},
			[]string{"chain"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alpha_events_dropped_total",
				Help: "Raw events dropped before windowing, by reason",
			},
			[]string{"reason"},
		),

		WindowEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alpha_window_entries",
				Help: "Transactions currently held in the sliding window",
			},
		),

		WindowEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alpha_window_evictions_total",
				Help: "Window entries evicted by horizon or capacity bounds",
			},
		),

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alpha_detection_cycles_total",
				Help: "Detection cycles by result",
			},
			[]string{"result"},
		),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alpha_detection_cycle_duration_seconds",
				Help:    "Duration of committed detection cycles",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),

		ActiveClusters: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alpha_active_clusters",
				Help: "Clusters in the committed assignment",
			},
		),

		LeadEdges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alpha_lead_edges",
				Help: "Lead/follower edges in the committed snapshot",
			},
		),

		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alpha_alerts_emitted_total",
				Help: "Alerts emitted to the alert stream, by kind",
			},
			[]string{"kind"},
		),

		AlertsSuppressed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alpha_alerts_suppressed_total",
				Help: "Alerts suppressed by the dedup cooldown",
			},
		),

		TierTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alpha_tier_transitions_total",
				Help: "Wallet tier transitions, by direction",
			},
			[]string{"direction"},
		),
	}

	reg.MustRegister(
		r.EventsConsumed,
		r.EventsDropped,
		r.WindowEntries,
		r.WindowEvictions,
		r.CyclesTotal,
		r.CycleDuration,
		r.ActiveClusters,
		r.LeadEdges,
		r.AlertsEmitted,
		r.AlertsSuppressed,
		r.TierTransitions,
	)

	return r
}

// Handler returns the HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
