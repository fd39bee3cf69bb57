// Package metrics exposes the caster's Prometheus instrumentation,
// wired to the same client_golang collectors the rest of the pack's
// service examples use for their own HTTP/gRPC front-ends.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the caster registers.
type Metrics struct {
	MountsOnline      prometheus.Gauge
	SubscribersOnline prometheus.Gauge
	BytesRelayed      prometheus.Counter
	UploadsTotal      prometheus.Counter
	SubscriberEvictions *prometheus.CounterVec
	ParserTimeouts    prometheus.Counter
}

// New constructs and registers the caster's metrics against registry.
// Passing a fresh prometheus.NewRegistry() (rather than the global
// DefaultRegisterer) keeps repeated test construction from panicking on
// duplicate registration.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		MountsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ntripcaster",
			Name:      "mounts_online",
			Help:      "Number of mounts currently receiving an upload.",
		}),
		SubscribersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ntripcaster",
			Name:      "subscribers_online",
			Help:      "Number of currently-connected rover subscribers.",
		}),
		BytesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ntripcaster",
			Name:      "bytes_relayed_total",
			Help:      "Total bytes received from uploaders.",
		}),
		UploadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ntripcaster",
			Name:      "uploads_total",
			Help:      "Total number of accepted uploader connections.",
		}),
		SubscriberEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ntripcaster",
			Name:      "subscriber_evictions_total",
			Help:      "Subscriber connections evicted, labeled by reason.",
		}, []string{"reason"}),
		ParserTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ntripcaster",
			Name:      "rtcm_parser_timeouts_total",
			Help:      "Times the RTCM metadata parser hit its bounded scan limit.",
		}),
	}

	registry.MustRegister(
		m.MountsOnline,
		m.SubscribersOnline,
		m.BytesRelayed,
		m.UploadsTotal,
		m.SubscriberEvictions,
		m.ParserTimeouts,
	)
	return m
}
