package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	InboundMessages  *prometheus.CounterVec
	OutboundMessages *prometheus.CounterVec
	Requests         *prometheus.CounterVec
	ScheduledChecks  *prometheus.CounterVec
	AdminAlerts      prometheus.Counter
	OverseerrLatency *prometheus.HistogramVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_messages_total",
				Help:      "Total inbound chat messages processed.",
			}, []string{"kind"}),
			OutboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_messages_total",
				Help:      "Total outbound chat messages sent.",
			}, []string{"kind"}),
			Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "media_requests_total",
				Help:      "Media requests by terminal outcome.",
			}, []string{"outcome"}),
			ScheduledChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduled_checks_total",
				Help:      "Scheduled status checks by result.",
			}, []string{"result"}),
			AdminAlerts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_alerts_total",
				Help:      "Escalations sent to administrator identities.",
			}),
			OverseerrLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "overseerr_request_duration_seconds",
				Help:      "Latency distribution for Overseerr API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation", "status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.InboundMessages,
			metricsInstance.OutboundMessages,
			metricsInstance.Requests,
			metricsInstance.ScheduledChecks,
			metricsInstance.AdminAlerts,
			metricsInstance.OverseerrLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
