package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of in-flight HTTP requests",
		},
	)

	campaignsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaigns_started_total",
			Help: "Campaigns moved to sending by the start transition",
		},
	)

	emailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Emails handed to the provider, by result",
		},
		[]string{"result"},
	)

	emailEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_events_total",
			Help: "Provider webhook events applied, by type",
		},
		[]string{"type"},
	)

	contactsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contacts_imported_total",
			Help: "Imported contact rows, by outcome",
		},
		[]string{"outcome"},
	)
)

func RecordCampaignStarted() {
	campaignsStarted.Inc()
}

// RecordEmails adds n sends with the given result ("sent" or "failed").
func RecordEmails(result string, n int) {
	if n > 0 {
		emailsSent.WithLabelValues(result).Add(float64(n))
	}
}

func RecordEmailEvent(eventType string) {
	emailEvents.WithLabelValues(eventType).Inc()
}

func RecordImport(outcome string, n int) {
	if n > 0 {
		contactsImported.WithLabelValues(outcome).Add(float64(n))
	}
}
