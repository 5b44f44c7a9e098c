package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application's prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	settlements   *prometheus.CounterVec
	clicks        *prometheus.CounterVec
	paymentStatus *prometheus.CounterVec
	pollAttempts  *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	potTotal      prometheus.Gauge
	jobsProcessed *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
}

// New creates the collectors and registers them on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_time_seconds",
				Help:    "HTTP response time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlements_total",
				Help: "Settlement attempts by effect and outcome",
			},
			[]string{"effect", "outcome"}, // outcome: applied, duplicate, pending, failed
		),
		clicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_clicks_total",
				Help: "Tracked referral clicks by result",
			},
			[]string{"result"}, // recorded, duplicate, rejected
		),
		paymentStatus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_status_transitions_total",
				Help: "Payment status transitions by target status and trigger",
			},
			[]string{"status", "source"},
		),
		pollAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_poll_attempts_total",
				Help: "Payment status poll attempts by processor status",
			},
			[]string{"processor_status"},
		),
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Card processor webhook events by type and result",
			},
			[]string{"type", "result"},
		),
		potTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pot_total_amount",
				Help: "Last observed total of the current pot",
			},
		),
		jobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobs_processed_total",
				Help: "Background jobs processed by queue and result",
			},
			[]string{"queue", "result"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "job_queue_depth",
				Help: "Jobs held in each queue by state",
			},
			[]string{"queue", "state"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.settlements,
		m.clicks,
		m.paymentStatus,
		m.pollAttempts,
		m.webhookEvents,
		m.potTotal,
		m.jobsProcessed,
		m.queueDepth,
	)

	return m
}

// Handler exposes the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(seconds)
}

// RecordSettlement counts a settlement attempt
func (m *Metrics) RecordSettlement(effect, outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(effect, outcome).Inc()
}

// RecordClick counts a referral click result
func (m *Metrics) RecordClick(result string) {
	if m == nil {
		return
	}
	m.clicks.WithLabelValues(result).Inc()
}

// RecordPaymentStatus counts a payment transition
func (m *Metrics) RecordPaymentStatus(status, source string) {
	if m == nil {
		return
	}
	m.paymentStatus.WithLabelValues(status, source).Inc()
}

// RecordPollAttempt counts a poll against the processor
func (m *Metrics) RecordPollAttempt(processorStatus string) {
	if m == nil {
		return
	}
	m.pollAttempts.WithLabelValues(processorStatus).Inc()
}

// RecordWebhookEvent counts a received webhook event
func (m *Metrics) RecordWebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

// SetPotTotal stores the latest pot total
func (m *Metrics) SetPotTotal(total float64) {
	if m == nil {
		return
	}
	m.potTotal.Set(total)
}

// RecordJob counts a processed background job
func (m *Metrics) RecordJob(queue, result string) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(queue, result).Inc()
}

// SetQueueDepth stores the waiting, delayed and failed job counts of a queue
func (m *Metrics) SetQueueDepth(queue string, waiting, delayed, failed int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue, "waiting").Set(float64(waiting))
	m.queueDepth.WithLabelValues(queue, "delayed").Set(float64(delayed))
	m.queueDepth.WithLabelValues(queue, "failed").Set(float64(failed))
}
