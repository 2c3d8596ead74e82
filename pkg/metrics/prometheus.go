// Package metrics provides Prometheus metrics for the TNVS commission service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Scoring pipeline
	metricSubmissions  *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	scoringLatency     prometheus.Histogram
	tierOutcomes       *prometheus.CounterVec

	// Money flows
	commissionsCredited *prometheus.CounterVec
	commissionAmount    prometheus.Counter
	duplicateBookings   prometheus.Counter
	boundaryFees        *prometheus.CounterVec
	payoutTransitions   *prometheus.CounterVec
	payoutExecLatency   prometheus.Histogram
	ledgerAppends       *prometheus.CounterVec

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueueTotal       prometheus.Counter
	queueDequeueTotal       prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tnvs",
		subsystem:        "commission",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.metricSubmissions = m.counterVec("metric_submissions_total",
		"Metric submissions received by frequency", "frequency")
	m.validationFailures = m.counterVec("metric_validation_failures_total",
		"Metric submissions rejected by the validator, per offending metric", "metric")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds",
		"Time to validate, score and evaluate one submission")
	m.tierOutcomes = m.counterVec("tier_outcomes_total",
		"Tier evaluations by resulting status and tier", "status", "tier")

	m.commissionsCredited = m.counterVec("commissions_credited_total",
		"Commission transactions written, by tier", "tier")
	m.commissionAmount = m.counter("commission_amount_pesos_total",
		"Sum of credited commission amounts in pesos")
	m.duplicateBookings = m.counter("duplicate_bookings_total",
		"Booking-completion events detected as replays")
	m.boundaryFees = m.counterVec("boundary_fees_total",
		"Boundary fees recorded by settlement model", "model")
	m.payoutTransitions = m.counterVec("payout_transitions_total",
		"Payout state transitions by target status", "status")
	m.payoutExecLatency = m.histogram("payout_execution_latency_milliseconds",
		"Latency of payment gateway executions")
	m.ledgerAppends = m.counterVec("ledger_appends_total",
		"Ledger transactions appended by type", "type")

	m.queueSize = m.gauge("queue_size", "Current size of the submission queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum submission queue capacity")
	m.queueEnqueueTotal = m.counter("queue_enqueue_total", "Submissions enqueued")
	m.queueDequeueTotal = m.counter("queue_dequeue_total", "Submissions dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Submissions rejected by the queue")
	m.workerCount = m.gauge("worker_count", "Scoring workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Submissions a worker failed to process")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
}

// RecordMetricSubmission counts one metric submission.
func RecordMetricSubmission(frequency string) {
	globalManager.metricSubmissions.WithLabelValues(frequency).Inc()
}

// RecordValidationFailure counts a rejected metric by name.
func RecordValidationFailure(metric string) {
	globalManager.validationFailures.WithLabelValues(metric).Inc()
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordTierOutcome counts a tier evaluation result.
func RecordTierOutcome(status, tier string) {
	globalManager.tierOutcomes.WithLabelValues(status, tier).Inc()
}

// RecordCommissionCredited counts a credited commission and adds its amount.
func RecordCommissionCredited(tier string, amount float64) {
	globalManager.commissionsCredited.WithLabelValues(tier).Inc()
	globalManager.commissionAmount.Add(amount)
}

// RecordDuplicateBooking counts a replayed booking event.
func RecordDuplicateBooking() {
	globalManager.duplicateBookings.Inc()
}

// RecordBoundaryFee counts a stored boundary fee.
func RecordBoundaryFee(model string) {
	globalManager.boundaryFees.WithLabelValues(model).Inc()
}

// RecordPayoutTransition counts a payout entering status.
func RecordPayoutTransition(status string) {
	globalManager.payoutTransitions.WithLabelValues(status).Inc()
}

// RecordPayoutExecutionLatency records gateway latency in milliseconds.
func RecordPayoutExecutionLatency(latencyMs float64) {
	globalManager.payoutExecLatency.Observe(latencyMs)
}

// RecordLedgerAppend counts a ledger transaction.
func RecordLedgerAppend(txType string) {
	globalManager.ledgerAppends.WithLabelValues(txType).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueued submission.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueTotal.Inc()
}

// RecordQueueDequeue counts a dequeued submission.
func RecordQueueDequeue() {
	globalManager.queueDequeueTotal.Inc()
}

// RecordQueueEnqueueError counts a submission the queue refused.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed submission.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
