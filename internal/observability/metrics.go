package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the research digest bot.
// Metrics are organized by subsystem: sessions, runs, papers, sources, LLM
// operations, and message delivery. All counters and histograms are registered
// via promauto with the default Prometheus registry.
type Metrics struct {
	// EventsReceived counts inbound Telegram events, labeled by kind.
	EventsReceived *prometheus.CounterVec

	// UnauthorizedEvents counts events rejected by the access controller.
	UnauthorizedEvents prometheus.Counter

	// RunsStarted counts pipeline runs initiated.
	RunsStarted prometheus.Counter

	// RunsCompleted counts pipeline runs that produced a digest.
	RunsCompleted prometheus.Counter

	// RunsFailed counts pipeline runs that failed at the discovery stage.
	RunsFailed prometheus.Counter

	// RunsDiscarded counts completed runs whose result was dropped after a cancel.
	RunsDiscarded prometheus.Counter

	// RunDuration observes the end-to-end duration of pipeline runs in seconds.
	RunDuration prometheus.Histogram

	// PapersDiscovered counts papers returned by search queries.
	PapersDiscovered prometheus.Counter

	// PapersDuplicate counts papers skipped because the ledger already held them.
	PapersDuplicate prometheus.Counter

	// PapersSummarized counts papers that reached the digest.
	PapersSummarized prometheus.Counter

	// PapersFailed counts papers excluded by fetch or generation failure.
	PapersFailed prometheus.Counter

	// SourceRequestsTotal counts HTTP requests to arXiv, labeled by endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests to arXiv, labeled by
	// endpoint and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes arXiv request duration in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// LLMRequestsTotal counts generation requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed generation requests, labeled by
	// operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes generation request duration in seconds.
	LLMRequestDuration *prometheus.HistogramVec

	// MessagesSent counts outbound Telegram messages.
	MessagesSent prometheus.Counter

	// MessagesFailed counts outbound Telegram messages that failed to send.
	MessagesFailed prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of inbound events by kind",
		}, []string{"kind"}),
		UnauthorizedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unauthorized_events_total",
			Help:      "Total number of events rejected as unauthorized",
		}),

		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of pipeline runs started",
		}),
		RunsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of pipeline runs completed successfully",
		}),
		RunsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of pipeline runs that failed",
		}),
		RunsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_discarded_total",
			Help:      "Total number of run results discarded after cancellation",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),

		PapersDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_discovered_total",
			Help:      "Total number of papers discovered",
		}),
		PapersDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_duplicate_total",
			Help:      "Total number of papers skipped as already processed",
		}),
		PapersSummarized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_summarized_total",
			Help:      "Total number of papers summarized into digests",
		}),
		PapersFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_failed_total",
			Help:      "Total number of papers excluded by fetch or generation failure",
		}),

		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to arXiv",
		}, []string{"endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to arXiv",
		}, []string{"endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to arXiv in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),

		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests by operation",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests by operation",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),

		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of Telegram messages sent",
		}),
		MessagesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_failed_total",
			Help:      "Total number of Telegram messages that failed to send",
		}),
	}
}

// RecordEvent records an inbound event by kind.
func (m *Metrics) RecordEvent(kind string) {
	m.EventsReceived.WithLabelValues(kind).Inc()
}

// RecordUnauthorized records an event rejected by the access controller.
func (m *Metrics) RecordUnauthorized() {
	m.UnauthorizedEvents.Inc()
}

// RecordRunStarted records that a pipeline run has started.
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
}

// RecordRunCompleted records that a pipeline run has completed.
func (m *Metrics) RecordRunCompleted(durationSeconds float64) {
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunFailed records that a pipeline run has failed.
func (m *Metrics) RecordRunFailed(durationSeconds float64) {
	m.RunsFailed.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunDiscarded records a run result dropped after cancellation.
func (m *Metrics) RecordRunDiscarded() {
	m.RunsDiscarded.Inc()
}

// RecordPapersDiscovered records papers returned by a search.
func (m *Metrics) RecordPapersDiscovered(count int) {
	m.PapersDiscovered.Add(float64(count))
}

// RecordPaperDuplicates records papers skipped by the ledger.
func (m *Metrics) RecordPaperDuplicates(count int) {
	m.PapersDuplicate.Add(float64(count))
}

// RecordPaperSummarized records a paper that reached the digest.
func (m *Metrics) RecordPaperSummarized() {
	m.PapersSummarized.Inc()
}

// RecordPaperFailed records a paper excluded from the digest.
func (m *Metrics) RecordPaperFailed() {
	m.PapersFailed.Inc()
}

// RecordSourceRequest records a request to arXiv.
func (m *Metrics) RecordSourceRequest(endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to arXiv.
func (m *Metrics) RecordSourceRequestFailed(endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(endpoint, errorType).Inc()
}

// RecordLLMRequest records a generation request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64) {
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
}

// RecordLLMRequestFailed records a failed generation request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}

// RecordMessageSent records an outbound Telegram message.
func (m *Metrics) RecordMessageSent() {
	m.MessagesSent.Inc()
}

// RecordMessageFailed records an outbound Telegram message delivery failure.
func (m *Metrics) RecordMessageFailed() {
	m.MessagesFailed.Inc()
}
