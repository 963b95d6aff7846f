package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/placementcell/placement-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	applicationsSubmitted  prometheus.Counter
	applicationTransitions *prometheus.CounterVec
	consentsRevoked        prometheus.Counter
	approvalsDecided       *prometheus.CounterVec
	notificationsSent      *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
	submittedCount       uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	applicationsSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "applications_submitted_total",
		Help: "Total applications accepted by the gatekeeper",
	})

	applicationTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "application_transitions_total",
		Help: "Total application lifecycle transitions by event",
	}, []string{"event"})

	consentsRevoked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consents_revoked_total",
		Help: "Total consent revocations",
	})

	approvalsDecided := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "approval_requests_decided_total",
		Help: "Total dual-control decisions by outcome",
	}, []string{"status"})

	notificationsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Total outbox dispatch outcomes",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dbQueryDuration,
		applicationsSubmitted, applicationTransitions, consentsRevoked,
		approvalsDecided, notificationsSent, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:               registry,
		handler:                handler,
		requestDuration:        requestDuration,
		requestTotal:           requestTotal,
		dbQueryDuration:        dbQueryDuration,
		applicationsSubmitted:  applicationsSubmitted,
		applicationTransitions: applicationTransitions,
		consentsRevoked:        consentsRevoked,
		approvalsDecided:       approvalsDecided,
		notificationsSent:      notificationsSent,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordApplicationSubmitted counts an accepted submission.
func (m *MetricsService) RecordApplicationSubmitted() {
	if m == nil {
		return
	}
	m.applicationsSubmitted.Inc()
	atomic.AddUint64(&m.submittedCount, 1)
}

// RecordApplicationTransition counts a lifecycle transition.
func (m *MetricsService) RecordApplicationTransition(event models.ApplicationEvent) {
	if m == nil {
		return
	}
	m.applicationTransitions.WithLabelValues(string(event)).Inc()
}

// RecordConsentRevoked counts a revocation.
func (m *MetricsService) RecordConsentRevoked() {
	if m == nil {
		return
	}
	m.consentsRevoked.Inc()
}

// RecordApprovalDecided counts a dual-control decision.
func (m *MetricsService) RecordApprovalDecided(status models.ApprovalStatus) {
	if m == nil {
		return
	}
	m.approvalsDecided.WithLabelValues(string(status)).Inc()
}

// RecordNotificationDispatch counts a dispatch outcome.
func (m *MetricsService) RecordNotificationDispatch(status models.NotificationStatus) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(string(status)).Inc()
}

// Snapshot returns aggregated metrics suitable for the ops endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)
	submitted := atomic.LoadUint64(&m.submittedCount)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		ApplicationsSubmitted:    submitted,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
