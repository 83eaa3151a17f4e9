package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService wraps the Prometheus registry with counters for the HTTP
// surface and the enrollment workflows.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	studentsCreated    prometheus.Counter
	enrollmentFailures prometheus.Counter
	assignmentRows     prometheus.Counter
	bulkRuns           prometheus.Counter
	rosterReloads      *prometheus.CounterVec
}

// NewMetricsService registers the collectors.
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

	studentsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_students_created_total",
		Help: "Students successfully enrolled",
	})

	enrollmentFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_failures_total",
		Help: "Enrollment records that failed",
	})

	assignmentRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_assignment_rows_total",
		Help: "Subject assignment rows written by fan-outs",
	})

	bulkRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_bulk_runs_total",
		Help: "Bulk enrollment runs completed",
	})

	rosterReloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_reloads_total",
		Help: "Roster reloads by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, studentsCreated, enrollmentFailures, assignmentRows, bulkRuns, rosterReloads, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		studentsCreated:    studentsCreated,
		enrollmentFailures: enrollmentFailures,
		assignmentRows:     assignmentRows,
		bulkRuns:           bulkRuns,
		rosterReloads:      rosterReloads,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordEnrollment tallies one enrollment outcome plus its assignment rows.
func (m *MetricsService) RecordEnrollment(success bool, assignmentCount int) {
	if m == nil {
		return
	}
	if success {
		m.studentsCreated.Inc()
	} else {
		m.enrollmentFailures.Inc()
	}
	if assignmentCount > 0 {
		m.assignmentRows.Add(float64(assignmentCount))
	}
}

// RecordBulkRun tallies a completed bulk enrollment.
func (m *MetricsService) RecordBulkRun() {
	if m == nil {
		return
	}
	m.bulkRuns.Inc()
}

// RecordRosterReload tallies a roster reload by outcome (fresh or stale).
func (m *MetricsService) RecordRosterReload(stale bool) {
	if m == nil {
		return
	}
	outcome := "fresh"
	if stale {
		outcome = "stale"
	}
	m.rosterReloads.WithLabelValues(outcome).Inc()
}
