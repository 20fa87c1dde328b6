package service

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// MetricsService owns the Prometheus registry for the API and the batch jobs.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	batchRuns     *prometheus.CounterVec
	batchDuration prometheus.Histogram
	batchRecords  *prometheus.CounterVec
	lateFeeAmount *prometheus.CounterVec
	payments      *prometheus.CounterVec
	reminders     *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	runCount             uint64
	runFailures          uint64
	paymentsOK           uint64
	paymentsRejected     uint64
	remindersSent        uint64
	remindersFailed      uint64
}

// NewMetricsService registers every collector on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		batchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "late_fee_batch_runs_total",
			Help: "Late fee batch runs by outcome",
		}, []string{"status", "dry_run"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "late_fee_batch_duration_seconds",
			Help:    "Wall time of late fee batch runs",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		batchRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "late_fee_batch_records_total",
			Help: "Fees evaluated by the late fee batch, by outcome",
		}, []string{"outcome"}),
		lateFeeAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "late_fee_amount_total",
			Help: "Sum of late fees charged or projected",
		}, []string{"dry_run"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fee_payments_total",
			Help: "Payment attempts by result",
		}, []string{"result"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fee_reminders_total",
			Help: "Guardian reminders by delivery result",
		}, []string{"result"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheHits, m.cacheMisses,
		m.dbQueryDuration,
		m.batchRuns, m.batchDuration, m.batchRecords, m.lateFeeAmount,
		m.payments, m.reminders,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
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

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveLateFeeRun records one finished batch report.
func (m *MetricsService) ObserveLateFeeRun(report *models.LateFeeBatchReport) {
	if m == nil || report == nil {
		return
	}
	dryRun := strconv.FormatBool(report.DryRun)
	m.batchRuns.WithLabelValues(string(report.Status), dryRun).Inc()
	atomic.AddUint64(&m.runCount, 1)
	if report.Status == models.BatchStatusFailed {
		atomic.AddUint64(&m.runFailures, 1)
	}
	if !report.FinishedAt.IsZero() && !report.StartedAt.IsZero() {
		m.batchDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}
	for _, line := range report.Lines {
		m.batchRecords.WithLabelValues(string(line.Outcome)).Inc()
	}
	if len(report.Failures) > 0 {
		m.batchRecords.WithLabelValues("failed").Add(float64(len(report.Failures)))
	}
	total, _ := report.TotalCharged.Float64()
	m.lateFeeAmount.WithLabelValues(dryRun).Add(total)
}

// RecordPayment counts a payment attempt.
func (m *MetricsService) RecordPayment(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.payments.WithLabelValues("accepted").Inc()
		atomic.AddUint64(&m.paymentsOK, 1)
		return
	}
	m.payments.WithLabelValues("rejected").Inc()
	atomic.AddUint64(&m.paymentsRejected, 1)
}

// RecordReminder counts one guardian notification by result.
func (m *MetricsService) RecordReminder(result string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(result).Inc()
	switch result {
	case ReminderResultSent:
		atomic.AddUint64(&m.remindersSent, 1)
	case ReminderResultFailed:
		atomic.AddUint64(&m.remindersFailed, 1)
	}
}

// Snapshot returns aggregated counters for the summary endpoint.
func (m *MetricsService) Snapshot() models.FinanceMetricsSnapshot {
	if m == nil {
		return models.FinanceMetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}

	return models.FinanceMetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            ratio,
		LateFeeRuns:              atomic.LoadUint64(&m.runCount),
		LateFeeRunFailures:       atomic.LoadUint64(&m.runFailures),
		PaymentsRecorded:         atomic.LoadUint64(&m.paymentsOK),
		PaymentsRejected:         atomic.LoadUint64(&m.paymentsRejected),
		RemindersSent:            atomic.LoadUint64(&m.remindersSent),
		RemindersFailed:          atomic.LoadUint64(&m.remindersFailed),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
