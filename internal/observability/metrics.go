package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	gradingRequestsTotal  *prometheus.CounterVec
	gradingLatencySeconds *prometheus.HistogramVec
	gradingErrorsTotal    *prometheus.CounterVec

	gradesRecordedTotal     *prometheus.CounterVec
	latePenaltiesTotal      *prometheus.CounterVec
	versionsCreatedTotal    *prometheus.CounterVec
	notificationsPublished  *prometheus.CounterVec
	uploadRequestsTotal     *prometheus.CounterVec
	uploadRejectedTotal     *prometheus.CounterVec
	uploadLatencySeconds    prometheus.Histogram
	analyticsCacheTotal     *prometheus.CounterVec
	analyticsComputeSeconds *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the grading API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		gradingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_requests_total",
			Help: "Total number of grading API requests served.",
		}, []string{"method", "route", "status"})

		gradingLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_latency_seconds",
			Help:    "Latency distribution for grading API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		gradingErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_errors_total",
			Help: "Total number of error responses returned by grading endpoints.",
		}, []string{"method", "route", "status"})

		gradesRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_grades_recorded_total",
			Help: "Grades written to submissions, by source.",
		}, []string{"source"})

		latePenaltiesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_late_penalties_total",
			Help: "Late penalty records applied or waived.",
		}, []string{"outcome"})

		versionsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_submission_versions_total",
			Help: "Submission versions created, by kind.",
		}, []string{"kind"})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_notifications_published_total",
			Help: "Grading events handed to the notification brokers.",
		}, []string{"type"})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_upload_requests_total",
			Help: "Submission files stored, by detected MIME type.",
		}, []string{"mime"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_upload_rejected_total",
			Help: "Submission files rejected, by reason.",
		}, []string{"reason"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grading_upload_latency_seconds",
			Help:    "Time spent validating and storing one submission file.",
			Buckets: prometheus.DefBuckets,
		})

		analyticsCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_analytics_cache_total",
			Help: "Analytics snapshot cache lookups, by scope and result.",
		}, []string{"scope", "result"})

		analyticsComputeSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_analytics_compute_seconds",
			Help:    "Time spent recomputing analytics snapshots.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"scope"})

		prometheus.MustRegister(
			gradingRequestsTotal, gradingLatencySeconds, gradingErrorsTotal,
			gradesRecordedTotal, latePenaltiesTotal, versionsCreatedTotal, notificationsPublished,
			uploadRequestsTotal, uploadRejectedTotal, uploadLatencySeconds,
			analyticsCacheTotal, analyticsComputeSeconds,
		)
	})
}

// GradingRequests exposes the counter for grading API requests.
func GradingRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingRequestsTotal
}

// GradingLatency exposes the latency histogram for grading API requests.
func GradingLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingLatencySeconds
}

// GradingErrors exposes the counter for grading API error responses.
func GradingErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingErrorsTotal
}

// GradesRecorded counts grades written, labelled by source.
func GradesRecorded() *prometheus.CounterVec {
	RegisterMetrics()
	return gradesRecordedTotal
}

// LatePenalties counts late penalty outcomes ("applied", "cleared", "waived").
func LatePenalties() *prometheus.CounterVec {
	RegisterMetrics()
	return latePenaltiesTotal
}

// VersionsCreated counts new submission versions ("autosave", "manual").
func VersionsCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return versionsCreatedTotal
}

// NotificationsPublishedTotal counts published grading events.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}

// UploadRequests counts stored submission files.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

// UploadRejected counts rejected submission files.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadLatency exposes the file intake latency histogram.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}

// AnalyticsCache counts analytics cache hits and misses.
func AnalyticsCache() *prometheus.CounterVec {
	RegisterMetrics()
	return analyticsCacheTotal
}

// AnalyticsCompute exposes the analytics recomputation histogram.
func AnalyticsCompute() *prometheus.HistogramVec {
	RegisterMetrics()
	return analyticsComputeSeconds
}
