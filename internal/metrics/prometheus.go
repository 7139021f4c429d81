// Package metrics provides Prometheus metrics collection for ScanMaster.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MacJediWizard/scanmaster/internal/updater"
)

const namespace = "scanmaster"

// PrometheusMetrics holds the ScanMaster Prometheus collectors.
type PrometheusMetrics struct {
	LicenseVerifications *prometheus.CounterVec
	LicensesIssued       prometheus.Counter
	UpdateScanDuration   prometheus.Histogram
	UpdatePackagesFound  prometheus.Gauge
	UpdateScanErrors     prometheus.Counter
	PipelineRuns         *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		LicenseVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_verifications_total",
			Help:      "License key verifications by result (valid or failure reason).",
		}, []string{"result"}),
		LicensesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "licenses_issued_total",
			Help:      "License keys issued.",
		}),
		UpdateScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_scan_duration_seconds",
			Help:      "Duration of update media scans.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}),
		UpdatePackagesFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "update_packages_found",
			Help:      "Update packages found by the most recent scan.",
		}),
		UpdateScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_scan_errors_total",
			Help:      "Errors recorded while scanning update media.",
		}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_pipeline_runs_total",
			Help:      "Update pipeline runs by final state.",
		}, []string{"state"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Local API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}

	for _, c := range []prometheus.Collector{
		m.LicenseVerifications,
		m.LicensesIssued,
		m.UpdateScanDuration,
		m.UpdatePackagesFound,
		m.UpdateScanErrors,
		m.PipelineRuns,
		m.HTTPRequests,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}

	return m, nil
}

// RecordLicenseVerification counts a verification. reason is ignored when valid.
func (m *PrometheusMetrics) RecordLicenseVerification(valid bool, reason string) {
	result := "valid"
	if !valid {
		result = reason
		if result == "" {
			result = "invalid"
		}
	}
	m.LicenseVerifications.WithLabelValues(result).Inc()
}

// RecordLicenseIssued counts an issued license.
func (m *PrometheusMetrics) RecordLicenseIssued() {
	m.LicensesIssued.Inc()
}

// ObserveScan records a media scan.
func (m *PrometheusMetrics) ObserveScan(packages, errors int, duration time.Duration) {
	m.UpdateScanDuration.Observe(duration.Seconds())
	m.UpdatePackagesFound.Set(float64(packages))
	m.UpdateScanErrors.Add(float64(errors))
}

// ObservePipeline records the final state of an update pipeline run.
func (m *PrometheusMetrics) ObservePipeline(final updater.State) {
	m.PipelineRuns.WithLabelValues(string(final)).Inc()
}

// RecordHTTPRequest counts an API request.
func (m *PrometheusMetrics) RecordHTTPRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler serves the registered metrics in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
