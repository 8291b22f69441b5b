package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Update run metrics
	UpdateRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refit_update_runs_total",
			Help: "Total number of update and rollback runs by kind and final phase",
		},
		[]string{"kind", "result"},
	)

	UpdatePhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "refit_update_phase",
			Help: "Current update session phase (1 for the active phase, 0 otherwise)",
		},
		[]string{"phase"},
	)

	UpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refit_update_duration_seconds",
			Help:    "Duration of update runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refit_update_step_duration_seconds",
			Help:    "Duration of individual update steps in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	// Backup metrics
	BackupsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refit_backups_total",
			Help: "Total number of backups created",
		},
	)

	// Release metrics
	ReleaseChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refit_release_checks_total",
			Help: "Total number of release checks by result",
		},
		[]string{"result"},
	)

	// Maintenance metrics
	MaintenanceEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "refit_maintenance_enabled",
			Help: "Whether the maintenance gate is on (1 = on, 0 = off)",
		},
	)

	GatedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refit_gated_requests_total",
			Help: "Total number of requests answered with the maintenance page",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refit_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refit_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(UpdateRunsTotal)
	prometheus.MustRegister(UpdatePhase)
	prometheus.MustRegister(UpdateDuration)
	prometheus.MustRegister(StepDuration)
	prometheus.MustRegister(BackupsCreated)
	prometheus.MustRegister(ReleaseChecksTotal)
	prometheus.MustRegister(MaintenanceEnabled)
	prometheus.MustRegister(GatedRequestsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
