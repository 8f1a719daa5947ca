package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/layerwave/layerwave/pkg/engine"
)

// Metrics provides Prometheus metrics for planning runs and the API.
//
// A disabled Metrics has no collectors and every Record method is a no-op.
type Metrics struct {
	config MetricsConfig

	// Planning metrics
	plansComputed     *prometheus.CounterVec
	planDuration      prometheus.Histogram
	wavesPerPlan      prometheus.Histogram
	actionsPlanned    *prometheus.CounterVec
	unreachableLayers prometheus.Counter

	// Policy metrics
	policyFindings *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// API metrics
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	catalogReload *prometheus.CounterVec

	// Archive metrics
	reportsSaved prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		plansComputed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_computed_total",
				Help:      "Total number of planning runs by outcome",
			},
			[]string{"outcome"},
		),
		planDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plan_duration_seconds",
				Help:      "Duration of planning runs in seconds",
				Buckets:   buckets,
			},
		),
		wavesPerPlan: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "waves_per_plan",
				Help:      "Number of waves emitted per plan",
				Buckets:   prometheus.LinearBuckets(0, 2, 10),
			},
		),
		actionsPlanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_planned_total",
				Help:      "Total number of layer upgrade actions planned",
			},
			[]string{"manual"},
		),
		unreachableLayers: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unreachable_layers_total",
				Help:      "Total number of layers left below the ceiling with no applicable recipe",
			},
		),

		policyFindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_findings_total",
				Help:      "Total number of policy findings on plans",
			},
			[]string{"policy", "severity"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of API requests in seconds",
				Buckets:   buckets,
			},
			[]string{"route"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_cache_lookups_total",
				Help:      "Plan cache lookups by result",
			},
			[]string{"result"},
		),
		catalogReload: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_reloads_total",
				Help:      "Catalog reloads by outcome",
			},
			[]string{"outcome"},
		),

		reportsSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_saved_total",
				Help:      "Total number of plan reports archived",
			},
		),
	}

	registry.MustRegister(
		m.plansComputed,
		m.planDuration,
		m.wavesPerPlan,
		m.actionsPlanned,
		m.unreachableLayers,
		m.policyFindings,
		m.errorsByClass,
		m.errorsByCode,
		m.httpRequests,
		m.httpDuration,
		m.cacheLookups,
		m.catalogReload,
		m.reportsSaved,
	)

	return m, nil
}

// Planning Metrics

// RecordPlan records a successful planning run.
func (m *Metrics) RecordPlan(plan *engine.Plan, duration time.Duration) {
	if m.plansComputed == nil || plan == nil {
		return
	}

	outcome := "planned"
	if len(plan.Waves) == 0 {
		outcome = "empty"
	}
	m.plansComputed.WithLabelValues(outcome).Inc()
	m.planDuration.Observe(duration.Seconds())
	m.wavesPerPlan.Observe(float64(len(plan.Waves)))

	manual := plan.ManualActionCount()
	total := 0
	for _, w := range plan.Waves {
		total += len(w.Actions)
	}
	m.actionsPlanned.WithLabelValues("true").Add(float64(manual))
	m.actionsPlanned.WithLabelValues("false").Add(float64(total - manual))
	m.unreachableLayers.Add(float64(len(plan.Unreachable)))
}

// RecordPlanFailure records a planning run that returned an error.
func (m *Metrics) RecordPlanFailure(err error) {
	if m.plansComputed == nil {
		return
	}
	m.plansComputed.WithLabelValues("failed").Inc()
	m.RecordError(err)
}

// RecordPolicyFinding records one policy finding.
func (m *Metrics) RecordPolicyFinding(policyName, severity string) {
	if m.policyFindings == nil {
		return
	}
	m.policyFindings.WithLabelValues(policyName, severity).Inc()
}

// Error Metrics

// RecordError records an error by its engine class and code.
func (m *Metrics) RecordError(err error) {
	if m.errorsByClass == nil || err == nil {
		return
	}
	m.errorsByClass.WithLabelValues(string(engine.ClassOf(err))).Inc()
	m.errorsByCode.WithLabelValues(engine.CodeOf(err)).Inc()
}

// API Metrics

// RecordHTTPRequest records a served API request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m.httpRequests == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordCacheLookup records a plan cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordCatalogReload records the outcome of a catalog reload.
func (m *Metrics) RecordCatalogReload(err error) {
	if m.catalogReload == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.catalogReload.WithLabelValues(outcome).Inc()
}

// RecordReportSaved records an archived plan report.
func (m *Metrics) RecordReportSaved() {
	if m.reportsSaved == nil {
		return
	}
	m.reportsSaved.Inc()
}

// Registry returns the private registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
