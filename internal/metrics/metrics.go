package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

// Metrics holds the collectors exported on /metrics
type Metrics struct {
	registry *prometheus.Registry

	QueriesServed   *prometheus.CounterVec
	QueryErrors     *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	SkippedRecords  *prometheus.CounterVec
	ClientsByLevel  *prometheus.GaugeVec
	ValueAtRisk     prometheus.Gauge
	DigestRuns      *prometheus.CounterVec
	ImportedRecords prometheus.Counter
}

// New registers every collector on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		QueriesServed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_analytics_queries_total",
			Help: "Total number of analytics queries served",
		}, []string{"operation"}),
		QueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_analytics_query_errors_total",
			Help: "Total number of analytics queries that failed",
		}, []string{"operation"}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portfolio_analytics_query_duration_seconds",
			Help:    "Time spent loading the snapshot and computing a query",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		SkippedRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_analytics_skipped_records_total",
			Help: "Records excluded from analysis by warning kind",
		}, []string{"kind"}),
		ClientsByLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "portfolio_analytics_clients",
			Help: "Clients per risk level in the latest portfolio summary",
		}, []string{"level"}),
		ValueAtRisk: factory.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_analytics_value_at_risk",
			Help: "Overdue amount owed by clients above low risk",
		}),
		DigestRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_analytics_digest_runs_total",
			Help: "Scheduled digest runs by result",
		}, []string{"result"}),
		ImportedRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_analytics_imported_invoices_total",
			Help: "Invoices imported from bank return files",
		}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePortfolio publishes the level distribution of a summary
func (m *Metrics) ObservePortfolio(summary models.PortfolioRiskSummary) {
	m.ClientsByLevel.WithLabelValues(string(models.RiskLow)).Set(float64(summary.LowRiskClients))
	m.ClientsByLevel.WithLabelValues(string(models.RiskMedium)).Set(float64(summary.MediumRiskClients))
	m.ClientsByLevel.WithLabelValues(string(models.RiskHigh)).Set(float64(summary.HighRiskClients))
	m.ClientsByLevel.WithLabelValues(string(models.RiskCritical)).Set(float64(summary.CriticalRiskClients))
	m.ValueAtRisk.Set(summary.ValueAtRisk.InexactFloat64())
}
