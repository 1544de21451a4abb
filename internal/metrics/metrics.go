// Package metrics exposes Prometheus metrics for HTTP traffic and billing activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ecofin"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	invoicesIssued  *prometheus.CounterVec
	invoiceAmount   *prometheus.CounterVec
	importRows      *prometheus.CounterVec
	syncRuns        *prometheus.CounterVec
	invoicesUpdated prometheus.Counter
	upstreamErrors  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help: "HTTP request latency.", Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		invoicesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "invoices_issued_total",
			Help: "Invoices issued through SmartBill by mode.",
		}, []string{"mode"}),
		invoiceAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "invoiced_amount_total",
			Help: "Invoiced amount including VAT, by mode.",
		}, []string{"mode"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "import_rows_total",
			Help: "Payroll rows read by match status.",
		}, []string{"status"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_sync_runs_total",
			Help: "Payment sync runs by final status.",
		}, []string{"status"}),
		invoicesUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_sync_invoices_updated_total",
			Help: "Invoices whose payment state changed during sync.",
		}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "upstream_errors_total",
			Help: "Failed calls to external services by operation.",
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.invoicesIssued, m.invoiceAmount,
		m.importRows, m.syncRuns, m.invoicesUpdated, m.upstreamErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GinMiddleware records request count and latency by matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// InvoiceIssued counts an issued invoice and its total.
func (m *Metrics) InvoiceIssued(mode string, total float64) {
	m.invoicesIssued.WithLabelValues(mode).Inc()
	m.invoiceAmount.WithLabelValues(mode).Add(total)
}

// ImportRows adds n rows with the given status.
func (m *Metrics) ImportRows(status string, n int) {
	if n > 0 {
		m.importRows.WithLabelValues(status).Add(float64(n))
	}
}

// SyncRun records a finished payment sync.
func (m *Metrics) SyncRun(status string, invoicesUpdated int) {
	m.syncRuns.WithLabelValues(status).Inc()
	if invoicesUpdated > 0 {
		m.invoicesUpdated.Add(float64(invoicesUpdated))
	}
}

// UpstreamError counts a failed external call.
func (m *Metrics) UpstreamError(operation string) {
	m.upstreamErrors.WithLabelValues(operation).Inc()
}
