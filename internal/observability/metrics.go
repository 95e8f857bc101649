package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the store server.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	payments       *prometheus.CounterVec
	paymentAmount  *prometheus.CounterVec
	unallocated    prometheus.Counter
	creditSales    prometheus.Counter
	creditAmount   prometheus.Counter
	overdueMarked  prometheus.Counter
	checkouts      *prometheus.CounterVec
	checkoutAmount *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	reportBuild *prometheus.HistogramVec
}

// NewMetrics initialises the registry with HTTP and business metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiendita_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tiendita_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiendita_credit_payments_total",
			Help: "Customer payments received by method.",
		}, []string{"method"}),
		paymentAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiendita_credit_payments_applied_amount_total",
			Help: "Money applied to credit notes by payment method.",
		}, []string{"method"}),
		unallocated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiendita_credit_payments_unallocated_amount_total",
			Help: "Money received that matched no outstanding note.",
		}),
		creditSales: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiendita_credit_sales_total",
			Help: "Sales posted to weekly credit notes.",
		}),
		creditAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiendita_credit_sales_amount_total",
			Help: "Amount sold on credit.",
		}),
		overdueMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiendita_credit_notes_overdue_total",
			Help: "Credit notes moved to overdue by the sweep.",
		}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiendita_checkouts_total",
			Help: "Completed checkouts by tender.",
		}, []string{"method"}),
		checkoutAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiendita_checkout_amount_total",
			Help: "Checkout totals by tender.",
		}, []string{"method"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiendita_reports_cache_hits_total",
			Help: "Report cache hits by report.",
		}, []string{"report"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiendita_reports_cache_miss_total",
			Help: "Report cache misses by report.",
		}, []string{"report"}),
		reportBuild: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tiendita_reports_build_duration_seconds",
			Help:    "Time spent building a report on a cache miss.",
			Buckets: prometheus.DefBuckets,
		}, []string{"report"}),
	}
	registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.payments, m.paymentAmount, m.unallocated,
		m.creditSales, m.creditAmount, m.overdueMarked,
		m.checkouts, m.checkoutAmount,
		m.cacheHits, m.cacheMisses, m.reportBuild,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry so job metrics share the endpoint.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// PaymentReceived counts a committed customer payment.
func (m *Metrics) PaymentReceived(method string, applied, unallocated float64) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method).Inc()
	m.paymentAmount.WithLabelValues(method).Add(applied)
	if unallocated > 0 {
		m.unallocated.Add(unallocated)
	}
}

// CreditPosted counts a sale posted to a credit note.
func (m *Metrics) CreditPosted(amount float64) {
	if m == nil {
		return
	}
	m.creditSales.Inc()
	m.creditAmount.Add(amount)
}

// NotesMarkedOverdue counts notes flagged by the overdue sweep.
func (m *Metrics) NotesMarkedOverdue(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.overdueMarked.Add(float64(count))
}

// CheckoutCompleted counts a committed sale.
func (m *Metrics) CheckoutCompleted(method string, total float64) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(method).Inc()
	m.checkoutAmount.WithLabelValues(method).Add(total)
}

// CacheHit counts a report served from Redis.
func (m *Metrics) CacheHit(report string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(report).Inc()
}

// CacheMiss counts a report that had to be built.
func (m *Metrics) CacheMiss(report string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(report).Inc()
}

// BuildDuration observes how long a report took to build.
func (m *Metrics) BuildDuration(report string, d time.Duration) {
	if m == nil {
		return
	}
	m.reportBuild.WithLabelValues(report).Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
