package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Statement extraction metrics
	ExtractionRequestsTotal *prometheus.CounterVec
	ExtractionDuration      *prometheus.HistogramVec
	ExtractionErrorsTotal   *prometheus.CounterVec

	// Pricing metrics
	PriceLookupsTotal   *prometheus.CounterVec
	PriceFailuresTotal  *prometheus.CounterVec
	PortfolioValueUSD   *prometheus.GaugeVec
	PortfolioPositions  *prometheus.GaugeVec

	// Option symbol metrics
	OptionParsesTotal     *prometheus.CounterVec
	OptionParseFailures   *prometheus.CounterVec
	ResolverLookupsTotal  *prometheus.CounterVec
	ResolverCacheHits     prometheus.Counter

	// External API metrics
	ExternalAPIRequestsTotal *prometheus.CounterVec
	ExternalAPIErrorsTotal   *prometheus.CounterVec
	ExternalAPIDuration      *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrorsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// defaultBuckets are the default histogram buckets for duration metrics (in seconds)
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// extractionBuckets cover document extraction calls, which routinely take tens of seconds
var extractionBuckets = []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300}

// globalMetrics is the global metrics instance
var globalMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		// Statement extraction metrics
		ExtractionRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "extraction",
				Name:      "requests_total",
				Help:      "Total number of statement extraction requests",
			},
			[]string{"broker"},
		),
		ExtractionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fundmate",
				Subsystem: "extraction",
				Name:      "duration_seconds",
				Help:      "Duration of statement extraction in seconds",
				Buckets:   extractionBuckets,
			},
			[]string{"broker", "status"},
		),
		ExtractionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "extraction",
				Name:      "errors_total",
				Help:      "Total number of statement extraction errors",
			},
			[]string{"broker", "error_type"},
		),

		// Pricing metrics
		PriceLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "pricing",
				Name:      "lookups_total",
				Help:      "Total number of price lookups by source",
			},
			[]string{"source"},
		),
		PriceFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "pricing",
				Name:      "failures_total",
				Help:      "Total number of failed price lookups by source",
			},
			[]string{"source"},
		),
		PortfolioValueUSD: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fundmate",
				Subsystem: "portfolio",
				Name:      "value_usd",
				Help:      "Most recent portfolio value in USD by broker",
			},
			[]string{"broker"},
		),
		PortfolioPositions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fundmate",
				Subsystem: "portfolio",
				Name:      "positions",
				Help:      "Most recent position count by broker",
			},
			[]string{"broker"},
		),

		// Option symbol metrics
		OptionParsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "options",
				Name:      "parses_total",
				Help:      "Total number of option symbol parses by format",
			},
			[]string{"format"},
		),
		OptionParseFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "options",
				Name:      "parse_failures_total",
				Help:      "Total number of option symbols that fell through all grammars",
			},
			[]string{"grammar"},
		),
		ResolverLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "resolver",
				Name:      "lookups_total",
				Help:      "Total number of numeric-to-HKATS resolver lookups",
			},
			[]string{"status"},
		),
		ResolverCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "resolver",
				Name:      "cache_hits_total",
				Help:      "Total number of resolver lookups served from cache",
			},
		),

		// External API metrics
		ExternalAPIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "external_api",
				Name:      "requests_total",
				Help:      "Total number of external API requests",
			},
			[]string{"service", "operation"},
		),
		ExternalAPIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "external_api",
				Name:      "errors_total",
				Help:      "Total number of external API errors",
			},
			[]string{"service", "operation", "error_type"},
		),
		ExternalAPIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fundmate",
				Subsystem: "external_api",
				Name:      "duration_seconds",
				Help:      "Duration of external API calls in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"service", "operation"},
		),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fundmate",
				Subsystem: "database",
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"operation", "table"},
		),
		DBQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "database",
				Name:      "queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "database",
				Name:      "errors_total",
				Help:      "Total number of database errors",
			},
			[]string{"operation", "table"},
		),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fundmate",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fundmate",
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		// Circuit breaker metrics
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fundmate",
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Current state of circuit breakers (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fundmate",
				Subsystem: "circuit_breaker",
				Name:      "trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"service"},
		),
	}

	return m
}

// InitMetrics initializes the global metrics instance
func InitMetrics() *Metrics {
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// RecordExtractionRequest records a statement extraction request
func (m *Metrics) RecordExtractionRequest(broker string) {
	m.ExtractionRequestsTotal.WithLabelValues(broker).Inc()
}

// RecordExtractionDuration records the duration of a statement extraction
func (m *Metrics) RecordExtractionDuration(broker, status string, duration time.Duration) {
	m.ExtractionDuration.WithLabelValues(broker, status).Observe(duration.Seconds())
}

// RecordExtractionError records a statement extraction error
func (m *Metrics) RecordExtractionError(broker, errorType string) {
	m.ExtractionErrorsTotal.WithLabelValues(broker, errorType).Inc()
}

// RecordPriceLookup records a price lookup against a source
func (m *Metrics) RecordPriceLookup(source string) {
	m.PriceLookupsTotal.WithLabelValues(source).Inc()
}

// RecordPriceFailure records a failed price lookup
func (m *Metrics) RecordPriceFailure(source string) {
	m.PriceFailuresTotal.WithLabelValues(source).Inc()
}

// SetPortfolioValue sets the most recent portfolio value for a broker
func (m *Metrics) SetPortfolioValue(broker string, usd float64) {
	m.PortfolioValueUSD.WithLabelValues(broker).Set(usd)
}

// SetPortfolioPositions sets the most recent position count for a broker
func (m *Metrics) SetPortfolioPositions(broker string, count int) {
	m.PortfolioPositions.WithLabelValues(broker).Set(float64(count))
}

// RecordOptionParse records a successful option symbol parse
func (m *Metrics) RecordOptionParse(format string) {
	m.OptionParsesTotal.WithLabelValues(format).Inc()
}

// RecordOptionParseFailure records a symbol that no grammar accepted
func (m *Metrics) RecordOptionParseFailure(grammar string) {
	m.OptionParseFailures.WithLabelValues(grammar).Inc()
}

// RecordResolverLookup records a numeric-to-HKATS resolver lookup
func (m *Metrics) RecordResolverLookup(status string) {
	m.ResolverLookupsTotal.WithLabelValues(status).Inc()
}

// RecordResolverCacheHit records a resolver lookup served from cache
func (m *Metrics) RecordResolverCacheHit() {
	m.ResolverCacheHits.Inc()
}

// RecordExternalAPIRequest records an external API request
func (m *Metrics) RecordExternalAPIRequest(service, operation string) {
	m.ExternalAPIRequestsTotal.WithLabelValues(service, operation).Inc()
}

// RecordExternalAPIError records an external API error
func (m *Metrics) RecordExternalAPIError(service, operation, errorType string) {
	m.ExternalAPIErrorsTotal.WithLabelValues(service, operation, errorType).Inc()
}

// RecordExternalAPIDuration records the duration of an external API call
func (m *Metrics) RecordExternalAPIDuration(service, operation string, duration time.Duration) {
	m.ExternalAPIDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordDBQuery records a database query
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, table).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database error
func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// SetCircuitBreakerState sets the current state of a circuit breaker
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(service string) {
	m.CircuitBreakerTrips.WithLabelValues(service).Inc()
}

// Timer is a helper for timing operations
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer creates a new timer
func (m *Metrics) NewTimer() *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: m,
	}
}

// ObserveExtraction records the extraction duration and status
func (t *Timer) ObserveExtraction(broker, status string) {
	t.metrics.RecordExtractionDuration(broker, status, time.Since(t.start))
}

// ObserveExternalAPI records the external API duration
func (t *Timer) ObserveExternalAPI(service, operation string) {
	t.metrics.RecordExternalAPIDuration(service, operation, time.Since(t.start))
}

// ObserveDB records the database query duration
func (t *Timer) ObserveDB(operation, table string) {
	t.metrics.RecordDBQuery(operation, table, time.Since(t.start))
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
