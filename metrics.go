package smithy

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for invocations, attempts,
// identity caching and client-side rate limiting. A nil collector records
// nothing. It is safe for concurrent use.
type MetricsCollector struct {
	invocationsTotal    *prometheus.CounterVec
	invocationDuration  *prometheus.HistogramVec
	invocationsInFlight *prometheus.GaugeVec

	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec

	errorsTotal    *prometheus.CounterVec
	responsesTotal *prometheus.CounterVec

	identityCacheHits   prometheus.Counter
	identityCacheMisses prometheus.Counter
	identityLoads       *prometheus.CounterVec
	identityLoadTime    prometheus.Histogram

	rateLimiterFillRate *prometheus.GaugeVec
	rateLimiterCapacity *prometheus.GaugeVec
	retryQuotaAvailable prometheus.Gauge

	buildInfo *prometheus.GaugeVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	mc := &MetricsCollector{
		invocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smithy_invocations_total",
				Help: "Total number of operation invocations by outcome",
			},
			[]string{"service", "operation", "outcome"},
		),
		invocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smithy_invocation_duration_seconds",
				Help:    "Duration of operation invocations in seconds, including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),
		invocationsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smithy_invocations_in_flight",
				Help: "Number of operation invocations currently running",
			},
			[]string{"service", "operation"},
		),
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smithy_attempts_total",
				Help: "Total number of request attempts",
			},
			[]string{"service", "operation"},
		),
		attemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smithy_attempt_duration_seconds",
				Help:    "Duration of individual request attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smithy_retries_total",
				Help: "Total number of retries by classified reason",
			},
			[]string{"service", "operation", "reason"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smithy_errors_total",
				Help: "Total number of failed invocations by error type",
			},
			[]string{"type", "service", "operation"},
		),
		responsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smithy_responses_total",
				Help: "Total number of HTTP responses received by status code",
			},
			[]string{"service", "operation", "status"},
		),
		identityCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "smithy_identity_cache_hits_total",
			Help: "Total number of identity cache hits",
		}),
		identityCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "smithy_identity_cache_misses_total",
			Help: "Total number of identity cache misses",
		}),
		identityLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smithy_identity_loads_total",
				Help: "Total number of identity resolver calls by result",
			},
			[]string{"result"},
		),
		identityLoadTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smithy_identity_load_duration_seconds",
			Help:    "Duration of identity resolver calls in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimiterFillRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smithy_client_rate_limiter_fill_rate",
				Help: "Current token refill rate of the client rate limiter",
			},
			[]string{"name"},
		),
		rateLimiterCapacity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smithy_client_rate_limiter_capacity",
				Help: "Current bucket capacity of the client rate limiter",
			},
			[]string{"name"},
		),
		retryQuotaAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Name: "smithy_retry_quota_available",
			Help: "Tokens left in the retry quota",
		}),
		buildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smithy_build_info",
				Help: "Always 1, labeled with the runtime's build metadata",
			},
			[]string{"version", "commit", "build_date", "go_version"},
		),
		registry: registry,
	}
	mc.buildInfo.With(prometheus.Labels(GetVersionInfo())).Set(1)
	return mc
}

// RecordInvocationStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordInvocationStart(service, operation string) {
	if mc == nil {
		return
	}

	mc.invocationsInFlight.WithLabelValues(service, operation).Inc()
}

// RecordInvocationEnd records the outcome and duration of an invocation.
// errorType is empty on success.
func (mc *MetricsCollector) RecordInvocationEnd(service, operation, errorType string, duration time.Duration) {
	if mc == nil {
		return
	}

	outcome := "success"
	if errorType != "" {
		outcome = "error"
		mc.errorsTotal.WithLabelValues(errorType, service, operation).Inc()
	}
	mc.invocationsInFlight.WithLabelValues(service, operation).Dec()
	mc.invocationsTotal.WithLabelValues(service, operation, outcome).Inc()
	mc.invocationDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordAttempt counts one attempt and its duration.
func (mc *MetricsCollector) RecordAttempt(service, operation string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.attemptsTotal.WithLabelValues(service, operation).Inc()
	mc.attemptDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordRetry counts a retry decision.
func (mc *MetricsCollector) RecordRetry(service, operation, reason string) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(service, operation, reason).Inc()
}

// RecordResponse counts a received HTTP response.
func (mc *MetricsCollector) RecordResponse(service, operation string, status int) {
	if mc == nil {
		return
	}

	mc.responsesTotal.WithLabelValues(service, operation, strconv.Itoa(status)).Inc()
}

// RecordIdentityCacheHit increments the identity cache hit counter.
func (mc *MetricsCollector) RecordIdentityCacheHit() {
	if mc == nil {
		return
	}

	mc.identityCacheHits.Inc()
}

// RecordIdentityCacheMiss increments the identity cache miss counter.
func (mc *MetricsCollector) RecordIdentityCacheMiss() {
	if mc == nil {
		return
	}

	mc.identityCacheMisses.Inc()
}

// RecordIdentityLoad records a resolver call.
func (mc *MetricsCollector) RecordIdentityLoad(duration time.Duration, err error) {
	if mc == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	mc.identityLoads.WithLabelValues(result).Inc()
	mc.identityLoadTime.Observe(duration.Seconds())
}

// RecordRateLimiter sets the rate limiter gauges.
func (mc *MetricsCollector) RecordRateLimiter(name string, fillRate, capacity float64) {
	if mc == nil {
		return
	}

	mc.rateLimiterFillRate.WithLabelValues(name).Set(fillRate)
	mc.rateLimiterCapacity.WithLabelValues(name).Set(capacity)
}

// RecordRetryQuota sets the remaining retry quota.
func (mc *MetricsCollector) RecordRetryQuota(available int64) {
	if mc == nil {
		return
	}

	mc.retryQuotaAvailable.Set(float64(available))
}

// GetRegistry exposes the registerer the collector was created with.
func (mc *MetricsCollector) GetRegistry() prometheus.Registerer {
	if mc == nil {
		return nil
	}
	return mc.registry
}
