package observability

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	nativecommon "feeshare/native/common"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	feeshareMetricsOnce sync.Once
	feeshareRegistry    *FeeshareMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "feeshare",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "feeshare",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "feeshare",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "feeshare",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// FeeshareMetrics tracks staking and harvest operations.
type FeeshareMetrics struct {
	operations     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	totalStaked    prometheus.Gauge
	rewardPerToken prometheus.Gauge
	harvested      *prometheus.CounterVec
	distributed    prometheus.Counter
	keeperRuns     *prometheus.CounterVec
}

// Feeshare returns the lazily-initialised operation metrics.
func Feeshare() *FeeshareMetrics {
	feeshareMetricsOnce.Do(func() {
		feeshareRegistry = &FeeshareMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "feeshare",
				Subsystem: "core",
				Name:      "operations_total",
				Help:      "Core operations segmented by module, operation and outcome.",
			}, []string{"module", "operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "feeshare",
				Subsystem: "core",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for core operations including commit.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			}, []string{"module", "operation"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "feeshare",
				Subsystem: "staking",
				Name:      "total_staked",
				Help:      "Total stake locked, in base units.",
			}),
			rewardPerToken: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "feeshare",
				Subsystem: "staking",
				Name:      "reward_per_token",
				Help:      "Reward accumulator scaled by 1e18.",
			}),
			harvested: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "feeshare",
				Subsystem: "harvest",
				Name:      "collected_total",
				Help:      "Protocol fees collected from pools, in base units of each token.",
			}, []string{"token"}),
			distributed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "feeshare",
				Subsystem: "staking",
				Name:      "distributed_total",
				Help:      "Reward distributed to stakers, in base units.",
			}),
			keeperRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "feeshare",
				Subsystem: "keeper",
				Name:      "runs_total",
				Help:      "Keeper passes segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			feeshareRegistry.operations,
			feeshareRegistry.latency,
			feeshareRegistry.totalStaked,
			feeshareRegistry.rewardPerToken,
			feeshareRegistry.harvested,
			feeshareRegistry.distributed,
			feeshareRegistry.keeperRuns,
		)
	})
	return feeshareRegistry
}

// ObserveOperation records the outcome and latency of a core operation.
func (m *FeeshareMetrics) ObserveOperation(module, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(module, operation, OutcomeLabel(err)).Inc()
	m.latency.WithLabelValues(module, operation).Observe(d.Seconds())
}

// RecordPool updates the staking gauges.
func (m *FeeshareMetrics) RecordPool(totalStaked, rewardPerToken *big.Int) {
	if m == nil {
		return
	}
	m.totalStaked.Set(bigToFloat(totalStaked))
	m.rewardPerToken.Set(bigToFloat(rewardPerToken))
}

// RecordHarvest adds collected protocol fees for a token.
func (m *FeeshareMetrics) RecordHarvest(token string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.harvested.WithLabelValues(labelAsset(token)).Add(bigToFloat(amount))
}

// RecordDistribution adds distributed reward.
func (m *FeeshareMetrics) RecordDistribution(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.distributed.Add(bigToFloat(amount))
}

// RecordKeeperRun counts a keeper pass.
func (m *FeeshareMetrics) RecordKeeperRun(err error) {
	if m == nil {
		return
	}
	m.keeperRuns.WithLabelValues(OutcomeLabel(err)).Inc()
}

// OutcomeLabel maps an operation error onto a bounded label set.
func OutcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, nativecommon.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, nativecommon.ErrInsufficientStake), errors.Is(err, nativecommon.ErrInsufficientBalance):
		return "insufficient"
	case errors.Is(err, nativecommon.ErrNoStakers):
		return "no_stakers"
	case errors.Is(err, nativecommon.ErrReentrant):
		return "reentrant"
	case errors.Is(err, nativecommon.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, nativecommon.ErrWrongFactory):
		return "wrong_factory"
	case errors.Is(err, nativecommon.ErrAlreadyConfigured):
		return "already_configured"
	case errors.Is(err, nativecommon.ErrNoOutputReceived):
		return "no_output"
	case errors.Is(err, nativecommon.ErrSlippage):
		return "slippage"
	default:
		return "error"
	}
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
