package observability

import (
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
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

	exchangeMetricsOnce sync.Once
	exchangeRegistry    *ExchangeMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "betpool",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "betpool",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "betpool",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "betpool",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by throttling policies.",
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

// Observe records the outcome of a module request. The status code should be
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
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
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

// ExchangeMetrics tracks the betting ledger itself: accepted bets,
// settlements, and the pool's collateral position.
type ExchangeMetrics struct {
	betsPlaced   *prometheus.CounterVec
	settlements  *prometheus.CounterVec
	marketsOpen  prometheus.Counter
	poolBalance  prometheus.Gauge
	poolReserved prometheus.Gauge
}

// Exchange returns the lazily-initialised exchange metrics registry.
func Exchange() *ExchangeMetrics {
	exchangeMetricsOnce.Do(func() {
		exchangeRegistry = &ExchangeMetrics{
			betsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "betpool",
				Subsystem: "exchange",
				Name:      "bets_placed_total",
				Help:      "Count of accepted bets segmented by pricing regime.",
			}, []string{"regime"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "betpool",
				Subsystem: "exchange",
				Name:      "settlements_total",
				Help:      "Count of settled certificates segmented by kind (claim or withdraw).",
			}, []string{"kind"}),
			marketsOpen: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "betpool",
				Subsystem: "exchange",
				Name:      "markets_opened_total",
				Help:      "Count of markets opened since process start.",
			}),
			poolBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "betpool",
				Subsystem: "pool",
				Name:      "balance",
				Help:      "Current pool vault balance in base units.",
			}),
			poolReserved: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "betpool",
				Subsystem: "pool",
				Name:      "reserved",
				Help:      "Collateral reserved against open obligations in base units.",
			}),
		}
		prometheus.MustRegister(
			exchangeRegistry.betsPlaced,
			exchangeRegistry.settlements,
			exchangeRegistry.marketsOpen,
			exchangeRegistry.poolBalance,
			exchangeRegistry.poolReserved,
		)
	})
	return exchangeRegistry
}

// RecordBet counts an accepted bet. The regime label distinguishes bets that
// priced linearly from those squashed against free liquidity.
func (m *ExchangeMetrics) RecordBet(regime string) {
	if m == nil {
		return
	}
	if regime == "" {
		regime = "unknown"
	}
	m.betsPlaced.WithLabelValues(regime).Inc()
}

// RecordSettlement counts a settled certificate.
func (m *ExchangeMetrics) RecordSettlement(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.settlements.WithLabelValues(kind).Inc()
}

// RecordMarketOpened counts a newly opened market.
func (m *ExchangeMetrics) RecordMarketOpened() {
	if m == nil {
		return
	}
	m.marketsOpen.Inc()
}

// SetPoolPosition publishes the pool's balance and reserved totals. Values
// beyond float64 precision saturate rather than wrap.
func (m *ExchangeMetrics) SetPoolPosition(balance, reserved *big.Int) {
	if m == nil {
		return
	}
	m.poolBalance.Set(bigToGauge(balance))
	m.poolReserved.Set(bigToGauge(reserved))
}

func bigToGauge(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return math.MaxFloat64
	}
	return f
}
