package amm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the Prometheus metrics for the coordinator.
type Metrics struct {
	operationDuration *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	poolsTotal        prometheus.Gauge
}

// NewMetrics creates and registers the metrics for the coordinator.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amm_operation_duration_seconds",
			Help:    "Time taken to validate and apply a pool operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_operations_total",
			Help: "Total number of pool operations, labeled by operation and result.",
		}, []string{"operation", "result"}),
		poolsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amm_pools_total",
			Help: "Number of pools known to the coordinator.",
		}),
	}
	reg.MustRegister(m.operationDuration, m.operationsTotal, m.poolsTotal)
	return m
}

// observe records the outcome of one operation. The result label is "ok" or
// the codespace-local name of the failure.
func (m *Metrics) observe(op string, err error) {
	m.operationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	e, ok := ErrorByCode(Code(err))
	if !ok {
		return "error"
	}
	return labelNames[e]
}

var labelNames = map[error]string{
	ErrInvalidAmount:      "invalid_amount",
	ErrInvalidFee:         "invalid_fee",
	ErrSlippageExceeded:   "slippage_exceeded",
	ErrPoolLocked:         "pool_locked",
	ErrArithmeticOverflow: "arithmetic_overflow",
	ErrDivisionByZero:     "division_by_zero",
	ErrUnauthorized:       "unauthorized",
	ErrDuplicatePool:      "duplicate_pool",
	ErrInsufficientFunds:  "insufficient_funds",
	ErrInsufficientShares: "insufficient_shares",
	ErrPoolNotFound:       "pool_not_found",
	ErrInvalidMint:        "invalid_mint",
}
