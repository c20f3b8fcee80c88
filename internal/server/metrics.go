package server

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"betrails/internal/notify"
)

// metricsRegistry also serves as the lifecycle metrics hook and as a notice sink.
type metricsRegistry struct {
	registry         *prometheus.Registry
	submissionsTotal *prometheus.CounterVec
	receiptsTotal    *prometheus.CounterVec
	noticesTotal     *prometheus.CounterVec
	faucetTotal      *prometheus.CounterVec
	balance          prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "betrails_submissions_total",
		Help: "Submission attempts per surface by result",
	}, []string{"surface", "result"})

	receipts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "betrails_receipts_total",
		Help: "Settled submissions per surface by receipt status",
	}, []string{"surface", "status"})

	notices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "betrails_notices_total",
		Help: "Notices emitted by kind",
	}, []string{"kind"})

	faucet := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "betrails_faucet_requests_total",
		Help: "Faucet funding requests by result",
	}, []string{"result"})

	bal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "betrails_account_balance",
		Help: "Latest observed token balance of the connected account",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(submissions, receipts, notices, faucet, bal)

	return &metricsRegistry{
		registry:         r,
		submissionsTotal: submissions,
		receiptsTotal:    receipts,
		noticesTotal:     notices,
		faucetTotal:      faucet,
		balance:          bal,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) Submission(surface, result string) {
	m.submissionsTotal.WithLabelValues(surface, result).Inc()
}

func (m *metricsRegistry) Receipt(surface, status string) {
	m.receiptsTotal.WithLabelValues(surface, status).Inc()
}

func (m *metricsRegistry) Emit(n notify.Notice) {
	m.noticesTotal.WithLabelValues(string(n.Kind)).Inc()
}

func (m *metricsRegistry) incFaucet(result string) {
	m.faucetTotal.WithLabelValues(result).Inc()
}

func (m *metricsRegistry) setBalance(units *big.Int, decimals uint8) {
	if units == nil {
		return
	}
	f, _ := decimal.NewFromBigInt(units, -int32(decimals)).Float64()
	m.balance.Set(f)
}
