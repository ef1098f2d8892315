package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/osvaldoandrade/comfyq/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// StatusCounter is the part of the invocation ledger the collector reads.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.InvocationStatus]int64, error)
}

type ledgerCollector struct {
	ledger StatusCounter
	logger *slog.Logger

	depthDesc *prometheus.Desc
}

func newLedgerCollector(ledger StatusCounter, logger *slog.Logger) *ledgerCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ledgerCollector{
		ledger: ledger,
		logger: logger,
		depthDesc: prometheus.NewDesc(
			"comfyq_invocations",
			"Invocations currently retained in the ledger, by status.",
			[]string{"status"},
			nil,
		),
	}
}

func (c *ledgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depthDesc
}

func (c *ledgerCollector) Collect(ch chan<- prometheus.Metric) {
	if c.ledger == nil {
		return
	}

	// Keep ledger reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	counts, err := c.ledger.CountByStatus(ctx)
	if err != nil {
		c.logger.Warn("prometheus ledger collector failed", "err", err)
		return
	}
	for status, n := range counts {
		emitGauge(ch, c.depthDesc, float64(n), string(status))
	}
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerLedgerCollectorOnce sync.Once

// RegisterLedgerCollector registers the ledger gauge with the default registry.
// Only the first call has an effect.
func RegisterLedgerCollector(ledger StatusCounter, logger *slog.Logger) {
	registerLedgerCollectorOnce.Do(func() {
		prometheus.MustRegister(newLedgerCollector(ledger, logger))
	})
}

// Outcome is the label value for err: "ok" or the error kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := domain.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
