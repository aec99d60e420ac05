package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stripe_webhook_events_total",
			Help: "Stripe webhook events by endpoint, type and outcome",
		},
		[]string{"endpoint", "type", "outcome"}, // outcome: handled|ignored|duplicate|failed
	)

	PayoutsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payouts_created_total",
			Help: "Payout rows written",
		},
		[]string{"source"}, // webhook|admin
	)

	PayoutTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_transfers_total",
			Help: "Transfer attempts for payouts",
		},
		[]string{"result"}, // completed|failed|skipped
	)

	LedgerStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_step_failures_total",
			Help: "Best-effort ledger steps that failed",
		},
		[]string{"step"},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

var Handler = promhttp.Handler

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(WebhookEvents)
		prometheus.MustRegister(PayoutsCreated)
		prometheus.MustRegister(PayoutTransfers)
		prometheus.MustRegister(LedgerStepFailures)
		prometheus.MustRegister(WorkerQueueDepth)
	})
}
