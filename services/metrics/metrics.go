package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerPostings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Ledger entries written, by kind and status",
		},
		[]string{"kind", "status"},
	)

	LedgerConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_conflict_retries_total",
			Help: "Optimistic balance updates that lost a race and were retried",
		},
	)

	LedgerDivergence = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_divergence_total",
			Help: "Reconciliations where a cached balance did not match its transactions",
		},
	)

	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions, by target status",
		},
		[]string{"to"},
	)

	PaymentVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "QR payment verification attempts, by result",
		},
		[]string{"result"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notifications that could not be delivered to their sink",
		},
		[]string{"sink"},
	)
)
