package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionStatusCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "transaction_status_changes_total",
			Help:      "Total transaction status changes by resulting status.",
		},
		[]string{"status"},
	)

	riskScoreHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payments",
			Name:      "risk_overall_score",
			Help:      "Overall fraud risk score of scored transactions.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.75, 0.9, 1},
		},
		[]string{"tier"},
	)

	refundCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "refunds_total",
			Help:      "Total refunds by resulting status.",
		},
		[]string{"status"},
	)

	disputeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "disputes_total",
			Help:      "Total dispute lifecycle changes by status.",
		},
		[]string{"status"},
	)

	recurringExecutionCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "recurring_executions_total",
			Help:      "Total recurring billing attempts by outcome.",
		},
		[]string{"outcome"},
	)

	gatewayRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payments",
			Name:      "gateway_request_duration_seconds",
			Help:      "Duration of calls to the payment gateway.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	eventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "event_publish_failures_total",
			Help:      "Transaction events that could not be delivered to a sink.",
		},
	)
)
