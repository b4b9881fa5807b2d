package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BillingMetrics tracks ledger and provider activity.
type BillingMetrics struct {
	DebitTotal    *prometheus.CounterVec // by feature, result: success/insufficient/error
	DebitDuration *prometheus.HistogramVec
	DebitAmount   *prometheus.CounterVec // credits charged, by feature

	RefundTotal  *prometheus.CounterVec // by feature
	RefundAmount *prometheus.CounterVec

	ProviderCallTotal    *prometheus.CounterVec // by provider, result: success/error
	ProviderCallDuration *prometheus.HistogramVec
}

func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	factory := promauto.With(reg)
	return &BillingMetrics{
		DebitTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditd_debit_total",
				Help: "Total number of credit debit attempts",
			},
			[]string{"feature", "result"},
		),
		DebitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "creditd_debit_duration_seconds",
				Help:    "Duration of atomic debit operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"feature"},
		),
		DebitAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditd_debit_amount_total",
				Help: "Credits charged by feature",
			},
			[]string{"feature"},
		),
		RefundTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditd_refund_total",
				Help: "Total number of compensating refunds",
			},
			[]string{"feature"},
		),
		RefundAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditd_refund_amount_total",
				Help: "Credits refunded by feature",
			},
			[]string{"feature"},
		),
		ProviderCallTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditd_provider_call_total",
				Help: "Total number of upstream provider calls",
			},
			[]string{"provider", "result"},
		),
		ProviderCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "creditd_provider_call_duration_seconds",
				Help:    "Duration of upstream provider calls",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
	}
}
