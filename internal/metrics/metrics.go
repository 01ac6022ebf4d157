// Package metrics defines the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector. Build one per registry.
type Metrics struct {
	PayoutRuns        *prometheus.CounterVec
	PayoutsCredited   prometheus.Counter
	PayoutAmount      prometheus.Counter
	PurchasesExpired  prometheus.Counter
	PurchasesCreated  prometheus.Counter
	PurchaseAmount    prometheus.Counter
	ReferralBonuses   *prometheus.CounterVec
	ReferralAmount    prometheus.Counter
	AdminOperations   *prometheus.CounterVec
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPResponseTime  *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		PayoutRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_runs_total",
				Help: "Payout engine runs by outcome",
			},
			[]string{"outcome"},
		),
		PayoutsCredited: f.NewCounter(prometheus.CounterOpts{
			Name: "payouts_credited_total",
			Help: "Daily returns credited",
		}),
		PayoutAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "payout_amount_total",
			Help: "Sum of daily returns credited, in KZ",
		}),
		PurchasesExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "purchases_completed_total",
			Help: "Purchases moved to completed",
		}),
		PurchasesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "purchases_created_total",
			Help: "Purchases created",
		}),
		PurchaseAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "purchase_amount_total",
			Help: "Sum of purchase principals, in KZ",
		}),
		ReferralBonuses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_bonuses_total",
				Help: "Referral bonuses by level and outcome",
			},
			[]string{"level", "outcome"},
		),
		ReferralAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "referral_bonus_amount_total",
			Help: "Sum of referral bonuses credited, in KZ",
		}),
		AdminOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_operations_total",
				Help: "Administrative operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_time_seconds",
				Help:    "Histogram of response times",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}
