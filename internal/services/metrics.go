package services

import "github.com/prometheus/client_golang/prometheus"

// Claim outcomes used as the "outcome" label.
const (
	outcomeSuccess      = "success"
	outcomeCooldown     = "cooldown"
	outcomePrecondition = "precondition"
	outcomeError        = "error"
)

var (
	// claimsTotal counts claim attempts by quest kind and outcome.
	claimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_claims_total",
			Help: "Quest claim attempts by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// paidTotal sums rewards credited by quest kind (or "referral").
	paidTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_paid_total",
			Help: "Total reward units credited by kind.",
		},
		[]string{"kind"},
	)

	// referralsTotal counts referral resolutions by outcome.
	referralsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referrals_total",
			Help: "Referral resolutions by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(claimsTotal, paidTotal, referralsTotal)
}
