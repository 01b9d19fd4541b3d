package service

import (
	"math"

	"github.com/shopspring/decimal"

	"paycore/internal/config"
	"paycore/internal/domain"
)

// Score names as recorded on ComplianceInfo.
const (
	ScoreAmount        = "amount"
	ScorePaymentMethod = "payment_method"
	ScoreGeographic    = "geographic"
	ScoreVelocity      = "velocity"
)

// RiskInput is everything the evaluator looks at. RecentCount is the velocity
// snapshot taken before the transaction was recorded.
type RiskInput struct {
	Amount      decimal.Decimal
	Method      domain.Method
	Country     string
	RecentCount int
}

// RiskAssessment is the verdict for one RiskInput.
type RiskAssessment struct {
	Scores  map[string]float64
	Overall float64
	Tier    domain.RiskTier
}

// RiskThresholds contains the tier cut-offs.
type RiskThresholds struct {
	High   float64 // Overall score at or above this fails the transaction
	Medium float64 // Overall score at or above this flags manual review
}

// DefaultRiskThresholds returns the default tier cut-offs.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{
		High:   0.75,
		Medium: 0.50,
	}
}

// RiskEvaluator scores transactions. Evaluate is a pure function of its input.
type RiskEvaluator struct {
	thresholds        RiskThresholds
	highRiskCountries func(string) bool
}

// NewRiskEvaluator creates a RiskEvaluator from policy.
func NewRiskEvaluator(policy config.Policy) *RiskEvaluator {
	thresholds := DefaultRiskThresholds()
	if policy.HighRiskThreshold > 0 {
		thresholds.High = policy.HighRiskThreshold
	}
	if policy.MediumRiskThreshold > 0 {
		thresholds.Medium = policy.MediumRiskThreshold
	}
	return &RiskEvaluator{
		thresholds:        thresholds,
		highRiskCountries: policy.IsHighRiskCountry,
	}
}

// Evaluate computes the four sub-scores, their mean and the tier.
func (e *RiskEvaluator) Evaluate(in RiskInput) RiskAssessment {
	scores := map[string]float64{
		ScoreAmount:        amountScore(in.Amount),
		ScorePaymentMethod: in.Method.RiskScore(),
		ScoreGeographic:    e.geoScore(in.Country),
		ScoreVelocity:      velocityScore(in.RecentCount),
	}

	sum := scores[ScoreAmount] + scores[ScorePaymentMethod] + scores[ScoreGeographic] + scores[ScoreVelocity]
	overall := math.Round(sum/4*10000) / 10000

	return RiskAssessment{
		Scores:  scores,
		Overall: overall,
		Tier:    e.tier(overall),
	}
}

func (e *RiskEvaluator) tier(overall float64) domain.RiskTier {
	switch {
	case overall >= e.thresholds.High:
		return domain.RiskTierHigh
	case overall >= e.thresholds.Medium:
		return domain.RiskTierMedium
	default:
		return domain.RiskTierLow
	}
}

var (
	amountTier1 = decimal.NewFromInt(10000)
	amountTier2 = decimal.NewFromInt(5000)
	amountTier3 = decimal.NewFromInt(1000)
)

// amountScore rises with unusual amounts.
func amountScore(amount decimal.Decimal) float64 {
	switch {
	case amount.GreaterThan(amountTier1):
		return 0.7
	case amount.GreaterThan(amountTier2):
		return 0.5
	case amount.GreaterThan(amountTier3):
		return 0.3
	default:
		return 0.1
	}
}

func (e *RiskEvaluator) geoScore(country string) float64 {
	if country != "" && e.highRiskCountries != nil && e.highRiskCountries(country) {
		return 1.0
	}
	return 0.2
}

// velocityScore grows with the number of recent transactions by the customer.
func velocityScore(recent int) float64 {
	switch {
	case recent <= 3:
		return 0.15
	case recent <= 10:
		return 0.4
	case recent <= 20:
		return 0.8
	default:
		return 1.0
	}
}
