package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"paycore/internal/config"
	"paycore/internal/domain"
)

func TestRiskEvaluator_Evaluate(t *testing.T) {
	t.Parallel()
	evaluator := NewRiskEvaluator(config.Policy{HighRiskCountries: []string{"XX"}})

	testCases := []struct {
		name    string
		input   RiskInput
		overall float64
		tier    domain.RiskTier
	}{
		{
			name:    "small card payment",
			input:   RiskInput{Amount: dec("50"), Method: domain.Card{}, Country: "US", RecentCount: 0},
			overall: 0.1875,
			tier:    domain.RiskTierLow,
		},
		{
			name:    "large check from high risk country with heavy velocity",
			input:   RiskInput{Amount: dec("20000"), Method: domain.CashEquivalent{Kind: domain.PaymentMethodCheck}, Country: "XX", RecentCount: 25},
			overall: 0.8,
			tier:    domain.RiskTierHigh,
		},
		{
			name:    "exactly at the high threshold",
			input:   RiskInput{Amount: dec("20000"), Method: domain.CashEquivalent{Kind: domain.PaymentMethodCheck}, Country: "XX", RecentCount: 15},
			overall: 0.75,
			tier:    domain.RiskTierHigh,
		},
		{
			name:    "exactly at the medium threshold",
			input:   RiskInput{Amount: dec("100"), Method: domain.CashEquivalent{Kind: domain.PaymentMethodCash}, Country: "XX", RecentCount: 5},
			overall: 0.5,
			tier:    domain.RiskTierMedium,
		},
		{
			name:    "wallet with moderate velocity",
			input:   RiskInput{Amount: dec("1500"), Method: domain.Wallet{}, RecentCount: 8},
			overall: 0.2625,
			tier:    domain.RiskTierLow,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := evaluator.Evaluate(tc.input)
			assert.InDelta(t, tc.overall, got.Overall, 1e-9)
			assert.Equal(t, tc.tier, got.Tier)
			assert.Len(t, got.Scores, 4)
		})
	}
}

func TestRiskEvaluator_IsDeterministic(t *testing.T) {
	t.Parallel()
	evaluator := NewRiskEvaluator(config.Policy{})
	input := RiskInput{Amount: dec("7500"), Method: domain.BankTransfer{}, Country: "DE", RecentCount: 12}

	first := evaluator.Evaluate(input)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, evaluator.Evaluate(input))
	}
}

func TestRiskEvaluator_Thresholds(t *testing.T) {
	t.Parallel()

	evaluator := NewRiskEvaluator(config.Policy{HighRiskThreshold: 0.3, MediumRiskThreshold: 0.2})
	got := evaluator.Evaluate(RiskInput{Amount: dec("2000"), Method: domain.Card{}, RecentCount: 0})
	// 0.3 + 0.3 + 0.2 + 0.15
	assert.InDelta(t, 0.2375, got.Overall, 1e-9)
	assert.Equal(t, domain.RiskTierMedium, got.Tier)

	defaults := NewRiskEvaluator(config.Policy{})
	assert.Equal(t, DefaultRiskThresholds(), defaults.thresholds)
}

func TestSubScores(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.1, amountScore(dec("1000")))
	assert.Equal(t, 0.3, amountScore(dec("1000.01")))
	assert.Equal(t, 0.5, amountScore(dec("10000")))
	assert.Equal(t, 0.7, amountScore(dec("10000.01")))

	assert.Equal(t, 0.15, velocityScore(3))
	assert.Equal(t, 0.4, velocityScore(4))
	assert.Equal(t, 0.8, velocityScore(20))
	assert.Equal(t, 1.0, velocityScore(21))
}
