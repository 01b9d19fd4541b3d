package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := Defaults()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 0.75, cfg.Policy.HighRiskThreshold)
	assert.Equal(t, 0.50, cfg.Policy.MediumRiskThreshold)
	assert.True(t, cfg.Policy.RefundFeePercentage.Equal(decimal.RequireFromString("0.02")))
	assert.Equal(t, 45*24*time.Hour, cfg.Policy.DisputeWindow)
	assert.Equal(t, 24*time.Hour, cfg.Policy.AuthorizationTTL)
	assert.True(t, cfg.Policy.ReconciliationTolerance.IsZero())
	assert.True(t, cfg.Features.FraudDetection)
	assert.False(t, cfg.Features.AutoRefund)
	assert.Equal(t, []string{"log"}, cfg.Events.Sinks)
}

func TestLoadFrom_Overrides(t *testing.T) {
	t.Parallel()

	values := map[string]string{
		"PAYMENT_ENABLE_FRAUD_DETECTION": "false",
		"PAYMENT_ENABLE_AUTO_REFUND":     "true",
		"EXCHANGE_RATES":                 "eur:usd=1.08, GBP:USD=1.27, bad, JPY:USD=-1",
		"EVENT_SINKS":                    "log,kafka",
		"HIGH_RISK_COUNTRIES":            "XX, YY",
		"SCHEDULER_WORKERS":              "not-a-number",
	}
	cfg := LoadFrom(func(key string) string { return values[key] })

	assert.False(t, cfg.Features.FraudDetection)
	assert.True(t, cfg.Features.AutoRefund)
	assert.Len(t, cfg.Policy.ExchangeRates, 2)
	assert.True(t, cfg.Events.HasSink("kafka"))
	assert.False(t, cfg.Events.HasSink("redis"))
	assert.True(t, cfg.Policy.IsHighRiskCountry("yy"))
	assert.Equal(t, 4, cfg.Scheduler.Workers)

	rate, ok := cfg.Policy.Rate("EUR")
	assert.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("1.08")))

	rate, ok = cfg.Policy.Rate("USD")
	assert.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	_, ok = cfg.Policy.Rate("CHF")
	assert.False(t, ok)
}
