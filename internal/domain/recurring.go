package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the billing cadence of a recurring payment.
type Frequency string

const (
	FrequencyDaily      Frequency = "DAILY"
	FrequencyWeekly     Frequency = "WEEKLY"
	FrequencyMonthly    Frequency = "MONTHLY"
	FrequencyQuarterly  Frequency = "QUARTERLY"
	FrequencySemiAnnual Frequency = "SEMI_ANNUAL"
	FrequencyAnnual     Frequency = "ANNUAL"
)

var frequencyDays = map[Frequency]int{
	FrequencyDaily:      1,
	FrequencyWeekly:     7,
	FrequencyMonthly:    30,
	FrequencyQuarterly:  90,
	FrequencySemiAnnual: 180,
	FrequencyAnnual:     365,
}

// Interval is the fixed, calendar-naive length of one billing cycle.
// The second result is false for an unknown frequency.
func (f Frequency) Interval() (time.Duration, bool) {
	days, ok := frequencyDays[f]
	if !ok {
		return 0, false
	}
	return time.Duration(days) * 24 * time.Hour, true
}

// RecurringStatus represents the state of a recurring schedule.
type RecurringStatus string

const (
	RecurringStatusActive    RecurringStatus = "ACTIVE"
	RecurringStatusSuspended RecurringStatus = "SUSPENDED"
	RecurringStatusCancelled RecurringStatus = "CANCELLED"
	RecurringStatusExpired   RecurringStatus = "EXPIRED"
	RecurringStatusFailed    RecurringStatus = "FAILED"
)

// ExecutionStatus is the outcome of a single billing attempt.
type ExecutionStatus string

const (
	ExecutionStatusSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
)

// RecurringPaymentExecution records one billing-cycle attempt.
type RecurringPaymentExecution struct {
	ID            string
	Cycle         int
	Attempt       int
	TransactionID string
	Status        ExecutionStatus
	FailureReason string
	ScheduledFor  time.Time
	ExecutedAt    time.Time
}

// RecurringPayment is a repeating instruction that produces one transaction per cycle.
type RecurringPayment struct {
	ID               string
	CustomerID       string
	BillingAccountID string
	Amount           decimal.Decimal
	Currency         string
	PaymentMethod    PaymentMethod
	Country          string
	Description      string
	Frequency        Frequency
	Status           RecurringStatus
	StartDate        time.Time
	EndDate          time.Time
	NextBillingDate  time.Time
	ExecutionCount   int
	RetryCount       int // attempts spent on the current cycle
	MaxRetries       int
	// ConsecutiveFailures counts failed attempts since the last success,
	// across cycles.
	ConsecutiveFailures int
	NextRetryAt      time.Time
	LastFailure      string
	Executions       []RecurringPaymentExecution
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DueAt is the next moment the schedule wants to run: a pending retry, else
// the billing date.
func (r *RecurringPayment) DueAt() time.Time {
	if !r.NextRetryAt.IsZero() {
		return r.NextRetryAt
	}
	return r.NextBillingDate
}

// IsDue reports whether an active schedule should execute at now.
func (r *RecurringPayment) IsDue(now time.Time) bool {
	return r.Status == RecurringStatusActive && !now.Before(r.DueAt())
}

// Expired reports whether the next billing date falls after the end date.
func (r *RecurringPayment) Expired() bool {
	return !r.EndDate.IsZero() && r.NextBillingDate.After(r.EndDate)
}

// Clone returns a deep copy of the schedule.
func (r *RecurringPayment) Clone() *RecurringPayment {
	if r == nil {
		return nil
	}
	c := *r
	if r.Executions != nil {
		c.Executions = make([]RecurringPaymentExecution, len(r.Executions))
		copy(c.Executions, r.Executions)
	}
	return &c
}
