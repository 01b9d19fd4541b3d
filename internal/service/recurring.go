package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paycore/internal/domain"
	"paycore/internal/lock"
)

// RecurringService manages recurring payment schedules and bills them
// through the regular payment pipeline.
type RecurringService struct {
	*core
	payments *PaymentService
}

// RecurringRequest contains the parameters for setting up a recurring payment.
type RecurringRequest struct {
	CustomerID       string
	BillingAccountID string
	Amount           decimal.Decimal
	Currency         string
	PaymentMethod    string
	Country          string
	Description      string
	Frequency        domain.Frequency
	StartDate        time.Time // Optional: defaults to now
	EndDate          time.Time // Optional: zero means open ended
	MaxRetries       int       // Optional: defaults to the scheduler setting
}

// Setup creates an ACTIVE schedule whose first billing date is one interval
// after the start date.
func (s *RecurringService) Setup(ctx context.Context, req RecurringRequest) (*domain.RecurringPayment, error) {
	defer segment(ctx, "RecurringService.Setup").End()

	if !s.features.RecurringPayments {
		return nil, ErrRecurringDisabled
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, ErrInvalidCustomerID
	}
	method, err := domain.ParseMethod(req.PaymentMethod)
	if err != nil {
		return nil, ErrInvalidPaymentMethod
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	interval, ok := req.Frequency.Interval()
	if !ok {
		return nil, ErrInvalidFrequency
	}

	now := s.now()
	start := req.StartDate
	if start.IsZero() {
		start = now
	}
	if !req.EndDate.IsZero() && !req.EndDate.After(start) {
		return nil, ErrInvalidSchedule
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.scheduler.MaxRetries
	}

	rp := &domain.RecurringPayment{
		ID:               uuid.New().String(),
		CustomerID:       strings.TrimSpace(req.CustomerID),
		BillingAccountID: req.BillingAccountID,
		Amount:           req.Amount,
		Currency:         currency,
		PaymentMethod:    method.Name(),
		Country:          strings.ToUpper(req.Country),
		Description:      req.Description,
		Frequency:        req.Frequency,
		Status:           domain.RecurringStatusActive,
		StartDate:        start,
		EndDate:          req.EndDate,
		NextBillingDate:  start.Add(interval),
		MaxRetries:       maxRetries,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if rp.Expired() {
		return nil, ErrInvalidSchedule
	}

	if err := s.ledger.RecurringPayments().Create(ctx, rp); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "recurring payment scheduled",
		"recurring_id", rp.ID,
		"customer_id", rp.CustomerID,
		"frequency", string(rp.Frequency),
		"next_billing_date", rp.NextBillingDate,
	)
	return rp, nil
}

// Execute bills the current cycle of an ACTIVE schedule. A failed attempt is
// recorded with its reason and counted in ConsecutiveFailures; the schedule
// then either waits for a retry with backoff, is suspended after MaxRetries,
// or moves to the next cycle when retries are switched off.
func (s *RecurringService) Execute(ctx context.Context, recurringID string) (*domain.RecurringPayment, error) {
	defer segment(ctx, "RecurringService.Execute").End()

	if !s.features.RecurringPayments {
		return nil, ErrRecurringDisabled
	}
	if recurringID == "" {
		return nil, ErrInvalidID
	}

	release, err := s.lock(ctx, lock.RecurringKey(recurringID))
	if err != nil {
		return nil, err
	}
	defer release()

	rp, err := s.ledger.RecurringPayments().GetByID(ctx, recurringID)
	if err != nil {
		return nil, err
	}
	if rp.Status != domain.RecurringStatusActive {
		return nil, ErrRecurringNotActive
	}

	now := s.now()
	if rp.Expired() {
		rp.Status = domain.RecurringStatusExpired
		rp.UpdatedAt = now
		if err := s.ledger.RecurringPayments().Update(ctx, rp); err != nil {
			return nil, err
		}
		recurringExecutionCounter.WithLabelValues("expired").Inc()
		return rp, nil
	}

	interval, _ := rp.Frequency.Interval()
	execution := domain.RecurringPaymentExecution{
		ID:           uuid.New().String(),
		Cycle:        rp.ExecutionCount + 1,
		Attempt:      rp.RetryCount + 1,
		ScheduledFor: rp.DueAt(),
	}

	txn, payErr := s.payments.SubmitPayment(ctx, PaymentIntent{
		CustomerID:       rp.CustomerID,
		BillingAccountID: rp.BillingAccountID,
		Amount:           rp.Amount,
		Currency:         rp.Currency,
		PaymentMethod:    string(rp.PaymentMethod),
		Country:          rp.Country,
		Description:      fmt.Sprintf("%s (cycle %d)", rp.Description, execution.Cycle),
		IdempotencyKey:   fmt.Sprintf("recurring:%s:%d", rp.ID, len(rp.Executions)+1),
	})
	if txn != nil {
		execution.TransactionID = txn.ID
	}
	if payErr == nil && txn != nil && txn.Status != domain.TransactionStatusCaptured && txn.Status != domain.TransactionStatusSettled {
		payErr = fmt.Errorf("transaction ended %s", txn.Status)
	}

	now = s.now()
	execution.ExecutedAt = now
	outcome := "succeeded"

	if payErr == nil {
		execution.Status = domain.ExecutionStatusSucceeded
		rp.ExecutionCount++
		rp.RetryCount = 0
		rp.ConsecutiveFailures = 0
		rp.NextRetryAt = time.Time{}
		rp.LastFailure = ""
		rp.NextBillingDate = rp.NextBillingDate.Add(interval)
		if rp.Expired() {
			rp.Status = domain.RecurringStatusExpired
		}
	} else {
		execution.Status = domain.ExecutionStatusFailed
		execution.FailureReason = payErr.Error()
		rp.LastFailure = payErr.Error()
		rp.ConsecutiveFailures++
		outcome = "failed"

		switch {
		case !s.features.RetryLogic:
			rp.ExecutionCount++
			rp.RetryCount = 0
			rp.NextRetryAt = time.Time{}
			rp.NextBillingDate = rp.NextBillingDate.Add(interval)
			if rp.Expired() {
				rp.Status = domain.RecurringStatusExpired
			}
		case rp.RetryCount+1 >= rp.MaxRetries:
			rp.RetryCount++
			rp.NextRetryAt = time.Time{}
			rp.Status = domain.RecurringStatusSuspended
			outcome = "suspended"
		default:
			rp.RetryCount++
			rp.NextRetryAt = now.Add(backoff(s.scheduler.RetryBackoff, rp.RetryCount))
		}
	}

	rp.Executions = append(rp.Executions, execution)
	rp.UpdatedAt = now
	if err := s.ledger.RecurringPayments().Update(ctx, rp); err != nil {
		return nil, err
	}
	recurringExecutionCounter.WithLabelValues(outcome).Inc()

	s.logger.InfoContext(ctx, "recurring payment executed",
		"recurring_id", rp.ID,
		"cycle", execution.Cycle,
		"attempt", execution.Attempt,
		"transaction_id", execution.TransactionID,
		"outcome", outcome,
		"status", string(rp.Status),
	)
	return rp, nil
}

// Cancel stops an ACTIVE or SUSPENDED schedule.
func (s *RecurringService) Cancel(ctx context.Context, recurringID string) (*domain.RecurringPayment, error) {
	if recurringID == "" {
		return nil, ErrInvalidID
	}

	release, err := s.lock(ctx, lock.RecurringKey(recurringID))
	if err != nil {
		return nil, err
	}
	defer release()

	rp, err := s.ledger.RecurringPayments().GetByID(ctx, recurringID)
	if err != nil {
		return nil, err
	}
	if rp.Status != domain.RecurringStatusActive && rp.Status != domain.RecurringStatusSuspended {
		return nil, ErrRecurringNotActive
	}

	rp.Status = domain.RecurringStatusCancelled
	rp.NextRetryAt = time.Time{}
	rp.UpdatedAt = s.now()
	if err := s.ledger.RecurringPayments().Update(ctx, rp); err != nil {
		return nil, err
	}
	return rp, nil
}

// Get retrieves a recurring payment by ID.
func (s *RecurringService) Get(ctx context.Context, recurringID string) (*domain.RecurringPayment, error) {
	if recurringID == "" {
		return nil, ErrInvalidID
	}
	return s.ledger.RecurringPayments().GetByID(ctx, recurringID)
}

// List lists every recurring payment.
func (s *RecurringService) List(ctx context.Context) ([]*domain.RecurringPayment, error) {
	return s.ledger.RecurringPayments().List(ctx)
}

// DueIDs returns the ids of ACTIVE schedules due at now.
func (s *RecurringService) DueIDs(ctx context.Context, now time.Time) ([]string, error) {
	due, err := s.ledger.RecurringPayments().ListDue(ctx, now)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(due))
	for _, rp := range due {
		ids = append(ids, rp.ID)
	}
	return ids, nil
}

// ExecuteDue bills every schedule due now, one after another, and returns how
// many were attempted. Schedules that are no longer active are skipped.
func (s *RecurringService) ExecuteDue(ctx context.Context) (int, error) {
	ids, err := s.DueIDs(ctx, s.now())
	if err != nil {
		return 0, err
	}

	attempted := 0
	var errs []error
	for _, id := range ids {
		if _, err := s.Execute(ctx, id); err != nil {
			if errors.Is(err, ErrRecurringNotActive) {
				continue
			}
			errs = append(errs, fmt.Errorf("recurring %s: %w", id, err))
			continue
		}
		attempted++
	}
	return attempted, errors.Join(errs...)
}
