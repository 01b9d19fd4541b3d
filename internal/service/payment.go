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
	"paycore/internal/gateway"
	"paycore/internal/lock"
	"paycore/internal/repository"
)

const (
	actorSystem          = "system"
	defaultCurrency      = "USD"
	maxReferenceAttempts = 3
)

// PaymentService takes payment intents through intake, risk scoring,
// authorization and capture.
type PaymentService struct {
	*core
	risk *RiskEvaluator
}

// PaymentIntent contains the parameters for submitting a payment.
type PaymentIntent struct {
	CustomerID       string
	BillingAccountID string
	OrderID          string
	InvoiceID        string
	Amount           decimal.Decimal
	Currency         string // Optional: defaults to USD
	PaymentMethod    string
	Country          string
	Description      string
	IdempotencyKey   string

	// Instrument is the raw card or account number. It is reduced to a token
	// and the last four digits and never stored.
	Instrument string
	Brand      string
}

// SubmitPayment creates a transaction and runs it through the pipeline. A
// fraud rejection returns the FAILED transaction together with ErrFraudRejected.
// A repeated idempotency key returns the transaction created first.
func (s *PaymentService) SubmitPayment(ctx context.Context, intent PaymentIntent) (*domain.Transaction, error) {
	defer segment(ctx, "PaymentService.SubmitPayment").End()

	if !s.features.TransactionProcessing {
		return nil, ErrTransactionProcessingDisabled
	}

	method, err := s.validateIntent(&intent)
	if err != nil {
		return nil, err
	}

	if intent.IdempotencyKey != "" {
		release, err := s.lock(ctx, lock.IdempotencyKey(intent.IdempotencyKey))
		if err != nil {
			return nil, err
		}
		defer release()

		existing, err := s.ledger.Transactions().GetByIdempotencyKey(ctx, intent.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	now := s.now()

	// Snapshot velocity before the new row exists so it never counts itself.
	recent := 0
	if s.features.FraudDetection {
		recent, err = s.velocity.CountSince(ctx, intent.CustomerID, now.Add(-s.policy.VelocityWindow))
		if err != nil {
			// Fail open on the lookup; the other sub-scores still apply.
			s.logger.WarnContext(ctx, "velocity lookup failed", "customer_id", intent.CustomerID, "error", err)
			recent = 0
		}
	}

	txn := &domain.Transaction{
		ID:               uuid.New().String(),
		IdempotencyKey:   intent.IdempotencyKey,
		CustomerID:       intent.CustomerID,
		BillingAccountID: intent.BillingAccountID,
		OrderID:          intent.OrderID,
		InvoiceID:        intent.InvoiceID,
		Amount:           intent.Amount,
		Currency:         intent.Currency,
		PaymentMethod:    method.Name(),
		Country:          strings.ToUpper(intent.Country),
		Status:           domain.TransactionStatusPending,
		Description:      intent.Description,
		RefundState:      domain.RefundStateNone,
		RefundedAmount:   decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	txn.AppendEvent(domain.EventCreated, "Transaction created", actorSystem, now)

	release, err := s.lock(ctx, lock.TransactionKey(txn.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.create(ctx, txn); err != nil {
		if errors.Is(err, repository.ErrDuplicate) && intent.IdempotencyKey != "" {
			if existing, getErr := s.ledger.Transactions().GetByIdempotencyKey(ctx, intent.IdempotencyKey); getErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	s.committed(ctx, txn, 0)

	if err := s.velocity.Record(ctx, txn.CustomerID, txn.ID, now); err != nil {
		s.logger.WarnContext(ctx, "velocity record failed", "customer_id", txn.CustomerID, "error", err)
	}

	mark := len(txn.Events)
	rejected := s.assessRisk(txn, method, recent)
	if !rejected {
		s.checkCompliance(txn, method, intent)
	}
	if err := s.saveTransaction(ctx, txn, mark); err != nil {
		return nil, err
	}
	if rejected {
		return txn, fmt.Errorf("%w: overall score %.4f", ErrFraudRejected, txn.Compliance.OverallScore)
	}

	if err := s.authorize(ctx, txn); err != nil {
		return txn, err
	}
	if err := s.capture(ctx, txn); err != nil {
		return txn, err
	}
	return txn, nil
}

// create stores txn, drawing a fresh reference number if one collides.
func (s *PaymentService) create(ctx context.Context, txn *domain.Transaction) error {
	var err error
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		txn.ReferenceNumber = s.refs.Next(txn.CreatedAt)
		err = s.ledger.Transactions().Create(ctx, txn)
		if !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		if txn.IdempotencyKey != "" {
			// The clash may be the key rather than the reference.
			if existing, getErr := s.ledger.Transactions().GetByIdempotencyKey(ctx, txn.IdempotencyKey); getErr == nil && existing != nil {
				return err
			}
		}
	}
	return err
}

func (s *PaymentService) validateIntent(intent *PaymentIntent) (domain.Method, error) {
	if !intent.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(intent.PaymentMethod) == "" {
		return nil, ErrInvalidPaymentMethod
	}
	method, err := domain.ParseMethod(intent.PaymentMethod)
	if err != nil {
		return nil, ErrInvalidPaymentMethod
	}
	intent.CustomerID = strings.TrimSpace(intent.CustomerID)
	if intent.CustomerID == "" {
		return nil, ErrInvalidCustomerID
	}
	currency, err := normalizeCurrency(intent.Currency)
	if err != nil {
		return nil, err
	}
	intent.Currency = currency
	return method, nil
}

func normalizeCurrency(currency string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return defaultCurrency, nil
	}
	if len(currency) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return currency, nil
}

// assessRisk scores txn and applies the tier. It reports whether the
// transaction was rejected.
func (s *PaymentService) assessRisk(txn *domain.Transaction, method domain.Method, recent int) bool {
	now := s.now()

	if !s.features.FraudDetection {
		txn.AppendEvent(domain.EventRiskSkipped, "Fraud detection disabled", actorSystem, now)
		return false
	}

	assessment := s.risk.Evaluate(RiskInput{
		Amount:      txn.Amount,
		Method:      method,
		Country:     txn.Country,
		RecentCount: recent,
	})
	riskScoreHist.WithLabelValues(string(assessment.Tier)).Observe(assessment.Overall)

	txn.Compliance = &domain.ComplianceInfo{
		RiskTier:     assessment.Tier,
		Scores:       assessment.Scores,
		OverallScore: assessment.Overall,
		CheckedAt:    now,
	}
	txn.AppendEvent(domain.EventRiskAssessed,
		fmt.Sprintf("Risk tier %s, overall score %.4f", assessment.Tier, assessment.Overall),
		actorSystem, now)

	switch assessment.Tier {
	case domain.RiskTierHigh:
		txn.Compliance.FraudDetected = true
		txn.Compliance.Reason = fmt.Sprintf("High fraud score: %.4f", assessment.Overall)
		// PENDING -> FAILED is always allowed.
		_ = txn.TransitionTo(domain.TransactionStatusFailed, now)
		txn.AppendEvent(domain.EventFraudRejected, txn.Compliance.Reason, actorSystem, now)
		return true
	case domain.RiskTierMedium:
		txn.Compliance.ManualReview = true
		txn.Compliance.Reason = "Medium fraud risk detected"
		txn.AppendEvent(domain.EventManualReview, txn.Compliance.Reason, actorSystem, now)
	}
	return false
}

// checkCompliance records the PCI, AML and KYC gates and tokenizes the
// instrument when enabled.
func (s *PaymentService) checkCompliance(txn *domain.Transaction, method domain.Method, intent PaymentIntent) {
	now := s.now()

	tokenized := false
	if s.features.Tokenization && method.Tokenizable() {
		txn.PaymentDetails = tokenize(intent.Instrument, intent.Brand)
		tokenized = true
		txn.AppendEvent(domain.EventTokenized,
			"Instrument tokenized, last4 "+txn.PaymentDetails.Last4, actorSystem, now)
	} else if intent.Brand != "" {
		txn.PaymentDetails = &domain.PaymentDetails{Brand: intent.Brand}
	}

	if !s.features.PCICompliance {
		txn.AppendEvent(domain.EventComplianceSkipped, "Compliance checks disabled: pci, aml, kyc", actorSystem, now)
		return
	}

	if txn.Compliance == nil {
		txn.Compliance = &domain.ComplianceInfo{CheckedAt: now}
	}
	txn.Compliance.PCICompliant = tokenized || !method.Tokenizable()
	txn.Compliance.AMLChecked = s.features.AMLChecks
	txn.Compliance.KYCValidated = s.features.KYCValidation

	var skipped []string
	if !s.features.AMLChecks {
		skipped = append(skipped, "aml")
	}
	if !s.features.KYCValidation {
		skipped = append(skipped, "kyc")
	}

	description := fmt.Sprintf("pci=%t aml=%t kyc=%t",
		txn.Compliance.PCICompliant, txn.Compliance.AMLChecked, txn.Compliance.KYCValidated)
	txn.AppendEvent(domain.EventComplianceChecked, description, actorSystem, now)
	if len(skipped) > 0 {
		txn.AppendEvent(domain.EventComplianceSkipped,
			"Compliance checks disabled: "+strings.Join(skipped, ", "), actorSystem, now)
	}
}

// tokenize keeps the last four digits and an opaque token. The token is
// random, so the instrument cannot be recovered from it.
func tokenize(instrument, brand string) *domain.PaymentDetails {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, instrument)

	last4 := ""
	if len(digits) >= 4 {
		last4 = digits[len(digits)-4:]
	}

	return &domain.PaymentDetails{
		Last4:     last4,
		Token:     "tok_" + uuid.New().String(),
		Tokenized: true,
		Brand:     brand,
	}
}

// Authorize runs the authorization step for a PENDING transaction.
func (s *PaymentService) Authorize(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	defer segment(ctx, "PaymentService.Authorize").End()

	release, err := s.lock(ctx, lock.TransactionKey(transactionID))
	if err != nil {
		return nil, err
	}
	defer release()

	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, txn); err != nil {
		return txn, err
	}
	return txn, nil
}

func (s *PaymentService) authorize(ctx context.Context, txn *domain.Transaction) error {
	if !domain.CanTransition(txn.Status, domain.TransactionStatusAuthorized) {
		return &domain.TransitionError{From: txn.Status, To: domain.TransactionStatusAuthorized}
	}

	mark := len(txn.Events)
	threeDS := s.features.ThreeDSecure && txn.Amount.GreaterThanOrEqual(s.policy.ThreeDSecureThreshold)

	token := ""
	if txn.PaymentDetails != nil {
		token = txn.PaymentDetails.Token
	}

	started := time.Now()
	result, err := s.gateway.Authorize(ctx, gateway.AuthorizeRequest{
		TransactionID: txn.ID,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		Method:        txn.PaymentMethod,
		Token:         token,
		ThreeDSecure:  threeDS,
	})
	observeGateway("authorize", started, err)

	now := s.now()
	if err != nil {
		txn.AppendEvent(domain.EventAuthError, "Authorization failed: "+err.Error(), actorSystem, now)
		if saveErr := s.saveTransaction(ctx, txn, mark); saveErr != nil {
			return saveErr
		}
		return gatewayError(err)
	}

	if !result.Approved {
		txn.Authorization = &domain.AuthorizationInfo{
			Status:          "DECLINED",
			IssuedAt:        now,
			ThreeDSecure:    threeDS,
			ResponseCode:    result.ResponseCode,
			ResponseMessage: result.ResponseMessage,
		}
		if err := txn.TransitionTo(domain.TransactionStatusAuthDeclined, now); err != nil {
			return err
		}
		txn.AppendEvent(domain.EventAuthDeclined,
			fmt.Sprintf("Authorization declined (%s): %s", result.ResponseCode, result.ResponseMessage),
			actorSystem, now)
		if err := s.saveTransaction(ctx, txn, mark); err != nil {
			return err
		}
		return fmt.Errorf("%w: response code %s", ErrDeclined, result.ResponseCode)
	}

	auth := &domain.AuthorizationInfo{
		Code:             authorizationCode(),
		Status:           "AUTHORIZED",
		AuthorizedAmount: txn.Amount,
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.policy.AuthorizationTTL),
		ThreeDSecure:     threeDS,
		ResponseCode:     result.ResponseCode,
		ResponseMessage:  result.ResponseMessage,
	}
	if threeDS {
		auth.ChallengeID = "ACS-" + uuid.New().String()
	}
	txn.Authorization = auth

	if err := txn.TransitionTo(domain.TransactionStatusAuthorized, now); err != nil {
		return err
	}
	description := "Authorized " + auth.Code
	if threeDS {
		description += " with 3-D Secure challenge " + auth.ChallengeID
	}
	txn.AppendEvent(domain.EventAuthorized, description, actorSystem, now)
	return s.saveTransaction(ctx, txn, mark)
}

func authorizationCode() string {
	return "AUTH-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
}

// Capture runs the capture step for an AUTHORIZED transaction. An expired
// authorization is reversed and the transaction cancelled instead.
func (s *PaymentService) Capture(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	defer segment(ctx, "PaymentService.Capture").End()

	release, err := s.lock(ctx, lock.TransactionKey(transactionID))
	if err != nil {
		return nil, err
	}
	defer release()

	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.capture(ctx, txn); err != nil {
		return txn, err
	}
	return txn, nil
}

func (s *PaymentService) capture(ctx context.Context, txn *domain.Transaction) error {
	if txn.Status != domain.TransactionStatusAuthorized || txn.Authorization == nil {
		return &domain.TransitionError{From: txn.Status, To: domain.TransactionStatusCaptured}
	}

	mark := len(txn.Events)

	// Expiry is checked on every capture attempt, not once at authorization.
	if txn.Authorization.Expired(s.now()) {
		if err := s.reverse(ctx, txn, domain.EventAuthExpired, "Authorization expired before capture"); err != nil {
			return err
		}
		return ErrAuthorizationExpired
	}

	channel := Route(txn.Amount, txn.PaymentMethod, s.policy.HighValueThreshold, s.features.IntelligentRouting)

	started := time.Now()
	result, err := s.gateway.Capture(ctx, gateway.CaptureRequest{
		TransactionID:     txn.ID,
		AuthorizationCode: txn.Authorization.Code,
		Channel:           channel,
		Amount:            txn.Authorization.AuthorizedAmount,
		Currency:          txn.Currency,
	})
	observeGateway("capture", started, err)

	now := s.now()
	if err != nil {
		txn.AppendEvent(domain.EventCaptureFailed,
			fmt.Sprintf("Capture via %s failed: %v", channel, err), actorSystem, now)
		if saveErr := s.saveTransaction(ctx, txn, mark); saveErr != nil {
			return saveErr
		}
		return gatewayError(err)
	}

	txn.Settlement = s.newSettlement(txn, channel, result.Reference, now)
	if err := txn.TransitionTo(domain.TransactionStatusCaptured, now); err != nil {
		return err
	}
	txn.AppendEvent(domain.EventCaptured, "Captured via "+channel+" channel", actorSystem, now)
	if !s.features.Settlement {
		txn.AppendEvent(domain.EventSettlementSkipped, "Settlement disabled, transaction stays captured", actorSystem, now)
	}
	return s.saveTransaction(ctx, txn, mark)
}

// newSettlement converts the amount into the settlement currency. ExchangeRate
// keeps the quote as configured, settlement units per transaction unit, so
// reconciliation divides by the exact rate that produced the amount.
func (s *PaymentService) newSettlement(txn *domain.Transaction, channel, reference string, now time.Time) *domain.SettlementInfo {
	quote, ok := s.policy.Rate(txn.Currency)
	currency := s.policy.SettlementCurrency
	if !ok || currency == "" {
		if !ok {
			s.logger.Warn("no exchange rate, settling in transaction currency",
				"transaction_id", txn.ID, "currency", txn.Currency)
		}
		quote = decimal.NewFromInt(1)
		currency = txn.Currency
	}

	return &domain.SettlementInfo{
		ID:           "SETTLE-" + uuid.New().String(),
		Channel:      channel,
		Status:       domain.SettlementStatusProcessing,
		Amount:       txn.Amount.Mul(quote).Round(2),
		Currency:     currency,
		ExchangeRate: quote,
		ProjectedAt:  now.Add(s.policy.SettlementDelay),
		GatewayRef:   reference,
	}
}

// reverse voids the authorization at the gateway and cancels txn.
func (s *PaymentService) reverse(ctx context.Context, txn *domain.Transaction, eventType domain.EventType, description string) error {
	mark := len(txn.Events)

	started := time.Now()
	err := s.gateway.Reverse(ctx, txn.ID, txn.Authorization.Code)
	observeGateway("reverse", started, err)

	now := s.now()
	if err != nil {
		txn.AppendEvent(domain.EventAuthError, "Reversal failed: "+err.Error(), actorSystem, now)
		if saveErr := s.saveTransaction(ctx, txn, mark); saveErr != nil {
			return saveErr
		}
		return gatewayError(err)
	}

	if eventType == domain.EventAuthExpired {
		txn.Authorization.Status = "EXPIRED"
	} else {
		txn.Authorization.Status = "VOIDED"
	}
	if err := txn.TransitionTo(domain.TransactionStatusCancelled, now); err != nil {
		return err
	}
	txn.AppendEvent(eventType, description, actorSystem, now)
	return s.saveTransaction(ctx, txn, mark)
}

// VoidAuthorization reverses an AUTHORIZED transaction on request.
func (s *PaymentService) VoidAuthorization(ctx context.Context, transactionID, reason string) (*domain.Transaction, error) {
	defer segment(ctx, "PaymentService.VoidAuthorization").End()

	release, err := s.lock(ctx, lock.TransactionKey(transactionID))
	if err != nil {
		return nil, err
	}
	defer release()

	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.TransactionStatusAuthorized || txn.Authorization == nil {
		return nil, &domain.TransitionError{From: txn.Status, To: domain.TransactionStatusCancelled}
	}

	description := "Authorization voided"
	if reason != "" {
		description += ": " + reason
	}
	if err := s.reverse(ctx, txn, domain.EventVoided, description); err != nil {
		return txn, err
	}
	return txn, nil
}

// CancelTransaction cancels a PENDING transaction.
func (s *PaymentService) CancelTransaction(ctx context.Context, transactionID, reason string) (*domain.Transaction, error) {
	defer segment(ctx, "PaymentService.CancelTransaction").End()

	release, err := s.lock(ctx, lock.TransactionKey(transactionID))
	if err != nil {
		return nil, err
	}
	defer release()

	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.TransactionStatusPending {
		return nil, &domain.TransitionError{From: txn.Status, To: domain.TransactionStatusCancelled}
	}

	mark := len(txn.Events)
	now := s.now()
	if err := txn.TransitionTo(domain.TransactionStatusCancelled, now); err != nil {
		return nil, err
	}
	description := "Transaction cancelled"
	if reason != "" {
		description += ": " + reason
	}
	txn.AppendEvent(domain.EventCancelled, description, actorSystem, now)
	if err := s.saveTransaction(ctx, txn, mark); err != nil {
		return nil, err
	}
	return txn, nil
}

// GetTransaction retrieves a transaction by ID.
func (s *PaymentService) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.loadTransaction(ctx, transactionID)
}

// GetByReference retrieves a transaction by its reference number.
func (s *PaymentService) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	if reference == "" {
		return nil, ErrInvalidID
	}
	return s.ledger.Transactions().GetByReference(ctx, reference)
}

// ListTransactions lists every transaction, or one customer's when customerID is set.
func (s *PaymentService) ListTransactions(ctx context.Context, customerID string) ([]*domain.Transaction, error) {
	if customerID != "" {
		return s.ledger.Transactions().ListByCustomer(ctx, customerID)
	}
	return s.ledger.Transactions().List(ctx)
}
