package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentMethod is the wire and storage name of a payment instrument type.
type PaymentMethod string

const (
	PaymentMethodCreditCard    PaymentMethod = "CREDIT_CARD"
	PaymentMethodDebitCard     PaymentMethod = "DEBIT_CARD"
	PaymentMethodBankTransfer  PaymentMethod = "BANK_TRANSFER"
	PaymentMethodDigitalWallet PaymentMethod = "DIGITAL_WALLET"
	PaymentMethodUSSD          PaymentMethod = "USSD"
	PaymentMethodMobileMoney   PaymentMethod = "MOBILE_MONEY"
	PaymentMethodCash          PaymentMethod = "CASH"
	PaymentMethodCheck         PaymentMethod = "CHECK"
)

// Method is the closed set of payment method variants. Each variant owns its
// own risk weighting and refund fee rule.
type Method interface {
	Name() PaymentMethod
	// RiskScore is the method sub-score in [0,1].
	RiskScore() float64
	// RefundFee returns the processing fee withheld from a refund of amount.
	RefundFee(amount, pct decimal.Decimal) decimal.Decimal
	// Tokenizable reports whether the instrument carries a number to tokenize.
	Tokenizable() bool
	isMethod()
}

// Card is a credit or debit card.
type Card struct {
	Debit bool
}

// BankTransfer is an account-to-account transfer.
type BankTransfer struct{}

// Wallet is a digital wallet payment.
type Wallet struct{}

// CashEquivalent covers USSD, mobile money, cash and check.
type CashEquivalent struct {
	Kind PaymentMethod
}

func (c Card) Name() PaymentMethod {
	if c.Debit {
		return PaymentMethodDebitCard
	}
	return PaymentMethodCreditCard
}

func (c Card) RiskScore() float64 {
	if c.Debit {
		return 0.2
	}
	return 0.3
}

func (Card) RefundFee(amount, pct decimal.Decimal) decimal.Decimal {
	return percentFee(amount, pct)
}

func (Card) Tokenizable() bool { return true }
func (Card) isMethod()         {}

func (BankTransfer) Name() PaymentMethod { return PaymentMethodBankTransfer }
func (BankTransfer) RiskScore() float64  { return 0.25 }

func (BankTransfer) RefundFee(amount, pct decimal.Decimal) decimal.Decimal {
	return percentFee(amount, pct)
}

func (BankTransfer) Tokenizable() bool { return true }
func (BankTransfer) isMethod()         {}

func (Wallet) Name() PaymentMethod { return PaymentMethodDigitalWallet }
func (Wallet) RiskScore() float64  { return 0.15 }

func (Wallet) RefundFee(amount, pct decimal.Decimal) decimal.Decimal {
	return percentFee(amount, pct)
}

func (Wallet) Tokenizable() bool { return false }
func (Wallet) isMethod()         {}

func (c CashEquivalent) Name() PaymentMethod { return c.Kind }

func (c CashEquivalent) RiskScore() float64 {
	if c.Kind == PaymentMethodUSSD {
		return 0.4
	}
	return 0.5
}

// RefundFee is zero: cash-equivalent refunds are paid out manually.
func (CashEquivalent) RefundFee(decimal.Decimal, decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

func (CashEquivalent) Tokenizable() bool { return false }
func (CashEquivalent) isMethod()         {}

// percentFee rounds to cents so that fee + net always equals the requested amount.
func percentFee(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Round(2)
}

// ParseMethod resolves a method name into its variant.
func ParseMethod(name string) (Method, error) {
	switch PaymentMethod(strings.ToUpper(strings.TrimSpace(name))) {
	case PaymentMethodCreditCard:
		return Card{}, nil
	case PaymentMethodDebitCard:
		return Card{Debit: true}, nil
	case PaymentMethodBankTransfer:
		return BankTransfer{}, nil
	case PaymentMethodDigitalWallet:
		return Wallet{}, nil
	case PaymentMethodUSSD, PaymentMethodMobileMoney, PaymentMethodCash, PaymentMethodCheck:
		return CashEquivalent{Kind: PaymentMethod(strings.ToUpper(strings.TrimSpace(name)))}, nil
	}
	return nil, fmt.Errorf("unrecognized payment method %q", name)
}

// MustMethod returns the variant for a stored method name. Stored names were
// validated at intake, so an unknown value falls back to the riskiest variant.
func MustMethod(name PaymentMethod) Method {
	m, err := ParseMethod(string(name))
	if err != nil {
		return CashEquivalent{Kind: name}
	}
	return m
}
