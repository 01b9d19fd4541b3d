// Package events fans transaction events out to billing and notification consumers.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"paycore/internal/domain"
)

// Event is the wire form of a domain.TransactionEvent.
type Event struct {
	TransactionID   string                   `json:"transaction_id"`
	ReferenceNumber string                   `json:"reference_number"`
	CustomerID      string                   `json:"customer_id"`
	OrderID         string                   `json:"order_id,omitempty"`
	Sequence        int                      `json:"sequence"`
	Type            domain.EventType         `json:"type"`
	Status          domain.TransactionStatus `json:"status"`
	Amount          string                   `json:"amount"`
	Currency        string                   `json:"currency"`
	Description     string                   `json:"description,omitempty"`
	OccurredAt      time.Time                `json:"occurred_at"`
}

// FromTransaction builds the wire event for one log entry of txn.
func FromTransaction(txn *domain.Transaction, e domain.TransactionEvent) Event {
	return Event{
		TransactionID:   txn.ID,
		ReferenceNumber: txn.ReferenceNumber,
		CustomerID:      txn.CustomerID,
		OrderID:         txn.OrderID,
		Sequence:        e.Sequence,
		Type:            e.Type,
		Status:          e.Status,
		Amount:          txn.Amount.StringFixed(2),
		Currency:        txn.Currency,
		Description:     e.Description,
		OccurredAt:      e.OccurredAt,
	}
}

// Publisher delivers events. Implementations must preserve per-transaction order.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "transaction event",
		"transaction_id", event.TransactionID,
		"sequence", event.Sequence,
		"event", string(event.Type),
		"status", string(event.Status),
		"amount", event.Amount,
		"currency", event.Currency,
	)
	return nil
}

// MultiPublisher delivers each event to every sink and joins their errors.
type MultiPublisher struct {
	sinks []Publisher
}

// NewMultiPublisher creates a MultiPublisher over sinks.
func NewMultiPublisher(sinks ...Publisher) *MultiPublisher {
	return &MultiPublisher{sinks: sinks}
}

func (p *MultiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
