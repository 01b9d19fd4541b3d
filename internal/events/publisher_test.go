package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/domain"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func sampleEvent() Event {
	txn := &domain.Transaction{
		ID:              "txn-1",
		ReferenceNumber: "TXN-1",
		CustomerID:      "C1",
		Amount:          decimal.RequireFromString("50"),
		Currency:        "USD",
	}
	entry := domain.TransactionEvent{
		Sequence:   2,
		Type:       domain.EventCaptured,
		Status:     domain.TransactionStatusCaptured,
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	return FromTransaction(txn, entry)
}

func TestFromTransaction(t *testing.T) {
	t.Parallel()

	e := sampleEvent()
	assert.Equal(t, "txn-1", e.TransactionID)
	assert.Equal(t, "50.00", e.Amount)
	assert.Equal(t, 2, e.Sequence)
	assert.Equal(t, domain.EventCaptured, e.Type)
}

func TestMultiPublisher_DeliversToAllSinksAndJoinsErrors(t *testing.T) {
	t.Parallel()

	failing := &recordingPublisher{err: errors.New("sink down")}
	ok := &recordingPublisher{}
	multi := NewMultiPublisher(failing, ok)

	err := multi.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
}

func TestLogPublisher_WritesStructuredRecord(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	require.NoError(t, NewLogPublisher(logger).Publish(context.Background(), sampleEvent()))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "txn-1", record["transaction_id"])
	assert.Equal(t, "CAPTURED", record["event"])
}

func TestKafkaPublisher_SendsKeyedMessage(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var e Event
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.TransactionID != "txn-1" {
			return errors.New("unexpected transaction id " + e.TransactionID)
		}
		return nil
	})

	publisher := NewKafkaPublisher(producer, "payments.transaction-events")
	require.NoError(t, publisher.Publish(context.Background(), sampleEvent()))
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_PropagatesProducerError(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	publisher := NewKafkaPublisher(producer, "payments.transaction-events")
	err := publisher.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sarama.ErrNotLeaderForPartition))
	require.NoError(t, publisher.Close())
}
