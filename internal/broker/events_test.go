package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageRoutesWalletEntries(t *testing.T) {
	user := uuid.New()
	event := models.WalletEntryRecordedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.NewString(),
			EventType: models.EventTypeWalletEntryRecorded,
			Timestamp: time.Now(),
		},
		UserID:        user,
		TransactionID: "TXN_1",
		EntryType:     models.EntryCredit,
		Type:          models.WalletRefund,
		Amount:        decimal.RequireFromString("125.50"),
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	var got *models.WalletEntryRecordedEvent
	h := NewEventHandler()
	h.OnWalletEntryRecorded(func(ctx context.Context, e *models.WalletEntryRecordedEvent) error {
		got = e
		return nil
	})

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: body}))
	require.NotNil(t, got)
	assert.Equal(t, user, got.UserID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("125.50")))
}

func TestHandleMessageIgnoresOrderEvents(t *testing.T) {
	body, err := json.Marshal(models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderPlaced},
	})
	require.NoError(t, err)

	called := false
	h := NewEventHandler()
	h.OnWalletEntryRecorded(func(ctx context.Context, e *models.WalletEntryRecordedEvent) error {
		called = true
		return nil
	})

	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: body}))
	assert.False(t, called)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	err := NewEventHandler().HandleMessage(context.Background(), kafka.Message{Value: []byte("{")})
	assert.Error(t, err)
}
