package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront-orders/internal/models"
	"storefront-orders/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(id fmt.Stringer) string {
	return fmt.Sprintf("order-%s", id)
}

// PublishOrderPlaced publishes ORDER_PLACED
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishOrderPaymentFailed publishes ORDER_PAYMENT_FAILED
func (ep *EventPublisher) PublishOrderPaymentFailed(ctx context.Context, event *models.OrderPaymentFailedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishOrderCancelled publishes ORDER_CANCELLED or ORDER_ITEM_CANCELLED
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishOrderReturn publishes the return request, approval and rejection events
func (ep *EventPublisher) PublishOrderReturn(ctx context.Context, event *models.OrderReturnEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishOrderStatusChanged publishes ORDER_STATUS_CHANGED
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishWalletEntryRecorded publishes WALLET_ENTRY_RECORDED keyed by user
func (ep *EventPublisher) PublishWalletEntryRecorded(ctx context.Context, event *models.WalletEntryRecordedEvent) error {
	key := fmt.Sprintf("wallet-%s", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onWalletEntryRecorded func(context.Context, *models.WalletEntryRecordedEvent) error
	logger                *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnWalletEntryRecorded registers a handler for WALLET_ENTRY_RECORDED events
func (eh *EventHandler) OnWalletEntryRecorded(handler func(context.Context, *models.WalletEntryRecordedEvent) error) {
	eh.onWalletEntryRecorded = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID),
	)

	switch baseEvent.EventType {
	case models.EventTypeWalletEntryRecorded:
		if eh.onWalletEntryRecorded != nil {
			var event models.WalletEntryRecordedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal WalletEntryRecorded event: %w", err)
			}
			return eh.onWalletEntryRecorded(ctx, &event)
		}

	default:
		// Order events are for downstream consumers
	}

	return nil
}
