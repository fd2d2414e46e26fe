package service

import (
	"context"
	"time"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
)

// CouponSession is the advisory per-user slot holding the coupon applied to the cart
type CouponSession interface {
	SetAppliedCoupon(ctx context.Context, userID uuid.UUID, code string, ttl time.Duration) error
	AppliedCoupon(ctx context.Context, userID uuid.UUID) (string, error)
	ClearAppliedCoupon(ctx context.Context, userID uuid.UUID) error
}

// Locker hands out owner tokens; an empty token means the lock is taken
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetIdempotencyKey(ctx context.Context, key string) (string, bool, error)
}

// EventPublisher is implemented by broker.EventPublisher
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderPaymentFailed(ctx context.Context, event *models.OrderPaymentFailedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderReturn(ctx context.Context, event *models.OrderReturnEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishWalletEntryRecorded(ctx context.Context, event *models.WalletEntryRecordedEvent) error
}

// GatewayClient is implemented by gateway.Client
type GatewayClient interface {
	CreateOrder(ctx context.Context, amountMinor int64, receipt string) (string, error)
	VerifySignature(providerOrderID, paymentID, signature string) bool
}

func newBaseEvent(eventType string, now time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: now,
	}
}
