package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced          = "ORDER_PLACED"
	EventTypeOrderPaymentFailed   = "ORDER_PAYMENT_FAILED"
	EventTypeOrderCancelled       = "ORDER_CANCELLED"
	EventTypeOrderItemCancelled   = "ORDER_ITEM_CANCELLED"
	EventTypeOrderReturnRequested = "ORDER_RETURN_REQUESTED"
	EventTypeOrderReturnApproved  = "ORDER_RETURN_APPROVED"
	EventTypeOrderReturnRejected  = "ORDER_RETURN_REJECTED"
	EventTypeOrderStatusChanged   = "ORDER_STATUS_CHANGED"
	EventTypeWalletEntryRecorded  = "WALLET_ENTRY_RECORDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published when checkout commits a placed order
type OrderPlacedEvent struct {
	BaseEvent
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        uuid.UUID       `json:"user_id"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []OrderItemData `json:"items"`
}

// OrderPaymentFailedEvent published when a gateway signature does not verify
type OrderPaymentFailedEvent struct {
	BaseEvent
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      uuid.UUID `json:"user_id"`
	Reason      string    `json:"reason"`
}

// OrderCancelledEvent published on a whole-order or single-item cancellation
type OrderCancelledEvent struct {
	BaseEvent
	OrderID      uuid.UUID       `json:"order_id"`
	UserID       uuid.UUID       `json:"user_id"`
	ItemID       *uuid.UUID      `json:"item_id,omitempty"`
	Reason       string          `json:"reason"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

// OrderReturnEvent published for return request, approval and rejection
type OrderReturnEvent struct {
	BaseEvent
	OrderID      uuid.UUID       `json:"order_id"`
	UserID       uuid.UUID       `json:"user_id"`
	ItemIDs      []uuid.UUID     `json:"item_ids"`
	Reason       string          `json:"reason,omitempty"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

// OrderStatusChangedEvent published when an admin advances an order
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID uuid.UUID   `json:"order_id"`
	UserID  uuid.UUID   `json:"user_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
}

// WalletEntryRecordedEvent published after a ledger entry commits
type WalletEntryRecordedEvent struct {
	BaseEvent
	UserID        uuid.UUID       `json:"user_id"`
	TransactionID string          `json:"transaction_id"`
	EntryType     EntryType       `json:"entry_type"`
	Type          WalletTxType    `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID uuid.UUID       `json:"product_id"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
