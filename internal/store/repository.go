package store

import (
	"context"
	"errors"
	"time"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by lookups that match no row
	ErrNotFound = errors.New("record not found")
	// ErrPaymentAlreadyUsed is returned when a paid gateway order reuses a payment
	// or provider order that already paid for another order
	ErrPaymentAlreadyUsed = errors.New("payment already used")
)

// ProductRepository owns per-size stock counters
type ProductRepository interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
	// DecrementStockIfEnough reports false when the size holds fewer than qty units
	DecrementStockIfEnough(ctx context.Context, productID uuid.UUID, size string, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, size string, qty int) error
	SetStatus(ctx context.Context, productID uuid.UUID, status models.ProductStatus) error
}

type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	HasRedeemed(ctx context.Context, couponID, userID uuid.UUID) (bool, error)
	RecordRedemption(ctx context.Context, couponID, userID, orderID uuid.UUID) error
	ListAvailable(ctx context.Context, userID uuid.UUID, now time.Time) ([]*models.Coupon, error)
}

// CartRepository returns an empty cart when the user has none
type CartRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

type AddressRepository interface {
	Get(ctx context.Context, userID, detailID uuid.UUID) (*models.AddressSnapshot, error)
}

// OrderRepository persists orders with their items and item histories
type OrderRepository interface {
	// NextOrderNumber draws from a sequence; numbers are never reused, gaps are fine
	NextOrderNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// GetByIDForUpdate locks the order row until the transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	UpdateItem(ctx context.Context, item *models.OrderItem, entry models.StatusEntry) error
}

type GatewayOrderRepository interface {
	Create(ctx context.Context, order *models.GatewayOrder) error
	Get(ctx context.Context, providerOrderID string) (*models.GatewayOrder, error)
}

type RefundRepository interface {
	Create(ctx context.Context, refund *models.Refund) error
	ListByOrder(ctx context.Context, orderID uuid.UUID, status models.RefundStatus) ([]*models.Refund, error)
	UpdateStatus(ctx context.Context, ids []uuid.UUID, status models.RefundStatus) error
}

// WalletRepository is the append-only ledger plus the cached balance on the user row
type WalletRepository interface {
	LockUser(ctx context.Context, userID uuid.UUID) error
	Sums(ctx context.Context, userID uuid.UUID) (credits, debits decimal.Decimal, err error)
	Insert(ctx context.Context, entry *models.WalletEntry) error
	AdjustCache(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error
	SetCache(ctx context.Context, userID uuid.UUID, value decimal.Decimal) error
	CachedBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*models.WalletEntry, error)
}

// Repos groups the repositories bound to one connection or transaction
type Repos interface {
	Products() ProductRepository
	Coupons() CouponRepository
	Carts() CartRepository
	Addresses() AddressRepository
	Orders() OrderRepository
	GatewayOrders() GatewayOrderRepository
	Refunds() RefundRepository
	Wallet() WalletRepository
}

// TxManager runs fn inside one transaction; fn's error rolls everything back
type TxManager interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	Repos() Repos
}

// EventLog records consumed events for idempotent handlers
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}
