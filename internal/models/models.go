package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductStatus is the lifecycle status of a catalog product
type ProductStatus string

const (
	ProductStatusAvailable    ProductStatus = "Available"
	ProductStatusOutOfStock   ProductStatus = "Out of Stock"
	ProductStatusDiscontinued ProductStatus = "Discontinued"
)

// Product is the inventory facet of a catalog product.
// Sizes maps a lowercase size label to the units available.
type Product struct {
	ID     uuid.UUID      `db:"id" json:"id"`
	Name   string         `db:"name" json:"name"`
	Status ProductStatus  `db:"status" json:"status"`
	Sizes  map[string]int `db:"-" json:"sizes"`
}

// AllSizesEmpty reports whether every size has run out
func (p *Product) AllSizesEmpty() bool {
	for _, qty := range p.Sizes {
		if qty > 0 {
			return false
		}
	}
	return true
}

// CartItem is one line of a cart with the price captured at add-to-cart time
type CartItem struct {
	ProductID    uuid.UUID       `db:"product_id" json:"product_id"`
	Size         string          `db:"size" json:"size"`
	Quantity     int             `db:"quantity" json:"quantity"`
	Price        decimal.Decimal `db:"price" json:"price"`
	BasePrice    decimal.Decimal `db:"base_price" json:"base_price"`
	ProductImage string          `db:"product_image" json:"product_image"`
}

// LineTotal returns price × quantity
func (c CartItem) LineTotal() decimal.Decimal {
	return c.Price.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// Cart is owned by exactly one user
type Cart struct {
	UserID uuid.UUID  `json:"user_id"`
	Items  []CartItem `json:"items"`
}

// AddressRef points at an address document and the specific entry inside it
type AddressRef struct {
	DocID    uuid.UUID `db:"address_doc_id" json:"address_doc_id"`
	DetailID uuid.UUID `db:"address_detail_id" json:"address_detail_id"`
}

// AddressSnapshot is the address book entry selected at checkout
type AddressSnapshot struct {
	AddressRef
	UserID  uuid.UUID `db:"user_id" json:"user_id"`
	Name    string    `db:"name" json:"name"`
	Phone   string    `db:"phone" json:"phone"`
	Line1   string    `db:"line1" json:"line1"`
	City    string    `db:"city" json:"city"`
	State   string    `db:"state" json:"state"`
	Pincode string    `db:"pincode" json:"pincode"`
}

// CouponUsageType limits how often one user may redeem a coupon
type CouponUsageType string

const (
	CouponSingleUse CouponUsageType = "single-use"
	CouponMultiUse  CouponUsageType = "multi-use"
)

// CouponStatus toggles a coupon on or off
type CouponStatus string

const (
	CouponActive   CouponStatus = "Active"
	CouponInactive CouponStatus = "Inactive"
)

// Coupon is a flat-discount coupon
type Coupon struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	Code       string          `db:"code" json:"code"`
	Name       string          `db:"name" json:"name"`
	StartDate  time.Time       `db:"start_date" json:"start_date"`
	ExpiryDate time.Time       `db:"expiry_date" json:"expiry_date"`
	MinPrice   decimal.Decimal `db:"min_price" json:"min_price"`
	OfferPrice decimal.Decimal `db:"offer_price" json:"offer_price"`
	UsageType  CouponUsageType `db:"usage_type" json:"usage_type"`
	Status     CouponStatus    `db:"status" json:"status"`
}

// ActiveAt reports whether the coupon is switched on and inside its validity window
func (c *Coupon) ActiveAt(now time.Time) bool {
	return c.Status == CouponActive && !now.Before(c.StartDate) && !now.After(c.ExpiryDate)
}

// PaymentMethod identifies a payment rail
type PaymentMethod string

const (
	PaymentCOD     PaymentMethod = "cod"
	PaymentWallet  PaymentMethod = "wallet"
	PaymentGateway PaymentMethod = "gateway"
)

// PaymentStatus of an order
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "Pending"
	PaymentStatusPaid    PaymentStatus = "Paid"
	PaymentStatusFailed  PaymentStatus = "Failed"
)

// StatusEntry is one row of an item's status history
type StatusEntry struct {
	Status    OrderStatus `db:"status" json:"status"`
	Reason    string      `db:"reason" json:"reason,omitempty"`
	Timestamp time.Time   `db:"created_at" json:"timestamp"`
}

// OrderItem is a purchased line; items of one order move through statuses independently
type OrderItem struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	OrderID       uuid.UUID       `db:"order_id" json:"order_id"`
	Position      int             `db:"position" json:"-"`
	ProductID     uuid.UUID       `db:"product_id" json:"product_id"`
	Size          string          `db:"size" json:"size"`
	Quantity      int             `db:"quantity" json:"quantity"`
	BasePrice     decimal.Decimal `db:"base_price" json:"base_price"`
	Price         decimal.Decimal `db:"price" json:"price"`
	ProductImage  string          `db:"product_image" json:"product_image"`
	CurrentStatus OrderStatus     `db:"current_status" json:"current_status"`
	CancelReason  string          `db:"cancel_reason" json:"cancel_reason,omitempty"`
	StatusHistory []StatusEntry   `db:"-" json:"status_history"`
}

// LineTotal returns price × quantity
func (i *OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SetStatus moves the item along the status machine and records the history entry
func (i *OrderItem) SetStatus(to OrderStatus, reason string, now time.Time) error {
	if err := i.CurrentStatus.Transition(to); err != nil {
		return err
	}
	i.CurrentStatus = to
	i.StatusHistory = append(i.StatusHistory, StatusEntry{Status: to, Reason: reason, Timestamp: now})
	return nil
}

// Order is the aggregate root of a purchase
type Order struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	OrderNumber     string          `db:"order_number" json:"order_number"`
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	Items           []*OrderItem    `db:"-" json:"items"`
	AddressRef      `json:"address"`
	PaymentMethod   PaymentMethod   `db:"payment_method" json:"payment_method"`
	PaymentStatus   PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentVerified bool            `db:"payment_verified" json:"payment_verified"`
	PaymentID       string          `db:"payment_id" json:"payment_id,omitempty"`
	GatewayOrderID  string          `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	SubTotal        decimal.Decimal `db:"sub_total" json:"sub_total"`
	DeliveryCharge  decimal.Decimal `db:"delivery_charge" json:"delivery_charge"`
	Tax             decimal.Decimal `db:"tax" json:"tax"`
	Discount        decimal.Decimal `db:"discount" json:"discount"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	RefundedAmount  decimal.Decimal `db:"refunded_amount" json:"refunded_amount"`
	CouponID        *uuid.UUID      `db:"coupon_id" json:"coupon_id,omitempty"`
	CouponCode      string          `db:"coupon_code" json:"coupon_code,omitempty"`
	Status          OrderStatus     `db:"status" json:"status"`
	CancelReason    string          `db:"cancel_reason" json:"cancel_reason,omitempty"`
	FailureReason   string          `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Item returns the item with the given id, or nil
func (o *Order) Item(id uuid.UUID) *OrderItem {
	for _, it := range o.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// RefundableRemainder is what has been paid and not yet returned to the customer
func (o *Order) RefundableRemainder() decimal.Decimal {
	rest := o.TotalAmount.Sub(o.RefundedAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// GatewayOrder is a provider order opened for a user's cart total. Checkout only
// accepts a gateway payment against a provider order of exactly the order total.
type GatewayOrder struct {
	ProviderOrderID string          `db:"provider_order_id" json:"provider_order_id"`
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	AmountMinor     int64           `db:"amount_minor" json:"amount_minor"`
	Receipt         string          `db:"receipt" json:"receipt"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// RefundStatus of a return request
type RefundStatus string

const (
	RefundRequested RefundStatus = "Requested"
	RefundApproved  RefundStatus = "Approved"
	RefundRejected  RefundStatus = "Rejected"
)

// Refund is one return request for one order item
type Refund struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	OrderID     uuid.UUID    `db:"order_id" json:"order_id"`
	ItemID      uuid.UUID    `db:"item_id" json:"item_id"`
	ProductID   uuid.UUID    `db:"product_id" json:"product_id"`
	UserID      uuid.UUID    `db:"user_id" json:"user_id"`
	Reason      string       `db:"reason" json:"reason"`
	Status      RefundStatus `db:"status" json:"status"`
	VariantSize string       `db:"variant_size" json:"variant_size"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// EntryType is the direction of a wallet ledger entry
type EntryType string

const (
	EntryCredit EntryType = "CREDIT"
	EntryDebit  EntryType = "DEBIT"
)

// WalletTxType describes why a ledger entry exists
type WalletTxType string

const (
	WalletAddMoney        WalletTxType = "add_money"
	WalletProductPurchase WalletTxType = "product_purchase"
	WalletRefund          WalletTxType = "refund"
	WalletCancel          WalletTxType = "cancel"
	WalletReferral        WalletTxType = "referral"
	WalletItemRefund      WalletTxType = "item_refund"
)

// WalletEntry is an immutable ledger row
type WalletEntry struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	EntryType       EntryType       `db:"entry_type" json:"entry_type"`
	Type            WalletTxType    `db:"type" json:"type"`
	OrderID         *uuid.UUID      `db:"order_id" json:"order_id,omitempty"`
	AddressDocID    *uuid.UUID      `db:"address_doc_id" json:"address_doc_id,omitempty"`
	AddressDetailID *uuid.UUID      `db:"address_detail_id" json:"address_detail_id,omitempty"`
	TransactionID   string          `db:"transaction_id" json:"transaction_id"`
	Status          string          `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Signed returns the amount as it contributes to the balance
func (e *WalletEntry) Signed() decimal.Decimal {
	if e.EntryType == EntryDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
