package service

import (
	"errors"
	"fmt"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"

	"github.com/google/uuid"
)

// Error kinds. Every error returned by this package wraps one of them or is an infra failure.
var (
	ErrValidation        = errors.New("validation failed")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = models.ErrInvalidTransition
)

// Reason is a machine-readable failure code returned to clients
type Reason string

const (
	ReasonCartEmpty                 Reason = "cart_empty"
	ReasonAddressMissing            Reason = "address_missing"
	ReasonCouponInvalid             Reason = "coupon_invalid"
	ReasonCouponMinAmount           Reason = "coupon_min_amount"
	ReasonCouponAlreadyUsed         Reason = "coupon_already_used"
	ReasonStockUnavailable          Reason = "stock_unavailable"
	ReasonInsufficientWallet        Reason = "insufficient_wallet_balance"
	ReasonCODThreshold              Reason = "cod_threshold"
	ReasonVerificationDataMissing   Reason = "verification_data_missing"
	ReasonUnsupportedPaymentMethod  Reason = "unsupported_payment_method"
	ReasonPaymentVerificationFailed Reason = "payment_verification_failed"
	ReasonStockConflict             Reason = "stock_conflict"
	ReasonCheckoutInProgress        Reason = "checkout_in_progress"
	ReasonPaymentAlreadyUsed        Reason = "payment_already_used"
	ReasonGatewayOrderMismatch      Reason = "gateway_order_mismatch"
)

// Stock problems reported per cart line
const (
	StockProblemProductUnavailable = "product_unavailable"
	StockProblemSizeUnavailable    = "size_unavailable"
	StockProblemInsufficient       = "insufficient_stock"
)

// StockIssue describes one cart line that cannot be fulfilled
type StockIssue struct {
	ProductID uuid.UUID `json:"product_id"`
	Size      string    `json:"size"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
	Problem   string    `json:"problem"`
}

// CheckoutError is a user-facing failure with a reason code
type CheckoutError struct {
	Kind    error
	Reason  Reason
	Message string
	Lines   []StockIssue
	// OrderID is set when a failed payment still produced an order record
	OrderID *uuid.UUID
}

func (e *CheckoutError) Error() string {
	return e.Message
}

func (e *CheckoutError) Unwrap() error {
	return e.Kind
}

func newCheckoutError(kind error, reason Reason, format string, args ...interface{}) *CheckoutError {
	return &CheckoutError{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// notFound translates the store sentinel into the service one
func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
