package service

import (
	"context"
	"errors"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"
	"storefront-orders/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// GatewayPayload is what the client sends back after paying on the provider's page
type GatewayPayload struct {
	ProviderOrderID string `json:"provider_order_id"`
	PaymentID       string `json:"payment_id"`
	Signature       string `json:"signature"`
}

// SettlementRequest describes the order being paid for
type SettlementRequest struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Total   decimal.Decimal
	Address models.AddressRef
	Gateway *GatewayPayload
}

// SettlementOutcome is how the order and its payment fields should look after settling
type SettlementOutcome struct {
	PaymentStatus models.PaymentStatus
	Verified      bool
	Reference     string
	OrderStatus   models.OrderStatus
	// WalletEntry is set when settling wrote a ledger entry
	WalletEntry   *models.WalletEntry
	FailureReason string
}

// Failed reports whether the payment was attempted and declined
func (o SettlementOutcome) Failed() bool {
	return o.PaymentStatus == models.PaymentStatusFailed
}

// Settler settles one payment method. Side effects go through repos so they
// commit or roll back with the checkout transaction.
type Settler interface {
	Method() models.PaymentMethod
	Settle(ctx context.Context, repos store.Repos, req SettlementRequest) (SettlementOutcome, error)
}

// Settlement dispatches to the settler registered for a method
type Settlement struct {
	settlers map[models.PaymentMethod]Settler
	logger   *zap.Logger
}

func NewSettlement(settlers ...Settler) *Settlement {
	s := &Settlement{
		settlers: make(map[models.PaymentMethod]Settler, len(settlers)),
		logger:   util.GetLogger(),
	}
	for _, st := range settlers {
		s.settlers[st.Method()] = st
	}
	return s
}

// Supports reports whether a settler is registered for method
func (s *Settlement) Supports(method models.PaymentMethod) bool {
	_, ok := s.settlers[method]
	return ok
}

func (s *Settlement) Settle(ctx context.Context, repos store.Repos, method models.PaymentMethod, req SettlementRequest) (SettlementOutcome, error) {
	ctx, span := util.StartSpan(ctx, "Settlement.Settle",
		attribute.String("payment_method", string(method)),
		attribute.String("order_id", req.OrderID.String()))
	defer span.End()

	settler, ok := s.settlers[method]
	if !ok {
		return SettlementOutcome{}, newCheckoutError(ErrValidation, ReasonUnsupportedPaymentMethod,
			"unsupported payment method %q", method)
	}

	outcome, err := settler.Settle(ctx, repos, req)
	if err != nil {
		util.RecordError(span, err)
		return SettlementOutcome{}, err
	}

	util.PaymentOutcomesTotal.WithLabelValues(string(method), string(outcome.PaymentStatus)).Inc()
	s.logger.Info("Payment settled",
		zap.String("order_id", req.OrderID.String()),
		zap.String("method", string(method)),
		zap.String("payment_status", string(outcome.PaymentStatus)),
		zap.Bool("verified", outcome.Verified),
	)
	return outcome, nil
}

// CODSettler accepts cash on delivery up to a limit; payment stays Pending until delivery
type CODSettler struct {
	Limit decimal.Decimal
}

func (s *CODSettler) Method() models.PaymentMethod { return models.PaymentCOD }

func (s *CODSettler) Settle(ctx context.Context, repos store.Repos, req SettlementRequest) (SettlementOutcome, error) {
	if req.Total.GreaterThan(s.Limit) {
		return SettlementOutcome{}, newCheckoutError(ErrValidation, ReasonCODThreshold,
			"COD not available above threshold of %s", s.Limit.String())
	}
	return SettlementOutcome{
		PaymentStatus: models.PaymentStatusPending,
		OrderStatus:   models.StatusOrderPlaced,
	}, nil
}

// WalletSettler pays from the wallet ledger inside the checkout transaction
type WalletSettler struct {
	Ledger *WalletLedger
}

func (s *WalletSettler) Method() models.PaymentMethod { return models.PaymentWallet }

func (s *WalletSettler) Settle(ctx context.Context, repos store.Repos, req SettlementRequest) (SettlementOutcome, error) {
	orderID := req.OrderID
	address := req.Address
	entry, err := s.Ledger.Debit(ctx, repos.Wallet(), req.UserID, req.Total, models.WalletProductPurchase,
		Linkage{OrderID: &orderID, Address: &address})
	if err != nil {
		return SettlementOutcome{}, err
	}
	return SettlementOutcome{
		PaymentStatus: models.PaymentStatusPaid,
		Verified:      true,
		Reference:     entry.TransactionID,
		OrderStatus:   models.StatusOrderPlaced,
		WalletEntry:   entry,
	}, nil
}

// SignatureVerifier checks a provider callback signature
type SignatureVerifier interface {
	VerifySignature(providerOrderID, paymentID, signature string) bool
}

// GatewaySettler verifies the provider's HMAC signature. The provider order must
// have been opened for this user and for exactly the order total. A signature
// mismatch is a declined payment, not an error: the order is still recorded as
// Payment Failed.
type GatewaySettler struct {
	Verifier SignatureVerifier
}

func (s *GatewaySettler) Method() models.PaymentMethod { return models.PaymentGateway }

func (s *GatewaySettler) Settle(ctx context.Context, repos store.Repos, req SettlementRequest) (SettlementOutcome, error) {
	p := req.Gateway
	if p == nil || p.ProviderOrderID == "" || p.PaymentID == "" || p.Signature == "" {
		return SettlementOutcome{}, newCheckoutError(ErrValidation, ReasonVerificationDataMissing,
			"verification data missing")
	}

	if err := checkGatewayOrder(ctx, repos, p.ProviderOrderID, req); err != nil {
		return SettlementOutcome{}, err
	}

	if !s.Verifier.VerifySignature(p.ProviderOrderID, p.PaymentID, p.Signature) {
		return SettlementOutcome{
			PaymentStatus: models.PaymentStatusFailed,
			Reference:     p.PaymentID,
			OrderStatus:   models.StatusPaymentFailed,
			FailureReason: "payment signature mismatch",
		}, nil
	}

	return SettlementOutcome{
		PaymentStatus: models.PaymentStatusPaid,
		Verified:      true,
		Reference:     p.PaymentID,
		OrderStatus:   models.StatusOrderPlaced,
	}, nil
}

func checkGatewayOrder(ctx context.Context, repos store.Repos, providerOrderID string, req SettlementRequest) error {
	gw, err := repos.GatewayOrders().Get(ctx, providerOrderID)
	if errors.Is(err, store.ErrNotFound) {
		return newCheckoutError(ErrValidation, ReasonGatewayOrderMismatch, "unknown gateway order %s", providerOrderID)
	}
	if err != nil {
		return err
	}
	if gw.UserID != req.UserID {
		return newCheckoutError(ErrValidation, ReasonGatewayOrderMismatch, "unknown gateway order %s", providerOrderID)
	}
	if want := ToMinorUnits(req.Total); gw.AmountMinor != want {
		return newCheckoutError(ErrValidation, ReasonGatewayOrderMismatch,
			"gateway order amount %d does not match order total %d", gw.AmountMinor, want)
	}
	return nil
}
