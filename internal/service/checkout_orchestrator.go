package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"
	"storefront-orders/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutOptions are the time knobs of checkout
type CheckoutOptions struct {
	CouponSessionTTL time.Duration
	LockTTL          time.Duration
	IdempotencyTTL   time.Duration
}

// CheckoutDeps wires the orchestrator. Session, Locker, Idempotency and Gateway may be nil.
type CheckoutDeps struct {
	Tx          store.TxManager
	Coupons     *CouponValidator
	Settlement  *Settlement
	Inventory   *InventoryAdjuster
	Pricing     Pricing
	Session     CouponSession
	Locker      Locker
	Idempotency IdempotencyStore
	Publisher   EventPublisher
	Gateway     GatewayClient
	Options     CheckoutOptions
}

// CheckoutOrchestrator turns a cart into an order in one transaction
type CheckoutOrchestrator struct {
	tx          store.TxManager
	coupons     *CouponValidator
	settlement  *Settlement
	inventory   *InventoryAdjuster
	pricing     Pricing
	session     CouponSession
	locker      Locker
	idempotency IdempotencyStore
	publisher   EventPublisher
	gateway     GatewayClient
	opts        CheckoutOptions
	logger      *zap.Logger
	now         func() time.Time
}

func NewCheckoutOrchestrator(deps CheckoutDeps) *CheckoutOrchestrator {
	return &CheckoutOrchestrator{
		tx:          deps.Tx,
		coupons:     deps.Coupons,
		settlement:  deps.Settlement,
		inventory:   deps.Inventory,
		pricing:     deps.Pricing,
		session:     deps.Session,
		locker:      deps.Locker,
		idempotency: deps.Idempotency,
		publisher:   deps.Publisher,
		gateway:     deps.Gateway,
		opts:        deps.Options,
		logger:      util.GetLogger(),
		now:         time.Now,
	}
}

// PlaceOrderRequest represents a checkout submission
type PlaceOrderRequest struct {
	UserID         uuid.UUID            `json:"-"`
	AddressID      uuid.UUID            `json:"address_id" binding:"required"`
	PaymentMethod  models.PaymentMethod `json:"payment_method" binding:"required"`
	CouponCode     string               `json:"coupon_code,omitempty"`
	Gateway        *GatewayPayload      `json:"gateway,omitempty"`
	IdempotencyKey string               `json:"-"`
}

// PlaceOrderResult represents a placed order
type PlaceOrderResult struct {
	OrderID       uuid.UUID            `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	Totals        Totals               `json:"totals"`
}

func checkoutLockKey(userID uuid.UUID) string {
	return "checkout:" + userID.String()
}

func idempotencyKey(userID uuid.UUID, key string) string {
	return fmt.Sprintf("checkout:%s:%s", userID, key)
}

// orderNumber formats a sequence value as the customer-facing "#SM" number
func orderNumber(seq int64) string {
	return fmt.Sprintf("#SM%09d", seq)
}

func failureReason(err error) string {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return string(ce.Reason)
	}
	return "internal"
}

// PlaceOrder validates the cart, prices it, settles payment and persists the
// order. Everything touching the database commits or rolls back together, so a
// stock conflict after a wallet debit leaves the wallet untouched.
func (o *CheckoutOrchestrator) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.PlaceOrder",
		attribute.String("user_id", req.UserID.String()),
		attribute.String("payment_method", string(req.PaymentMethod)))
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if replay := o.replay(ctx, req); replay != nil {
		return replay, nil
	}

	if !o.settlement.Supports(req.PaymentMethod) {
		util.OrdersFailedTotal.WithLabelValues(string(ReasonUnsupportedPaymentMethod)).Inc()
		return nil, newCheckoutError(ErrValidation, ReasonUnsupportedPaymentMethod,
			"unsupported payment method %q", req.PaymentMethod)
	}

	release, err := o.acquire(ctx, req.UserID)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	defer release()

	code := o.couponCode(ctx, req.UserID, req.CouponCode)

	var (
		order   *models.Order
		outcome SettlementOutcome
		totals  Totals
	)
	err = o.tx.WithinTx(ctx, func(r store.Repos) error {
		cart, err := r.Carts().Get(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}
		if len(cart.Items) == 0 {
			return newCheckoutError(ErrValidation, ReasonCartEmpty, "cart is empty")
		}

		addr, err := r.Addresses().Get(ctx, req.UserID, req.AddressID)
		if errors.Is(err, store.ErrNotFound) {
			return newCheckoutError(ErrValidation, ReasonAddressMissing, "delivery address not found")
		}
		if err != nil {
			return fmt.Errorf("failed to load address: %w", err)
		}

		issues, err := o.inventory.Validate(ctx, r.Products(), cart.Items)
		if err != nil {
			return err
		}
		if len(issues) > 0 {
			return &CheckoutError{
				Kind:    ErrValidation,
				Reason:  ReasonStockUnavailable,
				Message: "some items in your cart are unavailable",
				Lines:   issues,
			}
		}

		subtotal := Subtotal(cart.Items)
		discount := decimal.Zero
		var coupon *models.Coupon
		if code != "" {
			d, err := o.coupons.Validate(ctx, r.Coupons(), code, req.UserID, subtotal)
			if err != nil {
				return err
			}
			discount, coupon = d.Amount, d.Coupon
		}
		totals = o.pricing.Compute(subtotal, discount)

		seq, err := r.Orders().NextOrderNumber(ctx)
		if err != nil {
			return err
		}
		order = o.buildOrder(req, orderNumber(seq), cart, addr.AddressRef, totals, coupon)

		outcome, err = o.settlement.Settle(ctx, r, req.PaymentMethod, SettlementRequest{
			OrderID: order.ID,
			UserID:  req.UserID,
			Total:   totals.Total,
			Address: addr.AddressRef,
			Gateway: req.Gateway,
		})
		if err != nil {
			return err
		}

		now := o.now()
		order.PaymentStatus = outcome.PaymentStatus
		order.PaymentVerified = outcome.Verified
		order.PaymentID = outcome.Reference
		order.FailureReason = outcome.FailureReason
		if err := o.moveItems(order, outcome.OrderStatus, outcome.FailureReason, now); err != nil {
			return err
		}

		if outcome.Failed() {
			// kept as a record of the attempt; stock, cart and coupon stay as they were
			return r.Orders().Create(ctx, order)
		}

		for _, it := range cart.Items {
			if err := o.inventory.Reserve(ctx, r.Products(), it.ProductID, it.Size, it.Quantity); err != nil {
				return err
			}
		}
		if err := r.Orders().Create(ctx, order); err != nil {
			if errors.Is(err, store.ErrPaymentAlreadyUsed) {
				return newCheckoutError(ErrConflict, ReasonPaymentAlreadyUsed,
					"payment has already been used for another order")
			}
			return fmt.Errorf("failed to create order: %w", err)
		}
		if err := r.Carts().Delete(ctx, req.UserID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		if coupon != nil {
			if err := r.Coupons().RecordRedemption(ctx, coupon.ID, req.UserID, order.ID); err != nil {
				return fmt.Errorf("failed to record coupon redemption: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		o.logger.Warn("Checkout failed",
			zap.String("user_id", req.UserID.String()),
			zap.String("reason", failureReason(err)),
			zap.Error(err),
		)
		return nil, err
	}

	if outcome.Failed() {
		o.publishPaymentFailed(ctx, order)
		util.OrdersFailedTotal.WithLabelValues(string(ReasonPaymentVerificationFailed)).Inc()
		id := order.ID
		return nil, &CheckoutError{
			Kind:    ErrPaymentFailed,
			Reason:  ReasonPaymentVerificationFailed,
			Message: "payment verification failed",
			OrderID: &id,
		}
	}

	result := &PlaceOrderResult{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Totals:        totals,
	}

	if o.session != nil {
		if err := o.session.ClearAppliedCoupon(ctx, req.UserID); err != nil {
			o.logger.Warn("Failed to clear applied coupon", zap.Error(err))
		}
	}
	o.remember(ctx, req, result)

	o.publishPlaced(ctx, order)
	if outcome.WalletEntry != nil {
		if err := o.publisher.PublishWalletEntryRecorded(ctx, walletEntryEvent(outcome.WalletEntry)); err != nil {
			o.logger.Error("Failed to publish WalletEntryRecorded event", zap.Error(err))
		}
	}

	util.OrdersPlacedTotal.WithLabelValues(string(req.PaymentMethod)).Inc()
	o.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", totals.Total.String()),
	)
	return result, nil
}

func (o *CheckoutOrchestrator) buildOrder(req *PlaceOrderRequest, number string, cart *models.Cart, addr models.AddressRef, totals Totals, coupon *models.Coupon) *models.Order {
	now := o.now()
	id := uuid.New()
	order := &models.Order{
		ID:             id,
		OrderNumber:    number,
		UserID:         req.UserID,
		AddressRef:     addr,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  models.PaymentStatusPending,
		SubTotal:       totals.SubTotal,
		DeliveryCharge: totals.DeliveryCharge,
		Tax:            totals.Tax,
		Discount:       totals.Discount,
		TotalAmount:    totals.Total,
		RefundedAmount: decimal.Zero,
		Status:         models.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Gateway != nil {
		order.GatewayOrderID = req.Gateway.ProviderOrderID
	}
	if coupon != nil {
		couponID := coupon.ID
		order.CouponID = &couponID
		order.CouponCode = coupon.Code
	}

	order.Items = make([]*models.OrderItem, 0, len(cart.Items))
	for i, it := range cart.Items {
		order.Items = append(order.Items, &models.OrderItem{
			ID:            uuid.New(),
			OrderID:       id,
			Position:      i,
			ProductID:     it.ProductID,
			Size:          NormalizeSize(it.Size),
			Quantity:      it.Quantity,
			BasePrice:     it.BasePrice,
			Price:         it.Price,
			ProductImage:  it.ProductImage,
			CurrentStatus: models.StatusPending,
			StatusHistory: []models.StatusEntry{{Status: models.StatusPending, Timestamp: now}},
		})
	}
	return order
}

// moveItems applies the settlement status to the order and every item
func (o *CheckoutOrchestrator) moveItems(order *models.Order, to models.OrderStatus, reason string, now time.Time) error {
	for _, it := range order.Items {
		if err := it.SetStatus(to, reason, now); err != nil {
			return err
		}
	}
	order.Status = to
	order.UpdatedAt = now
	return nil
}

// acquire takes the per-user checkout lock. A Redis outage does not block
// checkout; the database transaction still guards correctness.
func (o *CheckoutOrchestrator) acquire(ctx context.Context, userID uuid.UUID) (func(), error) {
	noop := func() {}
	if o.locker == nil {
		return noop, nil
	}

	key := checkoutLockKey(userID)
	token, err := o.locker.AcquireLock(ctx, key, o.opts.LockTTL)
	if err != nil {
		o.logger.Warn("Checkout lock unavailable, continuing without it", zap.Error(err))
		return noop, nil
	}
	if token == "" {
		return nil, newCheckoutError(ErrConflict, ReasonCheckoutInProgress, "another checkout is already in progress")
	}

	return func() {
		if err := o.locker.ReleaseLock(context.Background(), key, token); err != nil {
			o.logger.Warn("Failed to release checkout lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (o *CheckoutOrchestrator) couponCode(ctx context.Context, userID uuid.UUID, requested string) string {
	if code := NormalizeCouponCode(requested); code != "" {
		return code
	}
	if o.session == nil {
		return ""
	}
	code, err := o.session.AppliedCoupon(ctx, userID)
	if err != nil {
		o.logger.Warn("Failed to read applied coupon", zap.Error(err))
		return ""
	}
	return NormalizeCouponCode(code)
}

func (o *CheckoutOrchestrator) replay(ctx context.Context, req *PlaceOrderRequest) *PlaceOrderResult {
	if o.idempotency == nil || req.IdempotencyKey == "" {
		return nil
	}
	val, found, err := o.idempotency.GetIdempotencyKey(ctx, idempotencyKey(req.UserID, req.IdempotencyKey))
	if err != nil {
		o.logger.Warn("Failed to check idempotency key", zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}

	var result PlaceOrderResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		o.logger.Warn("Discarding unreadable idempotency entry", zap.Error(err))
		return nil
	}
	o.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("order_id", result.OrderID.String()))
	return &result
}

func (o *CheckoutOrchestrator) remember(ctx context.Context, req *PlaceOrderRequest, result *PlaceOrderResult) {
	if o.idempotency == nil || req.IdempotencyKey == "" {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.idempotency.SetIdempotencyKey(ctx, idempotencyKey(req.UserID, req.IdempotencyKey), string(data), o.opts.IdempotencyTTL); err != nil {
		o.logger.Warn("Failed to store idempotency key", zap.Error(err))
	}
}

func (o *CheckoutOrchestrator) publishPlaced(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID: it.ProductID,
			Size:      it.Size,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		})
	}
	event := &models.OrderPlacedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderPlaced, o.now()),
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   order.TotalAmount,
		Items:         items,
	}
	if err := o.publisher.PublishOrderPlaced(ctx, event); err != nil {
		o.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

func (o *CheckoutOrchestrator) publishPaymentFailed(ctx context.Context, order *models.Order) {
	event := &models.OrderPaymentFailedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderPaymentFailed, o.now()),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Reason:      order.FailureReason,
	}
	if err := o.publisher.PublishOrderPaymentFailed(ctx, event); err != nil {
		o.logger.Error("Failed to publish OrderPaymentFailed event", zap.Error(err))
	}
}

// CouponPreview is the cart priced with an applied coupon
type CouponPreview struct {
	Code   string `json:"code"`
	Totals Totals `json:"totals"`
}

// cartTotals prices the user's current cart, optionally with a coupon
func (o *CheckoutOrchestrator) cartTotals(ctx context.Context, r store.Repos, userID uuid.UUID, code string) (*models.Cart, Totals, *Discount, error) {
	cart, err := r.Carts().Get(ctx, userID)
	if err != nil {
		return nil, Totals{}, nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, Totals{}, nil, newCheckoutError(ErrValidation, ReasonCartEmpty, "cart is empty")
	}

	subtotal := Subtotal(cart.Items)
	var discount *Discount
	amount := decimal.Zero
	if code != "" {
		discount, err = o.coupons.Validate(ctx, r.Coupons(), code, userID, subtotal)
		if err != nil {
			return nil, Totals{}, nil, err
		}
		amount = discount.Amount
	}
	return cart, o.pricing.Compute(subtotal, amount), discount, nil
}

// ApplyCoupon validates code against the current cart and remembers it for checkout
func (o *CheckoutOrchestrator) ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (*CouponPreview, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.ApplyCoupon")
	defer span.End()

	code = NormalizeCouponCode(code)
	if code == "" {
		return nil, newCheckoutError(ErrValidation, ReasonCouponInvalid, "coupon code is required")
	}

	_, totals, discount, err := o.cartTotals(ctx, o.tx.Repos(), userID, code)
	if err != nil {
		return nil, err
	}

	if o.session != nil {
		if err := o.session.SetAppliedCoupon(ctx, userID, discount.Coupon.Code, o.opts.CouponSessionTTL); err != nil {
			return nil, fmt.Errorf("failed to store applied coupon: %w", err)
		}
	}
	return &CouponPreview{Code: discount.Coupon.Code, Totals: totals}, nil
}

// RemoveCoupon clears the applied coupon slot
func (o *CheckoutOrchestrator) RemoveCoupon(ctx context.Context, userID uuid.UUID) error {
	if o.session == nil {
		return nil
	}
	return o.session.ClearAppliedCoupon(ctx, userID)
}

// AvailableCoupons lists coupons the user may still apply
func (o *CheckoutOrchestrator) AvailableCoupons(ctx context.Context, userID uuid.UUID) ([]*models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.AvailableCoupons")
	defer span.End()

	return o.coupons.Available(ctx, o.tx.Repos().Coupons(), userID)
}

// GatewayOrder is a provider order created for the current cart total
type GatewayOrder struct {
	ProviderOrderID string          `json:"provider_order_id"`
	Amount          decimal.Decimal `json:"amount"`
	AmountMinor     int64           `json:"amount_minor"`
}

// CreateGatewayOrder prices the cart, including any coupon, and opens a provider
// order for that amount. The client pays against it and then calls PlaceOrder.
func (o *CheckoutOrchestrator) CreateGatewayOrder(ctx context.Context, userID uuid.UUID, couponCode string) (*GatewayOrder, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.CreateGatewayOrder")
	defer span.End()

	if o.gateway == nil {
		return nil, newCheckoutError(ErrValidation, ReasonUnsupportedPaymentMethod, "payment gateway is not configured")
	}

	repos := o.tx.Repos()
	code := o.couponCode(ctx, userID, couponCode)
	cart, totals, _, err := o.cartTotals(ctx, repos, userID, code)
	if err != nil {
		return nil, err
	}

	issues, err := o.inventory.Validate(ctx, repos.Products(), cart.Items)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		return nil, &CheckoutError{
			Kind:    ErrValidation,
			Reason:  ReasonStockUnavailable,
			Message: "some items in your cart are unavailable",
			Lines:   issues,
		}
	}

	minor := ToMinorUnits(totals.Total)
	receipt := "rcpt_" + uuid.NewString()[:8]
	providerOrderID, err := o.gateway.CreateOrder(ctx, minor, receipt)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	// settling a gateway payment requires this record and the same amount
	err = repos.GatewayOrders().Create(ctx, &models.GatewayOrder{
		ProviderOrderID: providerOrderID,
		UserID:          userID,
		Amount:          totals.Total,
		AmountMinor:     minor,
		Receipt:         receipt,
		CreatedAt:       o.now(),
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	o.logger.Info("Gateway order created",
		zap.String("user_id", userID.String()),
		zap.String("provider_order_id", providerOrderID),
		zap.Int64("amount_minor", minor),
	)
	return &GatewayOrder{ProviderOrderID: providerOrderID, Amount: totals.Total, AmountMinor: minor}, nil
}
