package service

import (
	"context"
	"errors"
	"testing"

	"storefront-orders/internal/gateway"
	"storefront-orders/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPlaceOrderCOD(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	shoe := w.product(map[string]int{"8": 3, "9": 1})
	w.cart(line(shoe, "8", 2, "200"))

	res, err := w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentCOD))
	require.NoError(t, err)

	assert.Regexp(t, `^#SM\d{9}$`, res.OrderNumber)
	assert.Equal(t, models.StatusOrderPlaced, res.Status)
	assert.True(t, dec("461").Equal(res.Totals.Total), res.Totals.Total.String())

	order := w.store.Order(res.OrderID)
	require.NotNil(t, order)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.False(t, order.PaymentVerified)
	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, models.StatusOrderPlaced, item.CurrentStatus)
	require.Len(t, item.StatusHistory, 2)
	assert.Equal(t, models.StatusPending, item.StatusHistory[0].Status)
	assert.Equal(t, models.StatusOrderPlaced, item.StatusHistory[1].Status)

	assert.Equal(t, 1, w.store.Product(shoe).Sizes["8"])
	assert.False(t, w.store.HasCart(w.userID))
	assert.Equal(t, []string{models.EventTypeOrderPlaced}, w.pub.types())
}

func TestPlaceOrderReportsAllStockProblems(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	a := w.product(map[string]int{"8": 1})
	b := w.product(map[string]int{"8": 0})
	w.cart(line(a, "8", 2, "100"), line(b, "8", 1, "100"))

	_, err := w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentCOD))
	require.Error(t, err)

	var ce *CheckoutError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonStockUnavailable, ce.Reason)
	require.Len(t, ce.Lines, 2)
	assert.Equal(t, StockProblemInsufficient, ce.Lines[0].Problem)
	assert.Equal(t, StockProblemSizeUnavailable, ce.Lines[1].Problem)

	assert.Equal(t, 0, w.store.OrderCount())
	assert.True(t, w.store.HasCart(w.userID))
}

func TestPlaceOrderRejectsEmptyCartAndMissingAddress(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	_, err := w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentCOD))
	assert.Equal(t, ReasonCartEmpty, reasonOf(t, err))

	w.cart(line(w.product(map[string]int{"8": 1}), "8", 1, "100"))
	req := w.placeOrder(models.PaymentCOD)
	req.AddressID = uuid.New()
	_, err = w.checkout.PlaceOrder(ctx, req)
	assert.Equal(t, ReasonAddressMissing, reasonOf(t, err))
}

func TestPlaceOrderCODAboveThreshold(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	shoe := w.product(map[string]int{"8": 5})
	w.cart(line(shoe, "8", 1, "1400"))

	_, err := w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentCOD))
	require.Error(t, err)
	assert.Equal(t, ReasonCODThreshold, reasonOf(t, err))
	assert.Equal(t, 5, w.store.Product(shoe).Sizes["8"])
	assert.Equal(t, 0, w.store.OrderCount())
}

func TestPlaceOrderTamperedGatewaySignature(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	shoe := w.product(map[string]int{"8": 2})
	w.cart(line(shoe, "8", 1, "500"))

	openGatewayOrder(t, w.store, w.userID, "566")

	req := w.placeOrder(models.PaymentGateway)
	req.Gateway = signedPayload()
	req.Gateway.Signature = gateway.Sign("attacker", "order_abc", "pay_123")

	_, err := w.checkout.PlaceOrder(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPaymentFailed)

	var ce *CheckoutError
	require.ErrorAs(t, err, &ce)
	require.NotNil(t, ce.OrderID)

	order := w.store.Order(*ce.OrderID)
	require.NotNil(t, order)
	assert.Equal(t, models.StatusPaymentFailed, order.Status)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.False(t, order.PaymentVerified)
	assert.Equal(t, models.StatusPaymentFailed, order.Items[0].CurrentStatus)

	assert.Equal(t, 2, w.store.Product(shoe).Sizes["8"])
	assert.True(t, w.store.HasCart(w.userID))
	assert.Equal(t, []string{models.EventTypeOrderPaymentFailed}, w.pub.types())
}

func TestPlaceOrderGatewayVerified(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	shoe := w.product(map[string]int{"8": 2})
	w.cart(line(shoe, "8", 1, "500"))

	openGatewayOrder(t, w.store, w.userID, "566")

	req := w.placeOrder(models.PaymentGateway)
	req.Gateway = signedPayload()
	res, err := w.checkout.PlaceOrder(ctx, req)
	require.NoError(t, err)

	order := w.store.Order(res.OrderID)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.True(t, order.PaymentVerified)
	assert.Equal(t, "pay_123", order.PaymentID)
	assert.Equal(t, "order_abc", order.GatewayOrderID)
}

func TestGatewayPaymentCannotPayTwice(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	shoe := w.product(map[string]int{"8": 5})
	openGatewayOrder(t, w.store, w.userID, "566")

	w.cart(line(shoe, "8", 1, "500"))
	req := w.placeOrder(models.PaymentGateway)
	req.Gateway = signedPayload()
	_, err := w.checkout.PlaceOrder(ctx, req)
	require.NoError(t, err)

	w.cart(line(shoe, "8", 1, "500"))
	again := w.placeOrder(models.PaymentGateway)
	again.Gateway = signedPayload()
	_, err = w.checkout.PlaceOrder(ctx, again)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, ReasonPaymentAlreadyUsed, reasonOf(t, err))

	assert.Equal(t, 1, w.store.OrderCount())
	assert.Equal(t, 4, w.store.Product(shoe).Sizes["8"])
	assert.True(t, w.store.HasCart(w.userID))
	assert.Equal(t, []string{models.EventTypeOrderPlaced}, w.pub.types())
}

func TestGatewayPaymentMustMatchProviderOrderAmount(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	shoe := w.product(map[string]int{"8": 5})
	// provider order opened for a cheaper cart
	openGatewayOrder(t, w.store, w.userID, "241")
	w.cart(line(shoe, "8", 1, "500"))

	req := w.placeOrder(models.PaymentGateway)
	req.Gateway = signedPayload()
	_, err := w.checkout.PlaceOrder(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, ReasonGatewayOrderMismatch, reasonOf(t, err))
	assert.Equal(t, 0, w.store.OrderCount())
	assert.Equal(t, 5, w.store.Product(shoe).Sizes["8"])
}

func TestOrderNumbersComeFromSequence(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	shoe := w.product(map[string]int{"8": 5})

	w.cart(line(shoe, "8", 1, "100"))
	first, err := w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentCOD))
	require.NoError(t, err)

	w.cart(line(shoe, "8", 1, "100"))
	second, err := w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentCOD))
	require.NoError(t, err)

	assert.Equal(t, "#SM100000001", first.OrderNumber)
	assert.Equal(t, "#SM100000002", second.OrderNumber)
}

func TestPlaceOrderWithWallet(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.topUp(t, "1000")
	shoe := w.product(map[string]int{"8": 2})
	w.cart(line(shoe, "8", 1, "400"))

	res, err := w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentWallet))
	require.NoError(t, err)

	// 400 + 41 + 20
	assert.True(t, dec("461").Equal(res.Totals.Total))
	assert.Equal(t, models.PaymentStatusPaid, res.PaymentStatus)
	assert.True(t, dec("539").Equal(w.store.CachedWallet(w.userID)))

	entries := w.store.WalletEntries(w.userID)
	require.Len(t, entries, 2)
	debit := entries[1]
	assert.Equal(t, models.EntryDebit, debit.EntryType)
	assert.Equal(t, res.OrderID, *debit.OrderID)
	assert.Equal(t, w.address.DetailID, *debit.AddressDetailID)
	assert.Equal(t, []string{models.EventTypeOrderPlaced, models.EventTypeWalletEntryRecorded}, w.pub.types())
}

func TestPlaceOrderWalletInsufficient(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.topUp(t, "300")
	shoe := w.product(map[string]int{"8": 2})
	w.cart(line(shoe, "8", 1, "400"))

	_, err := w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentWallet))
	require.Error(t, err)
	assert.Equal(t, "insufficient wallet balance, available=300 required=461", err.Error())
	assert.Len(t, w.store.WalletEntries(w.userID), 1)
	assert.Equal(t, 0, w.store.OrderCount())
}

func TestStockConflictRollsBackWalletDebit(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.topUp(t, "1000")
	shoe := w.product(map[string]int{"8": 2})
	w.cart(line(shoe, "8", 1, "400"))
	w.store.ForceStockConflict(shoe)

	_, err := w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentWallet))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, ReasonStockConflict, reasonOf(t, err))

	assert.Len(t, w.store.WalletEntries(w.userID), 1)
	assert.True(t, dec("1000").Equal(w.store.CachedWallet(w.userID)))
	assert.Equal(t, 0, w.store.OrderCount())
	assert.True(t, w.store.HasCart(w.userID))
	assert.Empty(t, w.pub.types())
}

func TestSingleUseCouponCannotBeReused(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	coupon := activeCoupon("FIRST100", "300", "100", models.CouponSingleUse)
	w.store.PutCoupon(coupon)
	shoe := w.product(map[string]int{"8": 5})

	w.cart(line(shoe, "8", 1, "500"))
	preview, err := w.checkout.ApplyCoupon(ctx, w.userID, "first100")
	require.NoError(t, err)
	assert.Equal(t, "FIRST100", preview.Code)
	assert.True(t, dec("100").Equal(preview.Totals.Discount))

	// coupon comes from the session slot
	res, err := w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentCOD))
	require.NoError(t, err)
	// 500 + 41 + 25 - 100
	assert.True(t, dec("466").Equal(res.Totals.Total), res.Totals.Total.String())
	assert.True(t, w.store.Redeemed(coupon.ID, w.userID))

	applied, _ := w.session.AppliedCoupon(ctx, w.userID)
	assert.Empty(t, applied)

	w.cart(line(shoe, "8", 1, "500"))
	_, err = w.checkout.ApplyCoupon(ctx, w.userID, "FIRST100")
	assert.Equal(t, ReasonCouponAlreadyUsed, reasonOf(t, err))

	req := w.placeOrder(models.PaymentCOD)
	req.CouponCode = "FIRST100"
	_, err = w.checkout.PlaceOrder(ctx, req)
	assert.Equal(t, ReasonCouponAlreadyUsed, reasonOf(t, err))
}

func TestPlaceOrderReplaysIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	shoe := w.product(map[string]int{"8": 5})
	w.cart(line(shoe, "8", 1, "100"))

	req := w.placeOrder(models.PaymentCOD)
	req.IdempotencyKey = "abc-123"
	first, err := w.checkout.PlaceOrder(ctx, req)
	require.NoError(t, err)

	second, err := w.checkout.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 1, w.store.OrderCount())
	assert.Equal(t, 4, w.store.Product(shoe).Sizes["8"])
}

func TestPlaceOrderRejectedWhileCheckoutInProgress(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.cart(line(w.product(map[string]int{"8": 5}), "8", 1, "100"))

	token, err := w.session.AcquireLock(ctx, checkoutLockKey(w.userID), 0)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentCOD))
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, ReasonCheckoutInProgress, reasonOf(t, err))

	require.NoError(t, w.session.ReleaseLock(ctx, checkoutLockKey(w.userID), token))
	_, err = w.checkout.PlaceOrder(ctx, w.placeOrder(models.PaymentCOD))
	assert.NoError(t, err)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateOrder(ctx context.Context, amountMinor int64, receipt string) (string, error) {
	args := m.Called(ctx, amountMinor, receipt)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) VerifySignature(providerOrderID, paymentID, signature string) bool {
	return m.Called(providerOrderID, paymentID, signature).Bool(0)
}

func TestCreateGatewayOrderChargesDiscountedTotal(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.store.PutCoupon(activeCoupon("TEN", "0", "10", models.CouponMultiUse))
	w.cart(line(w.product(map[string]int{"8": 5}), "8", 2, "100"))

	gw := &mockGateway{}
	// 200 + 41 + 10 - 10 = 241
	gw.On("CreateOrder", mock.Anything, int64(24100), mock.AnythingOfType("string")).Return("order_xyz", nil)
	w.checkout.gateway = gw

	res, err := w.checkout.CreateGatewayOrder(ctx, w.userID, "TEN")
	require.NoError(t, err)
	assert.Equal(t, "order_xyz", res.ProviderOrderID)
	assert.Equal(t, int64(24100), res.AmountMinor)
	gw.AssertExpectations(t)

	stored, err := w.store.Repos().GatewayOrders().Get(ctx, "order_xyz")
	require.NoError(t, err)
	assert.Equal(t, w.userID, stored.UserID)
	assert.Equal(t, int64(24100), stored.AmountMinor)
}

func TestCreateGatewayOrderFailure(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.cart(line(w.product(map[string]int{"8": 5}), "8", 1, "100"))

	gw := &mockGateway{}
	gw.On("CreateOrder", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("gateway down"))
	w.checkout.gateway = gw

	_, err := w.checkout.CreateGatewayOrder(ctx, w.userID, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway down")
}
