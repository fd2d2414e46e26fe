package memstore

import (
	"context"
	"errors"
	"testing"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinTxDiscardsOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := &models.Product{ID: uuid.New(), Status: models.ProductStatusAvailable, Sizes: map[string]int{"7": 2}}
	s.PutProduct(p)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(r store.Repos) error {
		ok, err := r.Products().DecrementStockIfEnough(ctx, p.ID, "7", 2)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, s.Product(p.ID).Sizes["7"])

	err = s.WithinTx(ctx, func(r store.Repos) error {
		_, err := r.Products().DecrementStockIfEnough(ctx, p.ID, "7", 2)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Product(p.ID).Sizes["7"])
}

func TestDecrementRefusesOversell(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := &models.Product{ID: uuid.New(), Sizes: map[string]int{"7": 1}}
	s.PutProduct(p)

	ok, err := s.Repos().Products().DecrementStockIfEnough(ctx, p.ID, "7", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	s.ForceStockConflict(p.ID)
	ok, err = s.Repos().Products().DecrementStockIfEnough(ctx, p.ID, "7", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddressBelongsToUser(t *testing.T) {
	s := New()
	owner := uuid.New()
	addr := &models.AddressSnapshot{AddressRef: models.AddressRef{DocID: uuid.New(), DetailID: uuid.New()}, UserID: owner}
	s.PutAddress(addr)

	_, err := s.Repos().Addresses().Get(context.Background(), uuid.New(), addr.DetailID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Repos().Addresses().Get(context.Background(), owner, addr.DetailID)
	require.NoError(t, err)
	assert.Equal(t, addr.DocID, got.DocID)
}

func TestPaidGatewayOrdersAreSingleUse(t *testing.T) {
	s := New()
	ctx := context.Background()
	paid := func(paymentID, providerOrderID string) *models.Order {
		return &models.Order{
			ID:             uuid.New(),
			PaymentMethod:  models.PaymentGateway,
			PaymentStatus:  models.PaymentStatusPaid,
			PaymentID:      paymentID,
			GatewayOrderID: providerOrderID,
		}
	}

	require.NoError(t, s.Repos().Orders().Create(ctx, paid("pay_1", "order_1")))
	assert.ErrorIs(t, s.Repos().Orders().Create(ctx, paid("pay_1", "order_2")), store.ErrPaymentAlreadyUsed)
	assert.ErrorIs(t, s.Repos().Orders().Create(ctx, paid("pay_2", "order_1")), store.ErrPaymentAlreadyUsed)

	declined := paid("pay_1", "order_1")
	declined.PaymentStatus = models.PaymentStatusFailed
	assert.NoError(t, s.Repos().Orders().Create(ctx, declined))
	assert.Equal(t, 2, s.OrderCount())
}

func TestOrderNumbersSurviveRollback(t *testing.T) {
	s := New()
	ctx := context.Background()

	var inTx int64
	err := s.WithinTx(ctx, func(r store.Repos) error {
		n, err := r.Orders().NextOrderNumber(ctx)
		require.NoError(t, err)
		inTx = n
		return errors.New("rollback")
	})
	require.Error(t, err)

	next, err := s.Repos().Orders().NextOrderNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, inTx+1, next)
}
