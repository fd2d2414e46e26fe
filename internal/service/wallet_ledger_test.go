package service

import (
	"context"
	"strings"
	"testing"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"
	"storefront-orders/internal/store/memstore"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerBalanceIsCreditsMinusDebits(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	userID := uuid.New()
	st.PutUser(userID, decimal.Zero)
	l := NewWalletLedger()

	err := st.WithinTx(ctx, func(r store.Repos) error {
		if _, err := l.Credit(ctx, r.Wallet(), userID, dec("500"), models.WalletAddMoney, Linkage{}); err != nil {
			return err
		}
		_, err := l.Debit(ctx, r.Wallet(), userID, dec("120.50"), models.WalletProductPurchase, Linkage{})
		return err
	})
	require.NoError(t, err)

	balance, err := l.Balance(ctx, st.Repos().Wallet(), userID)
	require.NoError(t, err)
	assert.True(t, dec("379.50").Equal(balance), balance.String())
	assert.True(t, balance.Equal(st.CachedWallet(userID)))

	entries := st.WalletEntries(userID)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, strings.HasPrefix(e.TransactionID, "TXN_"), e.TransactionID)
	}
}

func TestDebitRejectsInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	userID := uuid.New()
	st.PutUser(userID, decimal.Zero)
	l := NewWalletLedger()

	_, err := l.Credit(ctx, st.Repos().Wallet(), userID, dec("300"), models.WalletAddMoney, Linkage{})
	require.NoError(t, err)

	_, err = l.Debit(ctx, st.Repos().Wallet(), userID, dec("500"), models.WalletProductPurchase, Linkage{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, ReasonInsufficientWallet, reasonOf(t, err))
	assert.Equal(t, "insufficient wallet balance, available=300 required=500", err.Error())

	assert.Len(t, st.WalletEntries(userID), 1)
	assert.True(t, dec("300").Equal(st.CachedWallet(userID)))
}

func TestLedgerRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	userID := uuid.New()
	st.PutUser(userID, decimal.Zero)

	_, err := NewWalletLedger().Credit(ctx, st.Repos().Wallet(), userID, decimal.Zero, models.WalletRefund, Linkage{})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, st.WalletEntries(userID))
}

func TestLedgerUnknownUser(t *testing.T) {
	_, err := NewWalletLedger().Credit(context.Background(), memstore.New().Repos().Wallet(), uuid.New(), dec("1"), models.WalletRefund, Linkage{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntryCarriesLinkage(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	userID := uuid.New()
	st.PutUser(userID, decimal.Zero)
	orderID := uuid.New()
	addr := models.AddressRef{DocID: uuid.New(), DetailID: uuid.New()}

	entry, err := NewWalletLedger().Credit(ctx, st.Repos().Wallet(), userID, dec("10"), models.WalletRefund,
		Linkage{OrderID: &orderID, Address: &addr})
	require.NoError(t, err)
	require.NotNil(t, entry.OrderID)
	assert.Equal(t, orderID, *entry.OrderID)
	assert.Equal(t, addr.DocID, *entry.AddressDocID)
	assert.Equal(t, addr.DetailID, *entry.AddressDetailID)
}

func TestReconcileRepairsDriftedCache(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	userID := uuid.New()
	st.PutUser(userID, decimal.Zero)
	l := NewWalletLedger()

	_, err := l.Credit(ctx, st.Repos().Wallet(), userID, dec("250"), models.WalletReferral, Linkage{})
	require.NoError(t, err)
	require.NoError(t, st.Repos().Wallet().SetCache(ctx, userID, dec("999")))

	balance, drifted, err := l.Reconcile(ctx, st.Repos().Wallet(), userID)
	require.NoError(t, err)
	assert.True(t, drifted)
	assert.True(t, dec("250").Equal(balance))
	assert.True(t, dec("250").Equal(st.CachedWallet(userID)))

	_, drifted, err = l.Reconcile(ctx, st.Repos().Wallet(), userID)
	require.NoError(t, err)
	assert.False(t, drifted)
}
