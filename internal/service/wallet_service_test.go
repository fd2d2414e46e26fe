package service

import (
	"context"
	"testing"
	"time"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWallet(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.topUp(t, "150")
	w.topUp(t, "50")

	view, err := w.wallet.GetWallet(ctx, w.userID)
	require.NoError(t, err)
	assert.True(t, dec("200").Equal(view.Balance))
	assert.True(t, dec("200").Equal(view.CachedBalance))
	require.Len(t, view.Entries, 2)
	assert.True(t, dec("50").Equal(view.Entries[0].Amount), "newest first")

	_, err = w.wallet.GetWallet(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWalletEntryEventReconcilesOnce(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.topUp(t, "80")
	require.NoError(t, w.store.Repos().Wallet().SetCache(ctx, w.userID, dec("5")))

	event := &models.WalletEntryRecordedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.NewString(),
			EventType: models.EventTypeWalletEntryRecorded,
			Timestamp: time.Now(),
		},
		UserID: w.userID,
	}

	require.NoError(t, w.wallet.HandleWalletEntryRecorded(ctx, event))
	assert.True(t, dec("80").Equal(w.store.CachedWallet(w.userID)))

	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	require.NoError(t, err)
	assert.True(t, processed)

	// a redelivered event is skipped
	require.NoError(t, w.store.Repos().Wallet().SetCache(ctx, w.userID, dec("5")))
	require.NoError(t, w.wallet.HandleWalletEntryRecorded(ctx, event))
	assert.True(t, dec("5").Equal(w.store.CachedWallet(w.userID)))
}

func TestAdminReconcile(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.topUp(t, "10")

	res, err := w.wallet.Reconcile(ctx, w.userID)
	require.NoError(t, err)
	assert.False(t, res.Drifted)
	assert.True(t, dec("10").Equal(res.Balance))

	_, err = w.wallet.Reconcile(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
