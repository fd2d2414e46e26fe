package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"
	"storefront-orders/internal/util"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletLedger writes immutable ledger entries. The balance is always derived from
// the entries; users.wallet is a cache written in the same transaction.
type WalletLedger struct {
	logger  *zap.Logger
	now     func() time.Time
	newTxID func() string
}

func NewWalletLedger() *WalletLedger {
	return &WalletLedger{
		logger:  util.GetLogger(),
		now:     time.Now,
		newTxID: func() string { return "TXN_" + ulid.Make().String() },
	}
}

// Linkage ties an entry to the order and address it concerns
type Linkage struct {
	OrderID *uuid.UUID
	Address *models.AddressRef
}

// Balance is Σcredits − Σdebits
func (l *WalletLedger) Balance(ctx context.Context, w store.WalletRepository, userID uuid.UUID) (decimal.Decimal, error) {
	credits, debits, err := w.Sums(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return credits.Sub(debits), nil
}

// Credit appends a CREDIT entry and bumps the cache
func (l *WalletLedger) Credit(
	ctx context.Context,
	w store.WalletRepository,
	userID uuid.UUID,
	amount decimal.Decimal,
	txType models.WalletTxType,
	link Linkage,
) (*models.WalletEntry, error) {
	ctx, span := util.StartSpan(ctx, "WalletLedger.Credit")
	defer span.End()

	if err := l.lock(ctx, w, userID); err != nil {
		return nil, err
	}
	return l.write(ctx, w, userID, amount, models.EntryCredit, txType, link)
}

// Debit locks the user row, checks the derived balance and appends a DEBIT entry.
// The check and the write must share the caller's transaction.
func (l *WalletLedger) Debit(
	ctx context.Context,
	w store.WalletRepository,
	userID uuid.UUID,
	amount decimal.Decimal,
	txType models.WalletTxType,
	link Linkage,
) (*models.WalletEntry, error) {
	ctx, span := util.StartSpan(ctx, "WalletLedger.Debit")
	defer span.End()

	if err := l.lock(ctx, w, userID); err != nil {
		return nil, err
	}

	balance, err := l.Balance(ctx, w, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute wallet balance: %w", err)
	}
	if amount.GreaterThan(balance) {
		return nil, newCheckoutError(ErrValidation, ReasonInsufficientWallet,
			"insufficient wallet balance, available=%s required=%s", balance.String(), amount.String())
	}

	return l.write(ctx, w, userID, amount, models.EntryDebit, txType, link)
}

func (l *WalletLedger) lock(ctx context.Context, w store.WalletRepository, userID uuid.UUID) error {
	err := w.LockUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return err
}

func (l *WalletLedger) write(
	ctx context.Context,
	w store.WalletRepository,
	userID uuid.UUID,
	amount decimal.Decimal,
	entryType models.EntryType,
	txType models.WalletTxType,
	link Linkage,
) (*models.WalletEntry, error) {
	amount = round2(amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: wallet amount must be positive", ErrValidation)
	}

	entry := &models.WalletEntry{
		ID:            uuid.New(),
		UserID:        userID,
		Amount:        amount,
		EntryType:     entryType,
		Type:          txType,
		OrderID:       link.OrderID,
		TransactionID: l.newTxID(),
		Status:        "completed",
		CreatedAt:     l.now(),
	}
	if link.Address != nil {
		docID, detailID := link.Address.DocID, link.Address.DetailID
		entry.AddressDocID = &docID
		entry.AddressDetailID = &detailID
	}

	if err := w.Insert(ctx, entry); err != nil {
		return nil, err
	}
	if err := w.AdjustCache(ctx, userID, entry.Signed()); err != nil {
		return nil, err
	}

	util.WalletEntriesTotal.WithLabelValues(string(entryType), string(txType)).Inc()
	l.logger.Info("Wallet entry recorded",
		zap.String("user_id", userID.String()),
		zap.String("transaction_id", entry.TransactionID),
		zap.String("entry_type", string(entryType)),
		zap.String("amount", amount.String()),
	)
	return entry, nil
}

// Reconcile rewrites the cache from the ledger and reports whether it had drifted
func (l *WalletLedger) Reconcile(ctx context.Context, w store.WalletRepository, userID uuid.UUID) (decimal.Decimal, bool, error) {
	ctx, span := util.StartSpan(ctx, "WalletLedger.Reconcile")
	defer span.End()

	if err := l.lock(ctx, w, userID); err != nil {
		return decimal.Zero, false, err
	}

	balance, err := l.Balance(ctx, w, userID)
	if err != nil {
		return decimal.Zero, false, err
	}
	cached, err := w.CachedBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, false, err
	}
	if cached.Equal(balance) {
		return balance, false, nil
	}

	if err := w.SetCache(ctx, userID, balance); err != nil {
		return decimal.Zero, false, err
	}
	util.WalletCacheDriftTotal.Inc()
	l.logger.Warn("Wallet cache drift repaired",
		zap.String("user_id", userID.String()),
		zap.String("cached", cached.String()),
		zap.String("ledger", balance.String()),
	)
	return balance, true, nil
}

func walletEntryEvent(entry *models.WalletEntry) *models.WalletEntryRecordedEvent {
	return &models.WalletEntryRecordedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeWalletEntryRecorded, entry.CreatedAt),
		UserID:        entry.UserID,
		TransactionID: entry.TransactionID,
		EntryType:     entry.EntryType,
		Type:          entry.Type,
		Amount:        entry.Amount,
	}
}
