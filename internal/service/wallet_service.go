package service

import (
	"context"
	"fmt"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"
	"storefront-orders/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const recentWalletEntries = 20

// WalletService exposes the ledger to users and keeps the cached balance honest
type WalletService struct {
	tx     store.TxManager
	events store.EventLog
	ledger *WalletLedger
	logger *zap.Logger
}

func NewWalletService(tx store.TxManager, events store.EventLog, ledger *WalletLedger) *WalletService {
	return &WalletService{
		tx:     tx,
		events: events,
		ledger: ledger,
		logger: util.GetLogger(),
	}
}

// WalletView is the wallet page: derived balance, cached balance and recent entries
type WalletView struct {
	UserID        uuid.UUID             `json:"user_id"`
	Balance       decimal.Decimal       `json:"balance"`
	CachedBalance decimal.Decimal       `json:"cached_balance"`
	Entries       []*models.WalletEntry `json:"entries"`
}

func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*WalletView, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.GetWallet")
	defer span.End()

	w := s.tx.Repos().Wallet()
	cached, err := w.CachedBalance(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user", userID)
	}
	balance, err := s.ledger.Balance(ctx, w, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute wallet balance: %w", err)
	}
	entries, err := w.ListEntries(ctx, userID, recentWalletEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet entries: %w", err)
	}

	return &WalletView{
		UserID:        userID,
		Balance:       balance,
		CachedBalance: cached,
		Entries:       entries,
	}, nil
}

// ReconcileResult reports the outcome of rewriting the cache
type ReconcileResult struct {
	UserID  uuid.UUID       `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	Drifted bool            `json:"drifted"`
}

// Reconcile rewrites the user's cached balance from the ledger
func (s *WalletService) Reconcile(ctx context.Context, userID uuid.UUID) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.Reconcile")
	defer span.End()

	var (
		balance decimal.Decimal
		drifted bool
	)
	err := s.tx.WithinTx(ctx, func(r store.Repos) error {
		var err error
		balance, drifted, err = s.ledger.Reconcile(ctx, r.Wallet(), userID)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	return &ReconcileResult{UserID: userID, Balance: balance, Drifted: drifted}, nil
}

// HandleWalletEntryRecorded reconciles the wallet named by a ledger event, once per event
func (s *WalletService) HandleWalletEntryRecorded(ctx context.Context, event *models.WalletEntryRecordedEvent) error {
	ctx, span := util.StartSpan(ctx, "WalletService.HandleWalletEntryRecorded")
	defer span.End()

	processed, err := s.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		s.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if _, err := s.Reconcile(ctx, event.UserID); err != nil {
		return fmt.Errorf("failed to reconcile wallet: %w", err)
	}

	if err := s.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		s.logger.Error("Failed to mark event as processed", zap.Error(err))
	}
	return nil
}
