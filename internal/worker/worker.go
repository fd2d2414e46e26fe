package worker

import (
	"context"

	"storefront-orders/internal/broker"
	"storefront-orders/internal/models"
	"storefront-orders/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// WalletReconciler rewrites a cached wallet balance from the ledger
type WalletReconciler interface {
	HandleWalletEntryRecorded(ctx context.Context, event *models.WalletEntryRecordedEvent) error
}

// MessageSource is implemented by broker.Consumer
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// WalletWorker keeps users.wallet in line with the ledger by consuming
// WALLET_ENTRY_RECORDED events
type WalletWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewWalletWorker creates a new wallet worker
func NewWalletWorker(consumer MessageSource, reconciler WalletReconciler) *WalletWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnWalletEntryRecorded(reconciler.HandleWalletEntryRecorded)

	return &WalletWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Handle processes one message; exposed for tests and replay tooling
func (w *WalletWorker) Handle(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Start starts the worker
func (w *WalletWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting wallet worker")
	return w.consumer.StartConsuming(ctx, w.Handle)
}

// Stop stops the worker
func (w *WalletWorker) Stop() error {
	w.logger.Info("Stopping wallet worker")
	return w.consumer.Close()
}
