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
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultCancelReason = "Cancelled by customer"
	allItemsCancelled   = "All items cancelled"
)

// OrderLifecycleManager moves placed orders and their items through the status
// machine. Each operation locks the order row and commits stock, ledger and
// status changes in one transaction.
type OrderLifecycleManager struct {
	tx        store.TxManager
	inventory *InventoryAdjuster
	ledger    *WalletLedger
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewOrderLifecycleManager(
	tx store.TxManager,
	inventory *InventoryAdjuster,
	ledger *WalletLedger,
	publisher EventPublisher,
) *OrderLifecycleManager {
	return &OrderLifecycleManager{
		tx:        tx,
		inventory: inventory,
		ledger:    ledger,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// CancelResult is returned by order and item cancellation
type CancelResult struct {
	OrderID      uuid.UUID          `json:"order_id"`
	Status       models.OrderStatus `json:"status"`
	RefundAmount decimal.Decimal    `json:"refund_amount"`
}

// ReturnResult is returned by the return request and review operations
type ReturnResult struct {
	OrderID      uuid.UUID          `json:"order_id"`
	Status       models.OrderStatus `json:"status"`
	ItemIDs      []uuid.UUID        `json:"item_ids"`
	RefundAmount decimal.Decimal    `json:"refund_amount"`
}

// GetOrder returns the order if it belongs to userID
func (m *OrderLifecycleManager) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycleManager.GetOrder")
	defer span.End()

	order, err := m.tx.Repos().Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order", orderID)
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}

// ListOrders returns the user's orders, newest first
func (m *OrderLifecycleManager) ListOrders(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycleManager.ListOrders")
	defer span.End()

	orders, err := m.tx.Repos().Orders().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (m *OrderLifecycleManager) lockOrder(ctx context.Context, r store.Repos, orderID uuid.UUID) (*models.Order, error) {
	order, err := r.Orders().GetByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order", orderID)
	}
	return order, nil
}

func (m *OrderLifecycleManager) lockOwnedOrder(ctx context.Context, r store.Repos, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := m.lockOrder(ctx, r, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s belongs to another user", ErrForbidden, orderID)
	}
	return order, nil
}

// moveItem transitions one item and persists it with its history entry
func (m *OrderLifecycleManager) moveItem(ctx context.Context, r store.Repos, item *models.OrderItem, to models.OrderStatus, reason string, now time.Time) error {
	if err := item.SetStatus(to, reason, now); err != nil {
		return fmt.Errorf("item %s: %w", item.ID, err)
	}
	if to == models.StatusCancelled {
		item.CancelReason = reason
	}
	entry := item.StatusHistory[len(item.StatusHistory)-1]
	if err := r.Orders().UpdateItem(ctx, item, entry); err != nil {
		return fmt.Errorf("failed to update order item: %w", err)
	}
	return nil
}

func liveItems(order *models.Order) []*models.OrderItem {
	var live []*models.OrderItem
	for _, it := range order.Items {
		if !it.CurrentStatus.Closed() {
			live = append(live, it)
		}
	}
	return live
}

func allClosed(order *models.Order) bool {
	return len(liveItems(order)) == 0
}

// paidOnline is true when cancelling should return money to the wallet
func paidOnline(order *models.Order) bool {
	return order.PaymentMethod != models.PaymentCOD && order.PaymentStatus == models.PaymentStatusPaid
}

// refund credits amount to the order owner's wallet and books it on the order
func (m *OrderLifecycleManager) refund(ctx context.Context, r store.Repos, order *models.Order, amount decimal.Decimal, txType models.WalletTxType) (*models.WalletEntry, error) {
	amount = minDecimal(round2(amount), order.RefundableRemainder())
	if !amount.IsPositive() {
		return nil, nil
	}
	orderID := order.ID
	address := order.AddressRef
	entry, err := m.ledger.Credit(ctx, r.Wallet(), order.UserID, amount, txType,
		Linkage{OrderID: &orderID, Address: &address})
	if err != nil {
		return nil, fmt.Errorf("failed to refund to wallet: %w", err)
	}
	order.RefundedAmount = order.RefundedAmount.Add(amount)
	return entry, nil
}

// CancelOrder cancels every live item, releases their stock and refunds what is
// left of the payment to the wallet
func (m *OrderLifecycleManager) CancelOrder(ctx context.Context, userID, orderID uuid.UUID, reason string) (*CancelResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycleManager.CancelOrder",
		attribute.String("order_id", orderID.String()))
	defer span.End()

	reason = util.SanitizeReason(reason)
	if reason == "" {
		reason = defaultCancelReason
	}

	var (
		order *models.Order
		entry *models.WalletEntry
	)
	err := m.tx.WithinTx(ctx, func(r store.Repos) error {
		var err error
		order, err = m.lockOwnedOrder(ctx, r, userID, orderID)
		if err != nil {
			return err
		}

		live := liveItems(order)
		if len(live) == 0 {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
		}
		for _, it := range live {
			if !it.CurrentStatus.Cancellable() {
				return fmt.Errorf("%w: item %s is %s", ErrInvalidTransition, it.ID, it.CurrentStatus)
			}
		}

		now := m.now()
		for _, it := range live {
			if err := m.moveItem(ctx, r, it, models.StatusCancelled, reason, now); err != nil {
				return err
			}
			if err := m.inventory.Release(ctx, r.Products(), it.ProductID, it.Size, it.Quantity); err != nil {
				return err
			}
		}

		if paidOnline(order) {
			entry, err = m.refund(ctx, r, order, order.RefundableRemainder(), models.WalletCancel)
			if err != nil {
				return err
			}
		}

		order.Status = models.StatusCancelled
		order.CancelReason = reason
		order.UpdatedAt = now
		return r.Orders().Update(ctx, order)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	refunded := decimal.Zero
	if entry != nil {
		refunded = entry.Amount
	}
	m.publishCancelled(ctx, models.EventTypeOrderCancelled, order, nil, reason, refunded)
	m.publishWalletEntry(ctx, entry)

	util.OrdersCancelledTotal.WithLabelValues("order").Inc()
	m.logger.Info("Order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("refund", refunded.String()),
	)
	return &CancelResult{OrderID: order.ID, Status: order.Status, RefundAmount: refunded}, nil
}

// CancelItem cancels a single item. Its refund is the item total plus its share
// of delivery and tax; the last live item gets whatever remains refundable.
func (m *OrderLifecycleManager) CancelItem(ctx context.Context, userID, orderID, itemID uuid.UUID, reason string) (*CancelResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycleManager.CancelItem",
		attribute.String("order_id", orderID.String()),
		attribute.String("item_id", itemID.String()))
	defer span.End()

	reason = util.SanitizeReason(reason)
	if reason == "" {
		reason = defaultCancelReason
	}

	var (
		order *models.Order
		entry *models.WalletEntry
	)
	err := m.tx.WithinTx(ctx, func(r store.Repos) error {
		var err error
		order, err = m.lockOwnedOrder(ctx, r, userID, orderID)
		if err != nil {
			return err
		}
		item := order.Item(itemID)
		if item == nil {
			return fmt.Errorf("%w: order item %s", ErrNotFound, itemID)
		}
		if !item.CurrentStatus.Cancellable() {
			return fmt.Errorf("%w: item %s is %s", ErrInvalidTransition, item.ID, item.CurrentStatus)
		}

		now := m.now()
		if err := m.moveItem(ctx, r, item, models.StatusCancelled, reason, now); err != nil {
			return err
		}
		if err := m.inventory.Release(ctx, r.Products(), item.ProductID, item.Size, item.Quantity); err != nil {
			return err
		}

		if paidOnline(order) {
			amount := itemRefundShare(order, item)
			if allClosed(order) {
				amount = order.RefundableRemainder()
			}
			entry, err = m.refund(ctx, r, order, amount, models.WalletItemRefund)
			if err != nil {
				return err
			}
		}

		if allClosed(order) {
			order.Status = models.StatusCancelled
			order.CancelReason = allItemsCancelled
		}
		order.UpdatedAt = now
		return r.Orders().Update(ctx, order)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	refunded := decimal.Zero
	if entry != nil {
		refunded = entry.Amount
	}
	m.publishCancelled(ctx, models.EventTypeOrderItemCancelled, order, &itemID, reason, refunded)
	m.publishWalletEntry(ctx, entry)

	util.OrdersCancelledTotal.WithLabelValues("item").Inc()
	m.logger.Info("Order item cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("item_id", itemID.String()),
		zap.String("refund", refunded.String()),
	)
	return &CancelResult{OrderID: order.ID, Status: order.Status, RefundAmount: refunded}, nil
}

// RequestReturn opens a return for the given items, or for every delivered item
// when itemIDs is empty. Stock is released as soon as the return is requested.
func (m *OrderLifecycleManager) RequestReturn(ctx context.Context, userID, orderID uuid.UUID, itemIDs []uuid.UUID, reason string) (*ReturnResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycleManager.RequestReturn",
		attribute.String("order_id", orderID.String()),
		attribute.Int("items", len(itemIDs)))
	defer span.End()

	reason = util.SanitizeReason(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: return reason is required", ErrValidation)
	}

	var (
		order   *models.Order
		targets []*models.OrderItem
	)
	err := m.tx.WithinTx(ctx, func(r store.Repos) error {
		var err error
		order, err = m.lockOwnedOrder(ctx, r, userID, orderID)
		if err != nil {
			return err
		}

		targets, err = returnTargets(order, itemIDs)
		if err != nil {
			return err
		}

		now := m.now()
		for _, it := range targets {
			if err := m.moveItem(ctx, r, it, models.StatusReturnRequested, reason, now); err != nil {
				return err
			}
			if err := m.inventory.Release(ctx, r.Products(), it.ProductID, it.Size, it.Quantity); err != nil {
				return err
			}
			err := r.Refunds().Create(ctx, &models.Refund{
				ID:          uuid.New(),
				OrderID:     order.ID,
				ItemID:      it.ID,
				ProductID:   it.ProductID,
				UserID:      order.UserID,
				Reason:      reason,
				Status:      models.RefundRequested,
				VariantSize: it.Size,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil {
				return fmt.Errorf("failed to create refund request: %w", err)
			}
		}

		order.Status = models.StatusReturnRequested
		order.UpdatedAt = now
		return r.Orders().Update(ctx, order)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	ids := itemIDsOf(targets)
	m.publishReturn(ctx, models.EventTypeOrderReturnRequested, order, ids, reason, decimal.Zero)
	util.ReturnsTotal.WithLabelValues("requested").Inc()
	m.logger.Info("Return requested",
		zap.String("order_id", order.ID.String()),
		zap.Int("items", len(ids)),
	)
	return &ReturnResult{OrderID: order.ID, Status: order.Status, ItemIDs: ids, RefundAmount: decimal.Zero}, nil
}

func returnTargets(order *models.Order, itemIDs []uuid.UUID) ([]*models.OrderItem, error) {
	var targets []*models.OrderItem
	if len(itemIDs) == 0 {
		for _, it := range order.Items {
			if it.CurrentStatus == models.StatusDelivered {
				targets = append(targets, it)
			}
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("%w: order %s has no delivered items", ErrInvalidTransition, order.ID)
		}
		return targets, nil
	}

	seen := make(map[uuid.UUID]bool, len(itemIDs))
	for _, id := range itemIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		it := order.Item(id)
		if it == nil {
			return nil, fmt.Errorf("%w: order item %s", ErrNotFound, id)
		}
		if err := it.CurrentStatus.Transition(models.StatusReturnRequested); err != nil {
			return nil, fmt.Errorf("item %s: %w", it.ID, err)
		}
		targets = append(targets, it)
	}
	return targets, nil
}

func itemIDsOf(items []*models.OrderItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

// pendingReturns loads the Requested refunds of an order with their items
func pendingReturns(ctx context.Context, r store.Repos, order *models.Order) ([]*models.Refund, []*models.OrderItem, error) {
	refunds, err := r.Refunds().ListByOrder(ctx, order.ID, models.RefundRequested)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load return requests: %w", err)
	}
	if len(refunds) == 0 {
		return nil, nil, fmt.Errorf("%w: order %s has no pending return requests", ErrValidation, order.ID)
	}

	items := make([]*models.OrderItem, 0, len(refunds))
	for _, ref := range refunds {
		it := order.Item(ref.ItemID)
		if it == nil {
			return nil, nil, fmt.Errorf("%w: order item %s", ErrNotFound, ref.ItemID)
		}
		items = append(items, it)
	}
	return refunds, items, nil
}

func refundIDs(refunds []*models.Refund) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(refunds))
	for _, ref := range refunds {
		ids = append(ids, ref.ID)
	}
	return ids
}

// ApproveReturns accepts every pending return of the order and credits their
// item totals once, capped at what is still refundable
func (m *OrderLifecycleManager) ApproveReturns(ctx context.Context, orderID uuid.UUID) (*ReturnResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycleManager.ApproveReturns",
		attribute.String("order_id", orderID.String()))
	defer span.End()

	var (
		order *models.Order
		items []*models.OrderItem
		entry *models.WalletEntry
	)
	err := m.tx.WithinTx(ctx, func(r store.Repos) error {
		var (
			err     error
			refunds []*models.Refund
		)
		order, err = m.lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		refunds, items, err = pendingReturns(ctx, r, order)
		if err != nil {
			return err
		}

		now := m.now()
		sum := decimal.Zero
		for _, it := range items {
			if err := m.moveItem(ctx, r, it, models.StatusReturned, "Return approved", now); err != nil {
				return err
			}
			sum = sum.Add(it.LineTotal())
		}

		if order.PaymentStatus == models.PaymentStatusPaid {
			entry, err = m.refund(ctx, r, order, sum, models.WalletRefund)
			if err != nil {
				return err
			}
		}

		if err := r.Refunds().UpdateStatus(ctx, refundIDs(refunds), models.RefundApproved); err != nil {
			return fmt.Errorf("failed to approve return requests: %w", err)
		}

		order.Status = models.StatusDelivered
		if allClosed(order) {
			order.Status = models.StatusReturned
		}
		order.UpdatedAt = now
		return r.Orders().Update(ctx, order)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	refunded := decimal.Zero
	if entry != nil {
		refunded = entry.Amount
	}
	ids := itemIDsOf(items)
	m.publishReturn(ctx, models.EventTypeOrderReturnApproved, order, ids, "", refunded)
	m.publishWalletEntry(ctx, entry)

	util.ReturnsTotal.WithLabelValues("approved").Inc()
	m.logger.Info("Returns approved",
		zap.String("order_id", order.ID.String()),
		zap.Int("items", len(ids)),
		zap.String("refund", refunded.String()),
	)
	return &ReturnResult{OrderID: order.ID, Status: order.Status, ItemIDs: ids, RefundAmount: refunded}, nil
}

// RejectReturns puts the items back to Delivered. Stock released at request time
// is taken again when still available; a shortfall is logged, not fatal.
func (m *OrderLifecycleManager) RejectReturns(ctx context.Context, orderID uuid.UUID) (*ReturnResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycleManager.RejectReturns",
		attribute.String("order_id", orderID.String()))
	defer span.End()

	var (
		order *models.Order
		items []*models.OrderItem
	)
	err := m.tx.WithinTx(ctx, func(r store.Repos) error {
		var (
			err     error
			refunds []*models.Refund
		)
		order, err = m.lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		refunds, items, err = pendingReturns(ctx, r, order)
		if err != nil {
			return err
		}

		now := m.now()
		for _, it := range items {
			if err := m.moveItem(ctx, r, it, models.StatusDelivered, "Return rejected", now); err != nil {
				return err
			}
			err := m.inventory.Reserve(ctx, r.Products(), it.ProductID, it.Size, it.Quantity)
			if errors.Is(err, ErrConflict) {
				m.logger.Warn("Could not take back stock for rejected return",
					zap.String("order_id", order.ID.String()),
					zap.String("item_id", it.ID.String()),
				)
				continue
			}
			if err != nil {
				return err
			}
		}

		if err := r.Refunds().UpdateStatus(ctx, refundIDs(refunds), models.RefundRejected); err != nil {
			return fmt.Errorf("failed to reject return requests: %w", err)
		}

		order.Status = models.StatusDelivered
		for _, it := range order.Items {
			if it.CurrentStatus == models.StatusReturnRequested {
				order.Status = models.StatusReturnRequested
				break
			}
		}
		order.UpdatedAt = now
		return r.Orders().Update(ctx, order)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	ids := itemIDsOf(items)
	m.publishReturn(ctx, models.EventTypeOrderReturnRejected, order, ids, "", decimal.Zero)
	util.ReturnsTotal.WithLabelValues("rejected").Inc()
	m.logger.Info("Returns rejected",
		zap.String("order_id", order.ID.String()),
		zap.Int("items", len(ids)),
	)
	return &ReturnResult{OrderID: order.ID, Status: order.Status, ItemIDs: ids, RefundAmount: decimal.Zero}, nil
}

// AdvanceStatus moves every live item that can follow to the given fulfilment
// status. A COD order is marked paid on delivery.
func (m *OrderLifecycleManager) AdvanceStatus(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycleManager.AdvanceStatus",
		attribute.String("order_id", orderID.String()),
		attribute.String("to", string(to)))
	defer span.End()

	switch to {
	case models.StatusOrderConfirmed, models.StatusOrderShipped, models.StatusDelivered:
	default:
		return nil, fmt.Errorf("%w: cannot set status %q directly", ErrValidation, to)
	}

	var (
		order *models.Order
		from  models.OrderStatus
	)
	err := m.tx.WithinTx(ctx, func(r store.Repos) error {
		var err error
		order, err = m.lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		from = order.Status

		now := m.now()
		moved := 0
		for _, it := range liveItems(order) {
			if !it.CurrentStatus.CanTransition(to) {
				continue
			}
			if err := m.moveItem(ctx, r, it, to, "", now); err != nil {
				return err
			}
			moved++
		}
		if moved == 0 {
			return fmt.Errorf("%w: order %s: %s → %s", ErrInvalidTransition, order.ID, order.Status, to)
		}

		order.Status = to
		if to == models.StatusDelivered && order.PaymentMethod == models.PaymentCOD &&
			order.PaymentStatus == models.PaymentStatusPending {
			order.PaymentStatus = models.PaymentStatusPaid
			order.PaymentVerified = true
		}
		order.UpdatedAt = now
		return r.Orders().Update(ctx, order)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged, m.now()),
		OrderID:   order.ID,
		UserID:    order.UserID,
		From:      from,
		To:        to,
	}
	if err := m.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		m.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(string(to)).Inc()
	m.logger.Info("Order status advanced",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return order, nil
}

func (m *OrderLifecycleManager) publishCancelled(ctx context.Context, eventType string, order *models.Order, itemID *uuid.UUID, reason string, refund decimal.Decimal) {
	event := &models.OrderCancelledEvent{
		BaseEvent:    newBaseEvent(eventType, m.now()),
		OrderID:      order.ID,
		UserID:       order.UserID,
		ItemID:       itemID,
		Reason:       reason,
		RefundAmount: refund,
	}
	if err := m.publisher.PublishOrderCancelled(ctx, event); err != nil {
		m.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
}

func (m *OrderLifecycleManager) publishReturn(ctx context.Context, eventType string, order *models.Order, itemIDs []uuid.UUID, reason string, refund decimal.Decimal) {
	event := &models.OrderReturnEvent{
		BaseEvent:    newBaseEvent(eventType, m.now()),
		OrderID:      order.ID,
		UserID:       order.UserID,
		ItemIDs:      itemIDs,
		Reason:       reason,
		RefundAmount: refund,
	}
	if err := m.publisher.PublishOrderReturn(ctx, event); err != nil {
		m.logger.Error("Failed to publish OrderReturn event", zap.Error(err))
	}
}

func (m *OrderLifecycleManager) publishWalletEntry(ctx context.Context, entry *models.WalletEntry) {
	if entry == nil {
		return
	}
	if err := m.publisher.PublishWalletEntryRecorded(ctx, walletEntryEvent(entry)); err != nil {
		m.logger.Error("Failed to publish WalletEntryRecorded event", zap.Error(err))
	}
}
