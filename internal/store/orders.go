package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type orderRepo struct {
	q dbtx
}

const orderColumns = `id, order_number, user_id, address_doc_id, address_detail_id, payment_method,
	payment_status, payment_verified, payment_id, gateway_order_id, sub_total, delivery_charge, tax,
	discount, total_amount, refunded_amount, coupon_id, coupon_code, status, cancel_reason,
	failure_reason, created_at, updated_at`

type historyRow struct {
	ItemID uuid.UUID `db:"item_id"`
	models.StatusEntry
}

// Partial unique indexes over paid gateway orders
const (
	uniqPaidPaymentID      = "uniq_orders_paid_payment_id"
	uniqPaidGatewayOrderID = "uniq_orders_paid_gateway_order_id"
)

func (r *orderRepo) NextOrderNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.GetContext(ctx, &n, "SELECT nextval('order_number_seq')"); err != nil {
		return 0, fmt.Errorf("failed to draw order number: %w", err)
	}
	return n, nil
}

// Create inserts the order, its items and their initial history in the caller's transaction
func (r *orderRepo) Create(ctx context.Context, order *models.Order) error {
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (:id, :order_number, :user_id, :address_doc_id, :address_detail_id, :payment_method,
			:payment_status, :payment_verified, :payment_id, :gateway_order_id, :sub_total, :delivery_charge,
			:tax, :discount, :total_amount, :refunded_amount, :coupon_id, :coupon_code, :status,
			:cancel_reason, :failure_reason, :created_at, :updated_at)`, order)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" &&
		(pqErr.Constraint == uniqPaidPaymentID || pqErr.Constraint == uniqPaidGatewayOrderID) {
		return ErrPaymentAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err := sqlx.NamedExecContext(ctx, r.q, `
			INSERT INTO order_items (id, order_id, position, product_id, size, quantity, base_price, price,
				product_image, current_status, cancel_reason)
			VALUES (:id, :order_id, :position, :product_id, :size, :quantity, :base_price, :price,
				:product_image, :current_status, :cancel_reason)`, item)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
		for _, entry := range item.StatusHistory {
			if err := r.insertHistory(ctx, order.ID, item.ID, entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *orderRepo) insertHistory(ctx context.Context, orderID, itemID uuid.UUID, entry models.StatusEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO order_item_status_history (order_id, item_id, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		orderID, itemID, entry.Status, entry.Reason, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert status history: %w", err)
	}
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.get(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

func (r *orderRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.get(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
}

func (r *orderRepo) get(ctx context.Context, query string, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.q.GetContext(ctx, &order, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if err := r.loadItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepo) loadItems(ctx context.Context, order *models.Order) error {
	var items []*models.OrderItem
	err := r.q.SelectContext(ctx, &items, `
		SELECT id, order_id, position, product_id, size, quantity, base_price, price, product_image,
			current_status, cancel_reason
		FROM order_items WHERE order_id = $1 ORDER BY position`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	var history []historyRow
	err = r.q.SelectContext(ctx, &history, `
		SELECT item_id, status, reason, created_at
		FROM order_item_status_history WHERE order_id = $1 ORDER BY id`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load status history: %w", err)
	}

	byID := make(map[uuid.UUID]*models.OrderItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, h := range history {
		if it, ok := byID[h.ItemID]; ok {
			it.StatusHistory = append(it.StatusHistory, h.StatusEntry)
		}
	}
	order.Items = items
	return nil
}

// ListByUser returns the user's orders, newest first
func (r *orderRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	var orders []*models.Order
	err := r.q.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	for _, o := range orders {
		if err := r.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Update writes the mutable order-level fields
func (r *orderRepo) Update(ctx context.Context, order *models.Order) error {
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		UPDATE orders SET payment_status = :payment_status, payment_verified = :payment_verified,
			payment_id = :payment_id, refunded_amount = :refunded_amount, status = :status,
			cancel_reason = :cancel_reason, failure_reason = :failure_reason, updated_at = :updated_at
		WHERE id = :id`, order)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// UpdateItem writes the item's status and appends one history entry
func (r *orderRepo) UpdateItem(ctx context.Context, item *models.OrderItem, entry models.StatusEntry) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE order_items SET current_status = $1, cancel_reason = $2 WHERE id = $3",
		item.CurrentStatus, item.CancelReason, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update order item: %w", err)
	}
	return r.insertHistory(ctx, item.OrderID, item.ID, entry)
}
