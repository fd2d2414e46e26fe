package store

import (
	"context"
	"fmt"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type refundRepo struct {
	q dbtx
}

func (r *refundRepo) Create(ctx context.Context, refund *models.Refund) error {
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO refunds (id, order_id, item_id, product_id, user_id, reason, status, variant_size,
			created_at, updated_at)
		VALUES (:id, :order_id, :item_id, :product_id, :user_id, :reason, :status, :variant_size,
			:created_at, :updated_at)`, refund)
	if err != nil {
		return fmt.Errorf("failed to insert refund: %w", err)
	}
	return nil
}

func (r *refundRepo) ListByOrder(ctx context.Context, orderID uuid.UUID, status models.RefundStatus) ([]*models.Refund, error) {
	var refunds []*models.Refund
	err := r.q.SelectContext(ctx, &refunds, `
		SELECT id, order_id, item_id, product_id, user_id, reason, status, variant_size, created_at, updated_at
		FROM refunds WHERE order_id = $1 AND status = $2 ORDER BY created_at`, orderID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return refunds, nil
}

func (r *refundRepo) UpdateStatus(ctx context.Context, ids []uuid.UUID, status models.RefundStatus) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.q.ExecContext(ctx,
		"UPDATE refunds SET status = $1, updated_at = NOW() WHERE id = ANY($2::uuid[])",
		status, pq.Array(idStrings(ids)))
	if err != nil {
		return fmt.Errorf("failed to update refunds: %w", err)
	}
	return nil
}
