package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-orders/internal/models"

	"github.com/jmoiron/sqlx"
)

type gatewayOrderRepo struct {
	q dbtx
}

func (r *gatewayOrderRepo) Create(ctx context.Context, order *models.GatewayOrder) error {
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO gateway_orders (provider_order_id, user_id, amount, amount_minor, receipt, created_at)
		VALUES (:provider_order_id, :user_id, :amount, :amount_minor, :receipt, :created_at)`, order)
	if err != nil {
		return fmt.Errorf("failed to insert gateway order: %w", err)
	}
	return nil
}

func (r *gatewayOrderRepo) Get(ctx context.Context, providerOrderID string) (*models.GatewayOrder, error) {
	var order models.GatewayOrder
	err := r.q.GetContext(ctx, &order, `
		SELECT provider_order_id, user_id, amount, amount_minor, receipt, created_at
		FROM gateway_orders WHERE provider_order_id = $1`, providerOrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load gateway order: %w", err)
	}
	return &order, nil
}
