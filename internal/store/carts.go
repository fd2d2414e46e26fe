package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
)

type cartRepo struct {
	q dbtx
}

func (r *cartRepo) Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart := &models.Cart{UserID: userID}
	err := r.q.SelectContext(ctx, &cart.Items, `
		SELECT product_id, size, quantity, price, base_price, product_image
		FROM cart_items WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return cart, nil
}

// Delete removes the cart and, by cascade, its lines
func (r *cartRepo) Delete(ctx context.Context, userID uuid.UUID) error {
	_, err := r.q.ExecContext(ctx, "DELETE FROM carts WHERE user_id = $1", userID)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

type addressRepo struct {
	q dbtx
}

func (r *addressRepo) Get(ctx context.Context, userID, detailID uuid.UUID) (*models.AddressSnapshot, error) {
	var a models.AddressSnapshot
	err := r.q.GetContext(ctx, &a, `
		SELECT address_doc_id, address_detail_id, user_id, name, phone, line1, city, state, pincode
		FROM addresses WHERE user_id = $1 AND address_detail_id = $2`, userID, detailID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load address: %w", err)
	}
	return &a, nil
}
