package store

import (
	"context"
	"fmt"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type productRepo struct {
	q dbtx
}

type sizeRow struct {
	ProductID uuid.UUID `db:"product_id"`
	Size      string    `db:"size"`
	Stock     int       `db:"stock"`
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// GetByIDs loads products with their size maps; missing ids are absent from the result
func (r *productRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	products := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	var rows []models.Product
	err := r.q.SelectContext(ctx, &rows,
		"SELECT id, name, status FROM products WHERE id = ANY($1::uuid[])", pq.Array(idStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	for i := range rows {
		p := rows[i]
		p.Sizes = map[string]int{}
		products[p.ID] = &p
	}

	var sizes []sizeRow
	err = r.q.SelectContext(ctx, &sizes,
		"SELECT product_id, size, stock FROM product_sizes WHERE product_id = ANY($1::uuid[])", pq.Array(idStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("failed to load product sizes: %w", err)
	}
	for _, s := range sizes {
		if p, ok := products[s.ProductID]; ok {
			p.Sizes[s.Size] = s.Stock
		}
	}

	return products, nil
}

// DecrementStockIfEnough is a single conditional update; zero rows affected means not enough stock
func (r *productRepo) DecrementStockIfEnough(ctx context.Context, productID uuid.UUID, size string, qty int) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		"UPDATE product_sizes SET stock = stock - $1 WHERE product_id = $2 AND size = $3 AND stock >= $1",
		qty, productID, size)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IncrementStock adds units back, creating the size row if it was never stocked
func (r *productRepo) IncrementStock(ctx context.Context, productID uuid.UUID, size string, qty int) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO product_sizes (product_id, size, stock) VALUES ($1, $2, $3)
		ON CONFLICT (product_id, size) DO UPDATE SET stock = product_sizes.stock + EXCLUDED.stock`,
		productID, size, qty)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	return nil
}

// SetStatus updates product status
func (r *productRepo) SetStatus(ctx context.Context, productID uuid.UUID, status models.ProductStatus) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE products SET status = $1, updated_at = NOW() WHERE id = $2",
		status, productID)
	return err
}
