package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
)

type couponRepo struct {
	q dbtx
}

const couponColumns = "id, code, name, start_date, expiry_date, min_price, offer_price, usage_type, status"

// FindByCode matches codes case-insensitively
func (r *couponRepo) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := r.q.GetContext(ctx, &c,
		"SELECT "+couponColumns+" FROM coupons WHERE UPPER(code) = UPPER($1)", code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	return &c, nil
}

func (r *couponRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var c models.Coupon
	err := r.q.GetContext(ctx, &c, "SELECT "+couponColumns+" FROM coupons WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	return &c, nil
}

func (r *couponRepo) HasRedeemed(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2)",
		couponID, userID)
	return exists, err
}

// RecordRedemption is a no-op when the user already redeemed the coupon
func (r *couponRepo) RecordRedemption(ctx context.Context, couponID, userID, orderID uuid.UUID) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO coupon_redemptions (coupon_id, user_id, order_id) VALUES ($1, $2, $3)
		ON CONFLICT (coupon_id, user_id) DO NOTHING`,
		couponID, userID, orderID)
	if err != nil {
		return fmt.Errorf("failed to record coupon redemption: %w", err)
	}
	return nil
}

// ListAvailable returns active in-window coupons, hiding single-use ones the user already redeemed
func (r *couponRepo) ListAvailable(ctx context.Context, userID uuid.UUID, now time.Time) ([]*models.Coupon, error) {
	var coupons []*models.Coupon
	err := r.q.SelectContext(ctx, &coupons, `
		SELECT `+couponColumns+` FROM coupons c
		WHERE c.status = $1 AND c.start_date <= $2 AND c.expiry_date >= $2
		  AND NOT (c.usage_type = $3 AND EXISTS (
		      SELECT 1 FROM coupon_redemptions cr WHERE cr.coupon_id = c.id AND cr.user_id = $4))
		ORDER BY c.expiry_date`,
		models.CouponActive, now, models.CouponSingleUse, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	return coupons, nil
}
