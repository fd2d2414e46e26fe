package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type walletRepo struct {
	q dbtx
}

// LockUser takes the row lock that serialises balance checks for one user
func (r *walletRepo) LockUser(ctx context.Context, userID uuid.UUID) error {
	var id uuid.UUID
	err := r.q.GetContext(ctx, &id, "SELECT id FROM users WHERE id = $1 FOR UPDATE", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

func (r *walletRepo) Sums(ctx context.Context, userID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	var sums struct {
		Credits decimal.Decimal `db:"credits"`
		Debits  decimal.Decimal `db:"debits"`
	}
	err := r.q.GetContext(ctx, &sums, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'CREDIT'), 0) AS credits,
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'DEBIT'), 0) AS debits
		FROM wallet_entries WHERE user_id = $1`, userID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum wallet entries: %w", err)
	}
	return sums.Credits, sums.Debits, nil
}

func (r *walletRepo) Insert(ctx context.Context, entry *models.WalletEntry) error {
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO wallet_entries (id, user_id, amount, entry_type, type, order_id, address_doc_id,
			address_detail_id, transaction_id, status, created_at)
		VALUES (:id, :user_id, :amount, :entry_type, :type, :order_id, :address_doc_id,
			:address_detail_id, :transaction_id, :status, :created_at)`, entry)
	if err != nil {
		return fmt.Errorf("failed to insert wallet entry: %w", err)
	}
	return nil
}

func (r *walletRepo) AdjustCache(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE users SET wallet = wallet + $1, updated_at = NOW() WHERE id = $2", delta, userID)
	if err != nil {
		return fmt.Errorf("failed to adjust wallet cache: %w", err)
	}
	return nil
}

func (r *walletRepo) SetCache(ctx context.Context, userID uuid.UUID, value decimal.Decimal) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE users SET wallet = $1, updated_at = NOW() WHERE id = $2", value, userID)
	if err != nil {
		return fmt.Errorf("failed to set wallet cache: %w", err)
	}
	return nil
}

func (r *walletRepo) CachedBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var wallet decimal.Decimal
	err := r.q.GetContext(ctx, &wallet, "SELECT wallet FROM users WHERE id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load wallet cache: %w", err)
	}
	return wallet, nil
}

// ListEntries returns the newest entries first
func (r *walletRepo) ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*models.WalletEntry, error) {
	var entries []*models.WalletEntry
	err := r.q.SelectContext(ctx, &entries, `
		SELECT id, user_id, amount, entry_type, type, order_id, address_doc_id, address_detail_id,
			transaction_id, status, created_at
		FROM wallet_entries WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet entries: %w", err)
	}
	return entries, nil
}
