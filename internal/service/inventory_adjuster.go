package service

import (
	"context"
	"fmt"
	"strings"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"
	"storefront-orders/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InventoryAdjuster reserves and releases per-size stock through conditional updates
type InventoryAdjuster struct {
	logger *zap.Logger
}

func NewInventoryAdjuster() *InventoryAdjuster {
	return &InventoryAdjuster{
		logger: util.GetLogger(),
	}
}

// NormalizeSize is the canonical form of a size label
func NormalizeSize(size string) string {
	return strings.ToLower(strings.TrimSpace(size))
}

type stockKey struct {
	productID uuid.UUID
	size      string
}

// Validate checks every cart line against current stock and returns one issue
// per offending line. Lines of the same product and size are checked together.
func (a *InventoryAdjuster) Validate(ctx context.Context, products store.ProductRepository, items []models.CartItem) ([]StockIssue, error) {
	ctx, span := util.StartSpan(ctx, "InventoryAdjuster.Validate",
		attribute.Int("lines", len(items)))
	defer span.End()

	ids := make([]uuid.UUID, 0, len(items))
	wanted := make(map[stockKey]int, len(items))
	order := make([]stockKey, 0, len(items))
	for _, it := range items {
		key := stockKey{productID: it.ProductID, size: NormalizeSize(it.Size)}
		if _, seen := wanted[key]; !seen {
			order = append(order, key)
			ids = append(ids, it.ProductID)
		}
		wanted[key] += it.Quantity
	}

	found, err := products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	var issues []StockIssue
	for _, key := range order {
		qty := wanted[key]
		issue := StockIssue{ProductID: key.productID, Size: key.size, Requested: qty}

		prod, ok := found[key.productID]
		if !ok || prod.Status == models.ProductStatusDiscontinued {
			issue.Problem = StockProblemProductUnavailable
			issues = append(issues, issue)
			continue
		}
		stock, ok := prod.Sizes[key.size]
		if !ok || stock == 0 {
			issue.Problem = StockProblemSizeUnavailable
			issues = append(issues, issue)
			continue
		}
		if stock < qty {
			issue.Problem = StockProblemInsufficient
			issue.Available = stock
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// Reserve takes qty units in one conditional update. A failed update is a
// retryable conflict. When every size is empty afterwards the product goes Out of Stock.
func (a *InventoryAdjuster) Reserve(ctx context.Context, products store.ProductRepository, productID uuid.UUID, size string, qty int) error {
	ctx, span := util.StartSpan(ctx, "InventoryAdjuster.Reserve",
		attribute.String("product_id", productID.String()),
		attribute.Int("quantity", qty))
	defer span.End()

	size = NormalizeSize(size)
	ok, err := products.DecrementStockIfEnough(ctx, productID, size, qty)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if !ok {
		util.StockConflictsTotal.Inc()
		a.logger.Warn("Stock reservation conflict",
			zap.String("product_id", productID.String()),
			zap.String("size", size),
			zap.Int("quantity", qty),
		)
		return &CheckoutError{
			Kind:    ErrConflict,
			Reason:  ReasonStockConflict,
			Message: "stock changed during checkout, please retry",
			Lines:   []StockIssue{{ProductID: productID, Size: size, Requested: qty, Problem: StockProblemInsufficient}},
		}
	}

	return a.deriveStatus(ctx, products, productID)
}

// Release puts qty units back and brings an Out of Stock product back to Available
func (a *InventoryAdjuster) Release(ctx context.Context, products store.ProductRepository, productID uuid.UUID, size string, qty int) error {
	ctx, span := util.StartSpan(ctx, "InventoryAdjuster.Release",
		attribute.String("product_id", productID.String()),
		attribute.Int("quantity", qty))
	defer span.End()

	size = NormalizeSize(size)
	if err := products.IncrementStock(ctx, productID, size, qty); err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to release stock: %w", err)
	}

	a.logger.Debug("Stock released",
		zap.String("product_id", productID.String()),
		zap.String("size", size),
		zap.Int("quantity", qty),
	)
	return a.deriveStatus(ctx, products, productID)
}

// deriveStatus keeps Out of Stock equal to "every size is zero". Discontinued is never changed.
func (a *InventoryAdjuster) deriveStatus(ctx context.Context, products store.ProductRepository, productID uuid.UUID) error {
	found, err := products.GetByIDs(ctx, []uuid.UUID{productID})
	if err != nil {
		return fmt.Errorf("failed to reload product: %w", err)
	}
	prod, ok := found[productID]
	if !ok || prod.Status == models.ProductStatusDiscontinued {
		return nil
	}

	next := models.ProductStatusAvailable
	if prod.AllSizesEmpty() {
		next = models.ProductStatusOutOfStock
	}
	if next == prod.Status {
		return nil
	}
	if err := products.SetStatus(ctx, productID, next); err != nil {
		return fmt.Errorf("failed to update product status: %w", err)
	}
	a.logger.Info("Product status changed",
		zap.String("product_id", productID.String()),
		zap.String("status", string(next)),
	)
	return nil
}
