package memstore

import (
	"context"
	"time"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (a *autoRepos) do(fn func(r *repos) error) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return fn(a.live())
}

type autoProducts struct{ *autoRepos }

func (p *autoProducts) GetByIDs(ctx context.Context, ids []uuid.UUID) (out map[uuid.UUID]*models.Product, err error) {
	err = p.do(func(r *repos) error {
		var e error
		out, e = r.Products().GetByIDs(ctx, ids)
		return e
	})
	return out, err
}

func (p *autoProducts) DecrementStockIfEnough(ctx context.Context, productID uuid.UUID, size string, qty int) (ok bool, err error) {
	err = p.do(func(r *repos) error {
		var e error
		ok, e = r.Products().DecrementStockIfEnough(ctx, productID, size, qty)
		return e
	})
	return ok, err
}

func (p *autoProducts) IncrementStock(ctx context.Context, productID uuid.UUID, size string, qty int) error {
	return p.do(func(r *repos) error { return r.Products().IncrementStock(ctx, productID, size, qty) })
}

func (p *autoProducts) SetStatus(ctx context.Context, productID uuid.UUID, status models.ProductStatus) error {
	return p.do(func(r *repos) error { return r.Products().SetStatus(ctx, productID, status) })
}

type autoCoupons struct{ *autoRepos }

func (c *autoCoupons) FindByCode(ctx context.Context, code string) (out *models.Coupon, err error) {
	err = c.do(func(r *repos) error {
		var e error
		out, e = r.Coupons().FindByCode(ctx, code)
		return e
	})
	return out, err
}

func (c *autoCoupons) FindByID(ctx context.Context, id uuid.UUID) (out *models.Coupon, err error) {
	err = c.do(func(r *repos) error {
		var e error
		out, e = r.Coupons().FindByID(ctx, id)
		return e
	})
	return out, err
}

func (c *autoCoupons) HasRedeemed(ctx context.Context, couponID, userID uuid.UUID) (ok bool, err error) {
	err = c.do(func(r *repos) error {
		var e error
		ok, e = r.Coupons().HasRedeemed(ctx, couponID, userID)
		return e
	})
	return ok, err
}

func (c *autoCoupons) RecordRedemption(ctx context.Context, couponID, userID, orderID uuid.UUID) error {
	return c.do(func(r *repos) error { return r.Coupons().RecordRedemption(ctx, couponID, userID, orderID) })
}

func (c *autoCoupons) ListAvailable(ctx context.Context, userID uuid.UUID, now time.Time) (out []*models.Coupon, err error) {
	err = c.do(func(r *repos) error {
		var e error
		out, e = r.Coupons().ListAvailable(ctx, userID, now)
		return e
	})
	return out, err
}

type autoCarts struct{ *autoRepos }

func (c *autoCarts) Get(ctx context.Context, userID uuid.UUID) (out *models.Cart, err error) {
	err = c.do(func(r *repos) error {
		var e error
		out, e = r.Carts().Get(ctx, userID)
		return e
	})
	return out, err
}

func (c *autoCarts) Delete(ctx context.Context, userID uuid.UUID) error {
	return c.do(func(r *repos) error { return r.Carts().Delete(ctx, userID) })
}

type autoAddresses struct{ *autoRepos }

func (a *autoAddresses) Get(ctx context.Context, userID, detailID uuid.UUID) (out *models.AddressSnapshot, err error) {
	err = a.do(func(r *repos) error {
		var e error
		out, e = r.Addresses().Get(ctx, userID, detailID)
		return e
	})
	return out, err
}

type autoOrders struct{ *autoRepos }

func (o *autoOrders) NextOrderNumber(ctx context.Context) (out int64, err error) {
	err = o.do(func(r *repos) error {
		var e error
		out, e = r.Orders().NextOrderNumber(ctx)
		return e
	})
	return out, err
}

func (o *autoOrders) Create(ctx context.Context, order *models.Order) error {
	return o.do(func(r *repos) error { return r.Orders().Create(ctx, order) })
}

func (o *autoOrders) GetByID(ctx context.Context, id uuid.UUID) (out *models.Order, err error) {
	err = o.do(func(r *repos) error {
		var e error
		out, e = r.Orders().GetByID(ctx, id)
		return e
	})
	return out, err
}

func (o *autoOrders) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return o.GetByID(ctx, id)
}

func (o *autoOrders) ListByUser(ctx context.Context, userID uuid.UUID) (out []*models.Order, err error) {
	err = o.do(func(r *repos) error {
		var e error
		out, e = r.Orders().ListByUser(ctx, userID)
		return e
	})
	return out, err
}

func (o *autoOrders) Update(ctx context.Context, order *models.Order) error {
	return o.do(func(r *repos) error { return r.Orders().Update(ctx, order) })
}

func (o *autoOrders) UpdateItem(ctx context.Context, item *models.OrderItem, entry models.StatusEntry) error {
	return o.do(func(r *repos) error { return r.Orders().UpdateItem(ctx, item, entry) })
}

type autoGatewayOrders struct{ *autoRepos }

func (g *autoGatewayOrders) Create(ctx context.Context, order *models.GatewayOrder) error {
	return g.do(func(r *repos) error { return r.GatewayOrders().Create(ctx, order) })
}

func (g *autoGatewayOrders) Get(ctx context.Context, providerOrderID string) (out *models.GatewayOrder, err error) {
	err = g.do(func(r *repos) error {
		var e error
		out, e = r.GatewayOrders().Get(ctx, providerOrderID)
		return e
	})
	return out, err
}

type autoRefunds struct{ *autoRepos }

func (f *autoRefunds) Create(ctx context.Context, refund *models.Refund) error {
	return f.do(func(r *repos) error { return r.Refunds().Create(ctx, refund) })
}

func (f *autoRefunds) ListByOrder(ctx context.Context, orderID uuid.UUID, status models.RefundStatus) (out []*models.Refund, err error) {
	err = f.do(func(r *repos) error {
		var e error
		out, e = r.Refunds().ListByOrder(ctx, orderID, status)
		return e
	})
	return out, err
}

func (f *autoRefunds) UpdateStatus(ctx context.Context, ids []uuid.UUID, status models.RefundStatus) error {
	return f.do(func(r *repos) error { return r.Refunds().UpdateStatus(ctx, ids, status) })
}

type autoWallet struct{ *autoRepos }

func (w *autoWallet) LockUser(ctx context.Context, userID uuid.UUID) error {
	return w.do(func(r *repos) error { return r.Wallet().LockUser(ctx, userID) })
}

func (w *autoWallet) Sums(ctx context.Context, userID uuid.UUID) (credits, debits decimal.Decimal, err error) {
	err = w.do(func(r *repos) error {
		var e error
		credits, debits, e = r.Wallet().Sums(ctx, userID)
		return e
	})
	return credits, debits, err
}

func (w *autoWallet) Insert(ctx context.Context, entry *models.WalletEntry) error {
	return w.do(func(r *repos) error { return r.Wallet().Insert(ctx, entry) })
}

func (w *autoWallet) AdjustCache(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error {
	return w.do(func(r *repos) error { return r.Wallet().AdjustCache(ctx, userID, delta) })
}

func (w *autoWallet) SetCache(ctx context.Context, userID uuid.UUID, value decimal.Decimal) error {
	return w.do(func(r *repos) error { return r.Wallet().SetCache(ctx, userID, value) })
}

func (w *autoWallet) CachedBalance(ctx context.Context, userID uuid.UUID) (out decimal.Decimal, err error) {
	err = w.do(func(r *repos) error {
		var e error
		out, e = r.Wallet().CachedBalance(ctx, userID)
		return e
	})
	return out, err
}

func (w *autoWallet) ListEntries(ctx context.Context, userID uuid.UUID, limit int) (out []*models.WalletEntry, err error) {
	err = w.do(func(r *repos) error {
		var e error
		out, e = r.Wallet().ListEntries(ctx, userID, limit)
		return e
	})
	return out, err
}
