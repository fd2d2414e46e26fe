// Package memstore is an in-memory store.TxManager used by service and API tests.
// A transaction works on a deep copy of the state and swaps it in only when the
// callback returns nil, so rollbacks behave like the Postgres store.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type redemption struct {
	orderID uuid.UUID
}

type state struct {
	products    map[uuid.UUID]*models.Product
	coupons     map[uuid.UUID]*models.Coupon
	redemptions map[uuid.UUID]map[uuid.UUID]redemption
	carts       map[uuid.UUID]*models.Cart
	addresses   map[uuid.UUID]*models.AddressSnapshot
	orders      map[uuid.UUID]*models.Order
	gateway     map[string]*models.GatewayOrder
	refunds     []*models.Refund
	users       map[uuid.UUID]decimal.Decimal
	entries     []*models.WalletEntry
	processed   map[string]string
}

func newState() *state {
	return &state{
		products:    map[uuid.UUID]*models.Product{},
		coupons:     map[uuid.UUID]*models.Coupon{},
		redemptions: map[uuid.UUID]map[uuid.UUID]redemption{},
		carts:       map[uuid.UUID]*models.Cart{},
		addresses:   map[uuid.UUID]*models.AddressSnapshot{},
		orders:      map[uuid.UUID]*models.Order{},
		gateway:     map[string]*models.GatewayOrder{},
		users:       map[uuid.UUID]decimal.Decimal{},
		processed:   map[string]string{},
	}
}

func cloneProduct(p *models.Product) *models.Product {
	cp := *p
	cp.Sizes = make(map[string]int, len(p.Sizes))
	for k, v := range p.Sizes {
		cp.Sizes[k] = v
	}
	return &cp
}

func cloneCart(c *models.Cart) *models.Cart {
	cp := *c
	cp.Items = append([]models.CartItem(nil), c.Items...)
	return &cp
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	if o.CouponID != nil {
		id := *o.CouponID
		cp.CouponID = &id
	}
	cp.Items = make([]*models.OrderItem, len(o.Items))
	for i, it := range o.Items {
		item := *it
		item.StatusHistory = append([]models.StatusEntry(nil), it.StatusHistory...)
		cp.Items[i] = &item
	}
	return &cp
}

func (s *state) clone() *state {
	c := newState()
	for id, p := range s.products {
		c.products[id] = cloneProduct(p)
	}
	for id, cp := range s.coupons {
		v := *cp
		c.coupons[id] = &v
	}
	for id, users := range s.redemptions {
		m := make(map[uuid.UUID]redemption, len(users))
		for u, r := range users {
			m[u] = r
		}
		c.redemptions[id] = m
	}
	for id, cart := range s.carts {
		c.carts[id] = cloneCart(cart)
	}
	for id, a := range s.addresses {
		v := *a
		c.addresses[id] = &v
	}
	for id, o := range s.orders {
		c.orders[id] = cloneOrder(o)
	}
	for id, g := range s.gateway {
		v := *g
		c.gateway[id] = &v
	}
	for _, r := range s.refunds {
		v := *r
		c.refunds = append(c.refunds, &v)
	}
	for id, w := range s.users {
		c.users[id] = w
	}
	for _, e := range s.entries {
		v := *e
		c.entries = append(c.entries, &v)
	}
	for id, t := range s.processed {
		c.processed[id] = t
	}
	return c
}

// Store implements store.TxManager and store.EventLog in memory
type Store struct {
	mu    sync.Mutex
	state *state

	conflicts map[uuid.UUID]bool
	// orderSeq lives outside the state so rolled back transactions still burn numbers
	orderSeq int64
}

// New returns an empty store
func New() *Store {
	return &Store{state: newState(), conflicts: map[uuid.UUID]bool{}, orderSeq: 100000000}
}

// WithinTx serialises transactions; fn sees a private copy that is kept only on success
func (s *Store) WithinTx(ctx context.Context, fn func(r store.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&repos{st: work, s: s}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Repos returns repositories that apply each call directly
func (s *Store) Repos() store.Repos {
	return &autoRepos{s: s}
}

// ForceStockConflict makes every conditional decrement of productID fail
func (s *Store) ForceStockConflict(productID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[productID] = true
}

func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.processed[eventID]
	return ok, nil
}

func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.processed[eventID]; !ok {
		s.state.processed[eventID] = eventType
	}
	return nil
}

// Seeding and inspection helpers

func (s *Store) PutProduct(p *models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[p.ID] = cloneProduct(p)
}

func (s *Store) Product(id uuid.UUID) *models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[id]
	if !ok {
		return nil
	}
	return cloneProduct(p)
}

func (s *Store) PutCoupon(c *models.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *c
	s.state.coupons[c.ID] = &v
}

func (s *Store) Redeemed(couponID, userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.redemptions[couponID][userID]
	return ok
}

func (s *Store) PutCart(c *models.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.carts[c.UserID] = cloneCart(c)
}

func (s *Store) HasCart(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.carts[userID]
	return ok
}

func (s *Store) PutAddress(a *models.AddressSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *a
	s.state.addresses[a.DetailID] = &v
}

// PutUser creates the user row with an initial cached wallet value
func (s *Store) PutUser(userID uuid.UUID, wallet decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[userID] = wallet
}

// PutOrder stores an order as-is, for lifecycle tests that start mid-flow
func (s *Store) PutOrder(o *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.orders[o.ID] = cloneOrder(o)
}

func (s *Store) Order(id uuid.UUID) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok {
		return nil
	}
	return cloneOrder(o)
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

func (s *Store) Refunds(orderID uuid.UUID) []*models.Refund {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Refund
	for _, r := range s.state.refunds {
		if r.OrderID == orderID {
			v := *r
			out = append(out, &v)
		}
	}
	return out
}

func (s *Store) WalletEntries(userID uuid.UUID) []*models.WalletEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.WalletEntry
	for _, e := range s.state.entries {
		if e.UserID == userID {
			v := *e
			out = append(out, &v)
		}
	}
	return out
}

func (s *Store) CachedWallet(userID uuid.UUID) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.users[userID]
}

// autoRepos runs every call as its own locked unit against the live state
type autoRepos struct {
	s *Store
}

func (a *autoRepos) live() *repos {
	return &repos{st: a.s.state, s: a.s}
}

func (a *autoRepos) Products() store.ProductRepository  { return &autoProducts{a} }
func (a *autoRepos) Coupons() store.CouponRepository    { return &autoCoupons{a} }
func (a *autoRepos) Carts() store.CartRepository        { return &autoCarts{a} }
func (a *autoRepos) Addresses() store.AddressRepository { return &autoAddresses{a} }
func (a *autoRepos) Orders() store.OrderRepository      { return &autoOrders{a} }
func (a *autoRepos) GatewayOrders() store.GatewayOrderRepository {
	return &autoGatewayOrders{a}
}
func (a *autoRepos) Refunds() store.RefundRepository { return &autoRefunds{a} }
func (a *autoRepos) Wallet() store.WalletRepository  { return &autoWallet{a} }

// repos binds repositories to one state snapshot
type repos struct {
	st *state
	s  *Store
}

func (r *repos) Products() store.ProductRepository  { return &products{r} }
func (r *repos) Coupons() store.CouponRepository    { return &coupons{r} }
func (r *repos) Carts() store.CartRepository        { return &carts{r} }
func (r *repos) Addresses() store.AddressRepository { return &addresses{r} }
func (r *repos) Orders() store.OrderRepository      { return &orders{r} }
func (r *repos) GatewayOrders() store.GatewayOrderRepository {
	return &gatewayOrders{r}
}
func (r *repos) Refunds() store.RefundRepository { return &refunds{r} }
func (r *repos) Wallet() store.WalletRepository  { return &wallet{r} }

type products struct{ *repos }

func (p *products) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	out := make(map[uuid.UUID]*models.Product, len(ids))
	for _, id := range ids {
		if prod, ok := p.st.products[id]; ok {
			out[id] = cloneProduct(prod)
		}
	}
	return out, nil
}

func (p *products) DecrementStockIfEnough(ctx context.Context, productID uuid.UUID, size string, qty int) (bool, error) {
	if p.s.conflicts[productID] {
		return false, nil
	}
	prod, ok := p.st.products[productID]
	if !ok {
		return false, nil
	}
	stock, ok := prod.Sizes[size]
	if !ok || stock < qty {
		return false, nil
	}
	prod.Sizes[size] = stock - qty
	return true, nil
}

func (p *products) IncrementStock(ctx context.Context, productID uuid.UUID, size string, qty int) error {
	prod, ok := p.st.products[productID]
	if !ok {
		return nil
	}
	prod.Sizes[size] += qty
	return nil
}

func (p *products) SetStatus(ctx context.Context, productID uuid.UUID, status models.ProductStatus) error {
	if prod, ok := p.st.products[productID]; ok {
		prod.Status = status
	}
	return nil
}

type coupons struct{ *repos }

func (c *coupons) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	for _, cp := range c.st.coupons {
		if strings.EqualFold(cp.Code, code) {
			v := *cp
			return &v, nil
		}
	}
	return nil, store.ErrNotFound
}

func (c *coupons) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	cp, ok := c.st.coupons[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	v := *cp
	return &v, nil
}

func (c *coupons) HasRedeemed(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	_, ok := c.st.redemptions[couponID][userID]
	return ok, nil
}

func (c *coupons) RecordRedemption(ctx context.Context, couponID, userID, orderID uuid.UUID) error {
	users, ok := c.st.redemptions[couponID]
	if !ok {
		users = map[uuid.UUID]redemption{}
		c.st.redemptions[couponID] = users
	}
	if _, done := users[userID]; !done {
		users[userID] = redemption{orderID: orderID}
	}
	return nil
}

func (c *coupons) ListAvailable(ctx context.Context, userID uuid.UUID, now time.Time) ([]*models.Coupon, error) {
	var out []*models.Coupon
	for _, cp := range c.st.coupons {
		if !cp.ActiveAt(now) {
			continue
		}
		if _, used := c.st.redemptions[cp.ID][userID]; used && cp.UsageType == models.CouponSingleUse {
			continue
		}
		v := *cp
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate.Before(out[j].ExpiryDate) })
	return out, nil
}

type carts struct{ *repos }

func (c *carts) Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, ok := c.st.carts[userID]
	if !ok {
		return &models.Cart{UserID: userID}, nil
	}
	return cloneCart(cart), nil
}

func (c *carts) Delete(ctx context.Context, userID uuid.UUID) error {
	delete(c.st.carts, userID)
	return nil
}

type addresses struct{ *repos }

func (a *addresses) Get(ctx context.Context, userID, detailID uuid.UUID) (*models.AddressSnapshot, error) {
	addr, ok := a.st.addresses[detailID]
	if !ok || addr.UserID != userID {
		return nil, store.ErrNotFound
	}
	v := *addr
	return &v, nil
}

type orders struct{ *repos }

func (o *orders) NextOrderNumber(ctx context.Context) (int64, error) {
	o.s.orderSeq++
	return o.s.orderSeq, nil
}

func paidByGateway(o *models.Order) bool {
	return o.PaymentMethod == models.PaymentGateway && o.PaymentStatus == models.PaymentStatusPaid
}

// Create mirrors the partial unique indexes on paid gateway orders
func (o *orders) Create(ctx context.Context, order *models.Order) error {
	if paidByGateway(order) {
		for _, cur := range o.st.orders {
			if !paidByGateway(cur) {
				continue
			}
			if cur.PaymentID == order.PaymentID || cur.GatewayOrderID == order.GatewayOrderID {
				return store.ErrPaymentAlreadyUsed
			}
		}
	}
	o.st.orders[order.ID] = cloneOrder(order)
	return nil
}

func (o *orders) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := o.st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (o *orders) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return o.GetByID(ctx, id)
}

func (o *orders) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	var out []*models.Order
	for _, order := range o.st.orders {
		if order.UserID == userID {
			out = append(out, cloneOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (o *orders) Update(ctx context.Context, order *models.Order) error {
	cur, ok := o.st.orders[order.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.PaymentStatus = order.PaymentStatus
	cur.PaymentVerified = order.PaymentVerified
	cur.PaymentID = order.PaymentID
	cur.RefundedAmount = order.RefundedAmount
	cur.Status = order.Status
	cur.CancelReason = order.CancelReason
	cur.FailureReason = order.FailureReason
	cur.UpdatedAt = order.UpdatedAt
	return nil
}

func (o *orders) UpdateItem(ctx context.Context, item *models.OrderItem, entry models.StatusEntry) error {
	cur, ok := o.st.orders[item.OrderID]
	if !ok {
		return store.ErrNotFound
	}
	stored := cur.Item(item.ID)
	if stored == nil {
		return store.ErrNotFound
	}
	stored.CurrentStatus = item.CurrentStatus
	stored.CancelReason = item.CancelReason
	stored.StatusHistory = append(stored.StatusHistory, entry)
	return nil
}

type gatewayOrders struct{ *repos }

func (g *gatewayOrders) Create(ctx context.Context, order *models.GatewayOrder) error {
	v := *order
	g.st.gateway[order.ProviderOrderID] = &v
	return nil
}

func (g *gatewayOrders) Get(ctx context.Context, providerOrderID string) (*models.GatewayOrder, error) {
	order, ok := g.st.gateway[providerOrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	v := *order
	return &v, nil
}

type refunds struct{ *repos }

func (r *refunds) Create(ctx context.Context, refund *models.Refund) error {
	v := *refund
	r.st.refunds = append(r.st.refunds, &v)
	return nil
}

func (r *refunds) ListByOrder(ctx context.Context, orderID uuid.UUID, status models.RefundStatus) ([]*models.Refund, error) {
	var out []*models.Refund
	for _, ref := range r.st.refunds {
		if ref.OrderID == orderID && ref.Status == status {
			v := *ref
			out = append(out, &v)
		}
	}
	return out, nil
}

func (r *refunds) UpdateStatus(ctx context.Context, ids []uuid.UUID, status models.RefundStatus) error {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, ref := range r.st.refunds {
		if want[ref.ID] {
			ref.Status = status
		}
	}
	return nil
}

type wallet struct{ *repos }

func (w *wallet) LockUser(ctx context.Context, userID uuid.UUID) error {
	if _, ok := w.st.users[userID]; !ok {
		return store.ErrNotFound
	}
	return nil
}

func (w *wallet) Sums(ctx context.Context, userID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	credits, debits := decimal.Zero, decimal.Zero
	for _, e := range w.st.entries {
		if e.UserID != userID {
			continue
		}
		if e.EntryType == models.EntryDebit {
			debits = debits.Add(e.Amount)
		} else {
			credits = credits.Add(e.Amount)
		}
	}
	return credits, debits, nil
}

func (w *wallet) Insert(ctx context.Context, entry *models.WalletEntry) error {
	v := *entry
	w.st.entries = append(w.st.entries, &v)
	return nil
}

func (w *wallet) AdjustCache(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error {
	w.st.users[userID] = w.st.users[userID].Add(delta)
	return nil
}

func (w *wallet) SetCache(ctx context.Context, userID uuid.UUID, value decimal.Decimal) error {
	w.st.users[userID] = value
	return nil
}

func (w *wallet) CachedBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	v, ok := w.st.users[userID]
	if !ok {
		return decimal.Zero, store.ErrNotFound
	}
	return v, nil
}

func (w *wallet) ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*models.WalletEntry, error) {
	var out []*models.WalletEntry
	for i := len(w.st.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if e := w.st.entries[i]; e.UserID == userID {
			v := *e
			out = append(out, &v)
		}
	}
	return out, nil
}
