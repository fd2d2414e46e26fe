package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront-orders/internal/gateway"
	"storefront-orders/internal/models"
	"storefront-orders/internal/store/memstore"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const testGatewaySecret = "test_secret"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// recordingPublisher keeps every published event in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *recordingPublisher) add(e interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) PublishOrderPlaced(ctx context.Context, e *models.OrderPlacedEvent) error {
	return p.add(e)
}

func (p *recordingPublisher) PublishOrderPaymentFailed(ctx context.Context, e *models.OrderPaymentFailedEvent) error {
	return p.add(e)
}

func (p *recordingPublisher) PublishOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	return p.add(e)
}

func (p *recordingPublisher) PublishOrderReturn(ctx context.Context, e *models.OrderReturnEvent) error {
	return p.add(e)
}

func (p *recordingPublisher) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	return p.add(e)
}

func (p *recordingPublisher) PublishWalletEntryRecorded(ctx context.Context, e *models.WalletEntryRecordedEvent) error {
	return p.add(e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		switch ev := e.(type) {
		case *models.OrderPlacedEvent:
			out = append(out, ev.EventType)
		case *models.OrderPaymentFailedEvent:
			out = append(out, ev.EventType)
		case *models.OrderCancelledEvent:
			out = append(out, ev.EventType)
		case *models.OrderReturnEvent:
			out = append(out, ev.EventType)
		case *models.OrderStatusChangedEvent:
			out = append(out, ev.EventType)
		case *models.WalletEntryRecordedEvent:
			out = append(out, ev.EventType)
		}
	}
	return out
}

// memorySession stands in for the Redis coupon slot and idempotency keys
type memorySession struct {
	mu      sync.Mutex
	coupons map[uuid.UUID]string
	keys    map[string]string
	locks   map[string]string
}

func newMemorySession() *memorySession {
	return &memorySession{
		coupons: map[uuid.UUID]string{},
		keys:    map[string]string{},
		locks:   map[string]string{},
	}
}

func (s *memorySession) SetAppliedCoupon(ctx context.Context, userID uuid.UUID, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[userID] = code
	return nil
}

func (s *memorySession) AppliedCoupon(ctx context.Context, userID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[userID], nil
}

func (s *memorySession) ClearAppliedCoupon(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.coupons, userID)
	return nil
}

func (s *memorySession) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = value.(string)
	return nil
}

func (s *memorySession) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.keys[key]
	return v, ok, nil
}

func (s *memorySession) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locks[key]; held {
		return "", nil
	}
	token := uuid.NewString()
	s.locks[key] = token
	return token, nil
}

func (s *memorySession) ReleaseLock(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[key] == token {
		delete(s.locks, key)
	}
	return nil
}

// world is a checkout-ready store with one user, one address and the services on top
type world struct {
	store     *memstore.Store
	pub       *recordingPublisher
	session   *memorySession
	ledger    *WalletLedger
	checkout  *CheckoutOrchestrator
	lifecycle *OrderLifecycleManager
	wallet    *WalletService
	userID    uuid.UUID
	address   models.AddressRef
}

func newWorld(t *testing.T) *world {
	t.Helper()

	st := memstore.New()
	pub := &recordingPublisher{}
	session := newMemorySession()
	ledger := NewWalletLedger()
	inventory := NewInventoryAdjuster()
	gw := gateway.NewClient("http://gateway.invalid", "key", testGatewaySecret, "INR", time.Second)

	w := &world{
		store:   st,
		pub:     pub,
		session: session,
		ledger:  ledger,
		userID:  uuid.New(),
		address: models.AddressRef{DocID: uuid.New(), DetailID: uuid.New()},
	}
	st.PutUser(w.userID, decimal.Zero)
	st.PutAddress(&models.AddressSnapshot{
		AddressRef: w.address,
		UserID:     w.userID,
		Name:       "Asha",
		Line1:      "12 MG Road",
		City:       "Kochi",
		State:      "Kerala",
		Pincode:    "682001",
	})

	w.checkout = NewCheckoutOrchestrator(CheckoutDeps{
		Tx:        st,
		Coupons:   NewCouponValidator(),
		Inventory: inventory,
		Settlement: NewSettlement(
			&CODSettler{Limit: dec("1000")},
			&WalletSettler{Ledger: ledger},
			&GatewaySettler{Verifier: gw},
		),
		Pricing:     Pricing{DeliveryCharge: dec("41"), TaxRate: dec("0.05")},
		Session:     session,
		Locker:      session,
		Idempotency: session,
		Publisher:   pub,
		Gateway:     gw,
		Options: CheckoutOptions{
			CouponSessionTTL: time.Minute,
			LockTTL:          time.Second,
			IdempotencyTTL:   time.Minute,
		},
	})
	w.lifecycle = NewOrderLifecycleManager(st, inventory, ledger, pub)
	w.wallet = NewWalletService(st, st, ledger)
	return w
}

// product stocks a product with the given sizes
func (w *world) product(sizes map[string]int) uuid.UUID {
	id := uuid.New()
	w.store.PutProduct(&models.Product{
		ID:     id,
		Name:   "Runner " + id.String()[:4],
		Status: models.ProductStatusAvailable,
		Sizes:  sizes,
	})
	return id
}

func (w *world) cart(items ...models.CartItem) {
	w.store.PutCart(&models.Cart{UserID: w.userID, Items: items})
}

func line(productID uuid.UUID, size string, qty int, price string) models.CartItem {
	return models.CartItem{
		ProductID: productID,
		Size:      size,
		Quantity:  qty,
		Price:     dec(price),
		BasePrice: dec(price),
	}
}

// topUp credits the wallet through the ledger
func (w *world) topUp(t *testing.T, amount string) {
	t.Helper()
	_, err := w.ledger.Credit(context.Background(), w.store.Repos().Wallet(), w.userID, dec(amount), models.WalletAddMoney, Linkage{})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
}

func (w *world) placeOrder(method models.PaymentMethod) *PlaceOrderRequest {
	return &PlaceOrderRequest{
		UserID:        w.userID,
		AddressID:     w.address.DetailID,
		PaymentMethod: method,
	}
}

// openGatewayOrder records the provider order "order_abc" that signedPayload pays
func openGatewayOrder(t *testing.T, st *memstore.Store, userID uuid.UUID, total string) {
	t.Helper()
	err := st.Repos().GatewayOrders().Create(context.Background(), &models.GatewayOrder{
		ProviderOrderID: "order_abc",
		UserID:          userID,
		Amount:          dec(total),
		AmountMinor:     ToMinorUnits(dec(total)),
		Receipt:         "rcpt_test",
		CreatedAt:       time.Now(),
	})
	if err != nil {
		t.Fatalf("open gateway order: %v", err)
	}
}

// signedPayload returns gateway fields carrying a valid signature
func signedPayload() *GatewayPayload {
	return &GatewayPayload{
		ProviderOrderID: "order_abc",
		PaymentID:       "pay_123",
		Signature:       gateway.Sign(testGatewaySecret, "order_abc", "pay_123"),
	}
}
