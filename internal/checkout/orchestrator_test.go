package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-checkout-engine.git/internal/cart"
	"github.com/ariefcatur/go-checkout-engine.git/internal/cartlock"
	"github.com/ariefcatur/go-checkout-engine.git/internal/events"
	"github.com/ariefcatur/go-checkout-engine.git/internal/ledger"
	"github.com/ariefcatur/go-checkout-engine.git/internal/orders"
	"github.com/ariefcatur/go-checkout-engine.git/internal/payment"
	"github.com/ariefcatur/go-checkout-engine.git/internal/pricing"
)

// ---- fakes (gaya mock repository di package service) ----

type memCarts struct {
	mu    sync.Mutex
	carts map[string]*cart.Session
}

func (m *memCarts) Get(_ context.Context, id string) (*cart.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	cp := *s
	cp.Items = append([]cart.Item(nil), s.Items...)
	return &cp, nil
}

func (m *memCarts) SetStatus(_ context.Context, id string, from, to cart.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.carts[id]
	if !ok || s.Status != from {
		return cart.ErrNotFound
	}
	s.Status = to
	return nil
}

type memOrders struct {
	mu         sync.Mutex
	byCart     map[string]*orders.Order
	created    int
	failCreate bool
}

func (m *memOrders) Create(_ context.Context, o *orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return errors.New("orders store down")
	}
	if _, dup := m.byCart[o.CartID]; dup {
		return errors.New("duplicate order for cart")
	}
	m.byCart[o.CartID] = o
	m.created++
	return nil
}

func (m *memOrders) ByCartID(_ context.Context, cartID string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byCart[cartID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) ByID(_ context.Context, id string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byCart {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, orders.ErrNotFound
}

func (m *memOrders) History(_ context.Context, id string) ([]orders.StatusEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byCart {
		if o.ID == id {
			return []orders.StatusEntry{{Status: "PLACED", RecordedAt: o.CreatedAt}}, nil
		}
	}
	return nil, orders.ErrNotFound
}

type memTxns struct {
	mu    sync.Mutex
	txns  map[string]*payment.Transaction
	saves int
}

func (m *memTxns) Save(_ context.Context, t *payment.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.txns == nil {
		m.txns = map[string]*payment.Transaction{}
	}
	m.txns[t.ID] = t
	m.saves++
	return nil
}

func (m *memTxns) Load(_ context.Context, id string) (*payment.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return t, nil
}

type fakeGateway struct {
	declineAuth    bool
	declineCapture bool
	declineRefund  bool
	authDelay      time.Duration
	refunds        atomic.Int32
}

func (g *fakeGateway) Authorize(ctx context.Context, _ int64, _, _ string) (payment.GatewayResponse, error) {
	if g.authDelay > 0 {
		time.Sleep(g.authDelay)
	}
	if err := ctx.Err(); err != nil {
		return payment.GatewayResponse{}, err
	}
	if g.declineAuth {
		return payment.GatewayResponse{Success: false, Message: "card declined"}, nil
	}
	return payment.GatewayResponse{Success: true, TransactionID: "gw-auth"}, nil
}

func (g *fakeGateway) Capture(ctx context.Context, ref string) (payment.GatewayResponse, error) {
	if err := ctx.Err(); err != nil {
		return payment.GatewayResponse{}, err
	}
	if g.declineCapture {
		return payment.GatewayResponse{Success: false, Message: "capture refused"}, nil
	}
	return payment.GatewayResponse{Success: true, TransactionID: ref}, nil
}

func (g *fakeGateway) Refund(_ context.Context, ref string, _ int64) (payment.GatewayResponse, error) {
	g.refunds.Add(1)
	if g.declineRefund {
		return payment.GatewayResponse{Success: false, Message: "refund rejected"}, nil
	}
	return payment.GatewayResponse{Success: true, TransactionID: ref}, nil
}

type fakeCatalog map[string]int64

func (f fakeCatalog) CurrentPriceCents(_ context.Context, sku string) (int64, error) {
	p, ok := f[sku]
	if !ok {
		return 0, fmt.Errorf("catalog: unknown sku %s", sku)
	}
	return p, nil
}

type fixture struct {
	orch   *Orchestrator
	carts  *memCarts
	orders *memOrders
	txns   *memTxns
	ledger *ledger.Ledger
	gw     *fakeGateway
	rec    *events.Recorder
}

func newFixture(t *testing.T, lockTimeout time.Duration) *fixture {
	t.Helper()
	rec := &events.Recorder{}
	led := ledger.New(nil, rec)
	led.Load([]ledger.Batch{
		{SKU: "WIDGET", BatchID: "w1", OnHand: 10, UnitCostCents: 900, ReceivedAt: time.Now().Add(-time.Hour)},
		{SKU: "GADGET", BatchID: "g1", OnHand: 4, UnitCostCents: 200, ReceivedAt: time.Now().Add(-time.Hour)},
	})
	carts := &memCarts{carts: map[string]*cart.Session{
		"cart-1": {
			ID: "cart-1", CustomerID: "cust-1", Status: cart.StatusActive,
			ExpiresAt: time.Now().Add(time.Hour),
			Items: []cart.Item{
				// Snapshot harga client sengaja ngaco.
				{SKU: "WIDGET", Qty: 2, UnitPriceSnapshotCents: 100},
				{SKU: "GADGET", Qty: 1, UnitPriceSnapshotCents: 1},
			},
		},
	}}
	ords := &memOrders{byCart: map[string]*orders.Order{}}
	txns := &memTxns{txns: map[string]*payment.Transaction{}}
	gw := &fakeGateway{}
	orch := &Orchestrator{
		Locks:  cartlock.NewManager(time.Minute, rec),
		Ledger: led,
		Pricing: &pricing.Service{
			Catalog:           fakeCatalog{"WIDGET": 1999, "GADGET": 500},
			Currency:          "CAD",
			TaxBPS:            1300,
			ShippingFlatCents: 999,
		},
		Gateway:     gw,
		Carts:       carts,
		Orders:      ords,
		Payments:    txns,
		Emitter:     rec,
		LockTimeout: lockTimeout,
	}
	return &fixture{orch: orch, carts: carts, orders: ords, txns: txns, ledger: led, gw: gw, rec: rec}
}

// capturedTxn: transaksi siap-refund di store fixture.
func capturedTxn(t *testing.T, f *fixture, amountCents int64) *payment.Transaction {
	t.Helper()
	txn, _ := payment.NewTransaction("order-1", amountCents, "CAD")
	_, err := txn.Authorize("auth-1", payment.GatewayResponse{Success: true, TransactionID: "gw-1"})
	require.NoError(t, err)
	_, err = txn.Capture(payment.GatewayResponse{Success: true})
	require.NoError(t, err)
	require.NoError(t, f.txns.Save(context.Background(), txn))
	return txn
}

func TestCheckoutHappyPath(t *testing.T) {
	f := newFixture(t, time.Second)

	ord, err := f.orch.Checkout(context.Background(), "cart-1", ClientPayload{PaymentMethod: "card"})
	require.NoError(t, err)
	require.NotNil(t, ord)

	// Total dari katalog server, bukan snapshot client:
	// 2*1999 + 1*500 = 4498; pajak 13% = 585; ongkir 999.
	assert.Equal(t, int64(4498), ord.Totals.SubtotalCents)
	assert.Equal(t, int64(585), ord.Totals.TaxCents)
	assert.Equal(t, int64(6082), ord.Totals.TotalCents)
	assert.NotEmpty(t, ord.TransactionID)

	// Stok turun permanen, cart terkonversi.
	assert.Equal(t, int64(8), f.ledger.OnHand("WIDGET"))
	assert.Equal(t, int64(3), f.ledger.OnHand("GADGET"))
	assert.Equal(t, cart.StatusConverted, f.carts.carts["cart-1"].Status)

	types := f.rec.Types()
	assert.Contains(t, types, events.EventPaymentCaptured)
	assert.Contains(t, types, events.EventReservationCommitted)
	assert.Contains(t, types, events.EventCheckoutCompleted)
}

func TestCheckoutReplayReturnsSameOrder(t *testing.T) {
	f := newFixture(t, time.Second)

	first, err := f.orch.Checkout(context.Background(), "cart-1", ClientPayload{PaymentMethod: "card"})
	require.NoError(t, err)

	again, err := f.orch.Checkout(context.Background(), "cart-1", ClientPayload{PaymentMethod: "card"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, f.orders.created)
	// Replay tidak boleh nyentuh stok lagi.
	assert.Equal(t, int64(8), f.ledger.OnHand("WIDGET"))
}

func TestConcurrentCheckoutExactlyOneWinner(t *testing.T) {
	f := newFixture(t, 0) // try-lock: yang kalah langsung CART_LOCKED
	f.gw.authDelay = 50 * time.Millisecond

	const n = 4
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.orch.Checkout(context.Background(), "cart-1", ClientPayload{PaymentMethod: "card"})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	winners, locked := 0, 0
	for err := range errs {
		if err == nil {
			winners++
			continue
		}
		var cerr *Error
		require.ErrorAs(t, err, &cerr)
		require.Equal(t, CodeCartLocked, cerr.Code)
		require.True(t, cerr.Retryable)
		locked++
	}

	// Properti inti: order dibuat tepat sekali, stok turun tepat sekali.
	assert.Equal(t, 1, f.orders.created)
	assert.Equal(t, int64(8), f.ledger.OnHand("WIDGET"))
	assert.GreaterOrEqual(t, winners, 1)
	assert.Equal(t, n, winners+locked)
}

func TestInsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t, time.Second)
	f.carts.carts["cart-1"].Items = []cart.Item{
		{SKU: "WIDGET", Qty: 2},
		{SKU: "GADGET", Qty: 99}, // stok cuma 4
	}

	_, err := f.orch.Checkout(context.Background(), "cart-1", ClientPayload{PaymentMethod: "card"})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodeInsufficientStock, cerr.Code)
	assert.Equal(t, "GADGET", cerr.SKU)

	// Reservation WIDGET yang sempat diambil balik semua.
	assert.Equal(t, int64(10), f.ledger.Available("WIDGET"))
	assert.Equal(t, int64(4), f.ledger.Available("GADGET"))
	assert.Zero(t, f.orders.created)
	assert.Equal(t, cart.StatusActive, f.carts.carts["cart-1"].Status)

	// Lock auto-release: langsung bisa diambil lagi.
	h, err := f.orch.Locks.Acquire(context.Background(), "cart-1", 0)
	require.NoError(t, err)
	f.orch.Locks.Release(h)
}

func TestPaymentDeclineRollsBackReservations(t *testing.T) {
	f := newFixture(t, time.Second)
	f.gw.declineAuth = true

	_, err := f.orch.Checkout(context.Background(), "cart-1", ClientPayload{PaymentMethod: "card"})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodePaymentFailed, cerr.Code)
	assert.Equal(t, "card declined", cerr.Message)

	assert.Equal(t, int64(10), f.ledger.Available("WIDGET"))
	assert.Equal(t, int64(10), f.ledger.OnHand("WIDGET"))
	assert.Zero(t, f.orders.created)
	assert.Equal(t, cart.StatusActive, f.carts.carts["cart-1"].Status)

	types := f.rec.Types()
	assert.Contains(t, types, events.EventPaymentFailed)
	assert.Contains(t, types, events.EventCheckoutFailed)
	assert.NotContains(t, types, events.EventReservationCommitted)
}

func TestCaptureRefusalRollsBack(t *testing.T) {
	f := newFixture(t, time.Second)
	f.gw.declineCapture = true

	_, err := f.orch.Checkout(context.Background(), "cart-1", ClientPayload{PaymentMethod: "card"})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodePaymentFailed, cerr.Code)
	assert.Equal(t, int64(10), f.ledger.Available("WIDGET"))
	assert.Zero(t, f.orders.created)
}

func TestSettleFailureRefundsPayment(t *testing.T) {
	f := newFixture(t, time.Second)
	f.orders.failCreate = true

	_, err := f.orch.Checkout(context.Background(), "cart-1", ClientPayload{PaymentMethod: "card"})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodeInternal, cerr.Code)

	// Duit sudah ke-capture -> wajib dikembalikan, stok dilepas.
	assert.Equal(t, int32(1), f.gw.refunds.Load())
	assert.Equal(t, int64(10), f.ledger.Available("WIDGET"))
	assert.Equal(t, int64(10), f.ledger.OnHand("WIDGET"))

	types := f.rec.Types()
	assert.Contains(t, types, events.EventRefundCompleted)
}

func TestCancelledRequestStillRollsBack(t *testing.T) {
	f := newFixture(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // client disconnect sebelum gateway dipanggil

	_, err := f.orch.Checkout(ctx, "cart-1", ClientPayload{PaymentMethod: "card"})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodePaymentFailed, cerr.Code)

	// Kompensasi tetap tuntas walau ctx sudah mati.
	assert.Equal(t, int64(10), f.ledger.Available("WIDGET"))
	assert.Zero(t, f.orders.created)
}

func TestCartExpired(t *testing.T) {
	f := newFixture(t, time.Second)
	f.carts.carts["cart-1"].ExpiresAt = time.Now().Add(-time.Minute)

	_, err := f.orch.Checkout(context.Background(), "cart-1", ClientPayload{PaymentMethod: "card"})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodeCartExpired, cerr.Code)
	assert.False(t, cerr.Retryable)
}

func TestCartNotFound(t *testing.T) {
	f := newFixture(t, time.Second)
	_, err := f.orch.Checkout(context.Background(), "ghost", ClientPayload{})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodeCartExpired, cerr.Code)
}

func TestRefundPartialThenFull(t *testing.T) {
	f := newFixture(t, time.Second)
	txn := capturedTxn(t, f, 6082)

	got, err := f.orch.Refund(context.Background(), txn.ID, 2000, "damaged item")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPartiallyRefunded, got.Status)
	assert.Equal(t, int64(2000), got.RefundedCents)

	got, err = f.orch.Refund(context.Background(), txn.ID, 4082, "order cancelled")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, got.Status)
	assert.Equal(t, int64(6082), got.RefundedCents)

	types := f.rec.Types()
	assert.Contains(t, types, events.EventRefundIssued)
	assert.Contains(t, types, events.EventRefundCompleted)
}

func TestRefundOverRemainingRejected(t *testing.T) {
	f := newFixture(t, time.Second)
	txn := capturedTxn(t, f, 1000)

	_, err := f.orch.Refund(context.Background(), txn.ID, 1001, "")
	var brv *payment.BusinessRuleViolation
	require.ErrorAs(t, err, &brv)
	assert.Equal(t, payment.StatusCaptured, txn.Status)
	assert.Zero(t, f.gw.refunds.Load())
}

func TestRefundUnknownTransaction(t *testing.T) {
	f := newFixture(t, time.Second)
	_, err := f.orch.Refund(context.Background(), "nope", 100, "")
	require.ErrorIs(t, err, payment.ErrNotFound)
}

func TestRefundGatewayDeclineRecordsFailure(t *testing.T) {
	f := newFixture(t, time.Second)
	txn := capturedTxn(t, f, 1000)
	f.gw.declineRefund = true

	got, err := f.orch.Refund(context.Background(), txn.ID, 500, "")
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodePaymentFailed, cerr.Code)

	// Transaksi tidak bergeser, tapi refund FAILED masuk log & dipersist.
	require.NotNil(t, got)
	assert.Equal(t, payment.StatusCaptured, got.Status)
	assert.Zero(t, got.RefundedCents)
	refs := got.Refunds()
	require.Len(t, refs, 1)
	assert.Equal(t, payment.RefundFailed, refs[0].Status)
	assert.Contains(t, f.rec.Types(), events.EventRefundFailed)
}

func TestEmptyCartRejected(t *testing.T) {
	f := newFixture(t, time.Second)
	f.carts.carts["cart-1"].Items = nil
	_, err := f.orch.Checkout(context.Background(), "cart-1", ClientPayload{})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodeCartExpired, cerr.Code)
}
