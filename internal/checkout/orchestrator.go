// Package checkout menjahit lock -> reserve -> price -> pay -> commit
// jadi satu operasi logis all-or-nothing per request. Kompensasi
// (rollback reservation, release lock) cuma terjadi di sini; komponen
// bawah hanya melapor gagal, tidak pernah recover sendiri.
package checkout

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-checkout-engine.git/internal/cart"
	"github.com/ariefcatur/go-checkout-engine.git/internal/cartlock"
	"github.com/ariefcatur/go-checkout-engine.git/internal/events"
	"github.com/ariefcatur/go-checkout-engine.git/internal/ledger"
	"github.com/ariefcatur/go-checkout-engine.git/internal/orders"
	"github.com/ariefcatur/go-checkout-engine.git/internal/payment"
	"github.com/ariefcatur/go-checkout-engine.git/internal/pricing"
)

// ClientPayload datang dari presentation layer. Harga di dalamnya murni
// klaim client dan TIDAK pernah dipakai settlement.
type ClientPayload struct {
	RequestID     string       `json:"request_id,omitempty"`
	PaymentMethod string       `json:"payment_method"`
	Items         []ClientItem `json:"items,omitempty"`
}

type ClientItem struct {
	SKU            string `json:"sku"`
	Qty            int64  `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"` // diabaikan
}

type TxnStore interface {
	Save(ctx context.Context, t *payment.Transaction) error
	Load(ctx context.Context, id string) (*payment.Transaction, error)
}

type Orchestrator struct {
	Locks    *cartlock.Manager
	Ledger   *ledger.Ledger
	Pricing  *pricing.Service
	Gateway  payment.Gateway
	Carts    cart.Store
	Orders   orders.Store
	Payments TxnStore // boleh nil di test

	Emitter     events.Emitter
	LockTimeout time.Duration
}

// Checkout: satu entry point. Step 3 ke bawah satu unit logis: gagal di
// mana pun setelah reserve -> semua yang sudah diambil dilepas lagi.
func (o *Orchestrator) Checkout(ctx context.Context, cartID string, payload ClientPayload) (*orders.Order, error) {
	// 1) Lock per cart, FIFO, bounded wait.
	h, err := o.Locks.Acquire(ctx, cartID, o.LockTimeout)
	if err != nil {
		return nil, o.failed(cartID, errCartLocked(err))
	}
	// Release idempotent, aman di semua exit path.
	defer o.Locks.Release(h)

	// 2) Re-load cart di bawah lock; harus ACTIVE.
	sess, err := o.Carts.Get(ctx, cartID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, o.failed(cartID, errCartExpired("cart not found"))
		}
		return nil, o.failed(cartID, errInternal(err))
	}
	switch {
	case sess.Status == cart.StatusConverted:
		// Replay (retry client / request_id sama): order sudah ada.
		ord, err := o.Orders.ByCartID(ctx, cartID)
		if err != nil {
			return nil, o.failed(cartID, errInternal(err))
		}
		return ord, nil
	case sess.Status != cart.StatusActive, sess.Expired(time.Now()):
		return nil, o.failed(cartID, errCartExpired(""))
	case len(sess.Items) == 0:
		return nil, o.failed(cartID, errCartExpired("cart is empty"))
	}

	// Kompensasi & settle wajib jalan sampai selesai walau client
	// disconnect di tengah jalan.
	rctx := context.WithoutCancel(ctx)

	// 3) Reserve semua item, alokasi FIFO per batch. Satu gagal -> lepas
	// semua yang sudah diambil (urutan kebalikan).
	var taken []*ledger.Reservation
	rollback := func() {
		for i := len(taken) - 1; i >= 0; i-- {
			o.Ledger.Release(taken[i])
		}
	}
	for _, it := range sess.Items {
		res, err := o.Ledger.Reserve(it.SKU, it.Qty)
		if err != nil {
			rollback()
			var ise *ledger.InsufficientStockError
			if errors.As(err, &ise) {
				return nil, o.failed(cartID, errInsufficientStock(ise.SKU, err))
			}
			return nil, o.failed(cartID, errInternal(err))
		}
		taken = append(taken, res)
	}

	// 4) Harga otoritatif server; payload.Items tidak dilirik sama sekali.
	totals, err := o.Pricing.Price(ctx, sess)
	if err != nil {
		rollback()
		return nil, o.failed(cartID, errInternal(err))
	}

	// 5) Payment: authorize -> capture lewat gateway port.
	orderID := uuid.NewString()
	txn, ev := payment.NewTransaction(orderID, totals.TotalCents, totals.Currency)
	o.Emitter.Emit(ev)

	paymentFail := func(msg string, cause error) error {
		if fev, ferr := txn.Fail(msg); ferr == nil {
			o.Emitter.Emit(fev)
		}
		rollback()
		o.saveTxn(rctx, txn)
		return o.failed(cartID, errPaymentFailed(msg, cause))
	}

	auth, err := o.Gateway.Authorize(ctx, totals.TotalCents, totals.Currency, payload.PaymentMethod)
	if err != nil {
		return nil, paymentFail("gateway unavailable", err)
	}
	if !auth.Success {
		return nil, paymentFail(auth.Message, nil)
	}
	aev, err := txn.Authorize(auth.TransactionID, auth)
	if err != nil {
		return nil, paymentFail(err.Error(), err)
	}
	o.Emitter.Emit(aev)

	capres, err := o.Gateway.Capture(ctx, txn.GatewayRef)
	if err != nil {
		return nil, paymentFail("gateway unavailable", err)
	}
	if !capres.Success {
		return nil, paymentFail(capres.Message, nil)
	}
	cev, err := txn.Capture(capres)
	if err != nil {
		return nil, paymentFail(err.Error(), err)
	}
	o.Emitter.Emit(cev)

	// 6) Settle: order dibuat HANYA setelah CAPTURED. Kalau persist atau
	// konversi cart gagal, duit dikembalikan (refund penuh) dan semua
	// reservation dilepas -- tidak boleh ada decrement yatim.
	ord := &orders.Order{
		ID:            orderID,
		CartID:        cartID,
		CustomerID:    sess.CustomerID,
		Totals:        totals,
		TransactionID: txn.ID,
	}
	if err := o.Orders.Create(rctx, ord); err != nil {
		return nil, o.refundAndFail(rctx, cartID, txn, rollback, err)
	}
	if err := o.Carts.SetStatus(rctx, cartID, cart.StatusActive, cart.StatusConverted); err != nil {
		return nil, o.refundAndFail(rctx, cartID, txn, rollback, err)
	}

	// Titik tidak bisa mundur: commit permanen, on_hand turun beneran.
	for _, res := range taken {
		if err := o.Ledger.Commit(rctx, res); err != nil {
			// Cuma mungkin kalau reservation dipakai dobel = bug.
			log.Printf("checkout: commit reservation %s: %v", res.ID, err)
		}
	}
	o.saveTxn(rctx, txn)

	o.Emitter.Emit(events.Event{
		Type:          events.EventCheckoutCompleted,
		CorrelationID: cartID,
		Payload: events.CheckoutCompletedPayload{
			CartID: cartID, OrderID: ord.ID, TotalCents: totals.TotalCents,
		},
	})
	return ord, nil
}

// Refund mengembalikan sebagian/seluruh dana transaksi yang sudah
// captured, di luar alur checkout (customer service, retur). State
// machine yang menjaga refunded_amount <= amount; sini cuma load,
// jalankan transisi, persist.
func (o *Orchestrator) Refund(ctx context.Context, txnID string, amountCents int64, reason string) (*payment.Transaction, error) {
	if o.Payments == nil {
		return nil, errInternal(errors.New("payment store not configured"))
	}
	txn, err := o.Payments.Load(ctx, txnID)
	if err != nil {
		return nil, err
	}

	r, ev, err := txn.InitiateRefund(amountCents, reason)
	if err != nil {
		return nil, err
	}
	o.Emitter.Emit(ev)

	gw, gerr := o.Gateway.Refund(ctx, txn.GatewayRef, r.AmountCents)
	if gerr != nil {
		gw = payment.GatewayResponse{Success: false, Message: gerr.Error()}
	}
	cev, cerr := txn.CompleteRefund(r.ID, gw)
	if cerr != nil {
		return nil, errInternal(cerr)
	}
	o.Emitter.Emit(cev)

	// Refund FAILED tetap dipersist: log-nya bagian dari audit trail.
	if err := o.Payments.Save(ctx, txn); err != nil {
		return nil, errInternal(err)
	}
	if !gw.Success {
		return txn, errPaymentFailed("refund declined: "+gw.Message, gerr)
	}
	return txn, nil
}

// refundAndFail: kompensasi untuk kegagalan SETELAH capture.
func (o *Orchestrator) refundAndFail(rctx context.Context, cartID string, txn *payment.Transaction, rollback func(), cause error) error {
	r, ev, rerr := txn.InitiateRefund(txn.AmountCents, "settlement failed")
	if rerr != nil {
		log.Printf("checkout: initiate refund after settle failure: %v", rerr)
	} else {
		o.Emitter.Emit(ev)
		gw, gerr := o.Gateway.Refund(rctx, txn.GatewayRef, r.AmountCents)
		if gerr != nil {
			gw = payment.GatewayResponse{Success: false, Message: gerr.Error()}
		}
		if cev, cerr := txn.CompleteRefund(r.ID, gw); cerr == nil {
			o.Emitter.Emit(cev)
		}
	}
	rollback()
	o.saveTxn(rctx, txn)
	return o.failed(cartID, errInternal(cause))
}

func (o *Orchestrator) saveTxn(ctx context.Context, txn *payment.Transaction) {
	if o.Payments == nil {
		return
	}
	if err := o.Payments.Save(ctx, txn); err != nil {
		log.Printf("checkout: persist payment %s: %v", txn.ID, err)
	}
}

func (o *Orchestrator) failed(cartID string, cerr *Error) *Error {
	o.Emitter.Emit(events.Event{
		Type:          events.EventCheckoutFailed,
		CorrelationID: cartID,
		Payload: events.CheckoutFailedPayload{
			CartID: cartID, Code: string(cerr.Code), Detail: cerr.Message,
		},
	})
	return cerr
}
