// Package payment memodelkan lifecycle satu transaksi pembayaran sebagai
// state machine eksplisit: transisi ilegal ditolak dengan error bernama,
// tidak pernah di-skip diam-diam. Mutasi aggregate ini terkurung di satu
// orchestration yang pegang cart lock, jadi tidak butuh mutex sendiri.
package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-checkout-engine.git/internal/events"
)

// BusinessRuleViolation = error kontrak (programmer error), selalu fatal
// untuk request pemanggil.
type BusinessRuleViolation struct {
	Op   string
	From Status
	Msg  string
}

func (e *BusinessRuleViolation) Error() string {
	return fmt.Sprintf("payment: %s illegal from %s: %s", e.Op, e.From, e.Msg)
}

type Refund struct {
	ID          string
	AmountCents int64
	Status      RefundStatus
	Reason      string
	CreatedAt   time.Time
}

type Transaction struct {
	ID          string
	OrderID     string
	AmountCents int64
	Currency    string
	Status      Status

	AuthCode   string
	GatewayRef string // transaction id di sisi provider
	FailReason string
	RetryCount int

	// Log refund append-only + index by id; refunded_amount <= amount,
	// dan jumlah refund COMPLETED selalu == RefundedCents.
	RefundedCents int64
	refunds       []Refund
	refundIdx     map[string]int

	CreatedAt  time.Time
	CapturedAt time.Time
}

func NewTransaction(orderID string, amountCents int64, currency string) (*Transaction, events.Event) {
	t := &Transaction{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      StatusPending,
		refundIdx:   make(map[string]int),
		CreatedAt:   time.Now().UTC(),
	}
	return t, t.event(events.EventPaymentInitiated, "")
}

// Refunds mengembalikan salinan log (log asli tidak boleh dimutasi dari luar).
func (t *Transaction) Refunds() []Refund {
	out := make([]Refund, len(t.refunds))
	copy(out, t.refunds)
	return out
}

func (t *Transaction) Refund(refundID string) (Refund, bool) {
	i, ok := t.refundIdx[refundID]
	if !ok {
		return Refund{}, false
	}
	return t.refunds[i], true
}

func (t *Transaction) Authorize(code string, gw GatewayResponse) (events.Event, error) {
	if t.Status != StatusPending {
		return events.Event{}, &BusinessRuleViolation{Op: "authorize", From: t.Status, Msg: "only PENDING can be authorized"}
	}
	if !gw.Success {
		return events.Event{}, &BusinessRuleViolation{Op: "authorize", From: t.Status, Msg: "gateway response not successful"}
	}
	t.Status = StatusAuthorized
	t.AuthCode = code
	t.GatewayRef = gw.TransactionID
	return t.event(events.EventPaymentAuthorized, ""), nil
}

func (t *Transaction) Capture(gw GatewayResponse) (events.Event, error) {
	if !CanTransition(t.Status, StatusCaptured) {
		return events.Event{}, &BusinessRuleViolation{Op: "capture", From: t.Status, Msg: "only PENDING or AUTHORIZED can be captured"}
	}
	if !gw.Success {
		return events.Event{}, &BusinessRuleViolation{Op: "capture", From: t.Status, Msg: "gateway response not successful"}
	}
	t.Status = StatusCaptured
	if gw.TransactionID != "" {
		t.GatewayRef = gw.TransactionID
	}
	t.CapturedAt = time.Now().UTC()
	return t.event(events.EventPaymentCaptured, ""), nil
}

func (t *Transaction) Fail(reason string) (events.Event, error) {
	if !CanTransition(t.Status, StatusFailed) {
		return events.Event{}, &BusinessRuleViolation{Op: "fail", From: t.Status, Msg: "captured/refunded transaction cannot fail"}
	}
	t.Status = StatusFailed
	t.FailReason = reason
	t.RetryCount++
	return t.event(events.EventPaymentFailed, reason), nil
}

func (t *Transaction) Cancel(reason string) (events.Event, error) {
	if !CanTransition(t.Status, StatusCancelled) {
		return events.Event{}, &BusinessRuleViolation{Op: "cancel", From: t.Status, Msg: "captured/refunded transaction cannot be cancelled"}
	}
	t.Status = StatusCancelled
	t.FailReason = reason
	return t.event(events.EventPaymentCancelled, reason), nil
}

// InitiateRefund bikin entry refund PENDING; belum menyentuh status
// transaksi sampai CompleteRefund sukses.
func (t *Transaction) InitiateRefund(amountCents int64, reason string) (Refund, events.Event, error) {
	if t.Status != StatusCaptured && t.Status != StatusPartiallyRefunded {
		return Refund{}, events.Event{}, &BusinessRuleViolation{Op: "initiate_refund", From: t.Status, Msg: "refund requires a captured transaction"}
	}
	if amountCents <= 0 {
		return Refund{}, events.Event{}, &BusinessRuleViolation{Op: "initiate_refund", From: t.Status, Msg: "refund amount must be positive"}
	}
	if amountCents > t.AmountCents-t.RefundedCents {
		return Refund{}, events.Event{}, &BusinessRuleViolation{Op: "initiate_refund", From: t.Status,
			Msg: fmt.Sprintf("refund %d exceeds remaining %d", amountCents, t.AmountCents-t.RefundedCents)}
	}
	r := Refund{
		ID:          uuid.NewString(),
		AmountCents: amountCents,
		Status:      RefundPending,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}
	t.refunds = append(t.refunds, r)
	t.refundIdx[r.ID] = len(t.refunds) - 1
	ev := events.Event{
		Type:          events.EventRefundIssued,
		CorrelationID: t.OrderID,
		Payload: events.RefundPayload{
			TransactionID: t.ID, RefundID: r.ID, AmountCents: amountCents, Reason: reason,
		},
	}
	return r, ev, nil
}

// CompleteRefund: sukses gateway -> refund COMPLETED, refunded_amount naik,
// status dihitung ulang (REFUNDED kalau penuh). Gagal gateway -> refund
// FAILED, status transaksi tidak berubah.
func (t *Transaction) CompleteRefund(refundID string, gw GatewayResponse) (events.Event, error) {
	i, ok := t.refundIdx[refundID]
	if !ok {
		return events.Event{}, &BusinessRuleViolation{Op: "complete_refund", From: t.Status, Msg: "unknown refund id " + refundID}
	}
	r := &t.refunds[i]
	if r.Status != RefundPending {
		return events.Event{}, &BusinessRuleViolation{Op: "complete_refund", From: t.Status, Msg: "refund " + refundID + " already settled"}
	}

	if !gw.Success {
		r.Status = RefundFailed
		return events.Event{
			Type:          events.EventRefundFailed,
			CorrelationID: t.OrderID,
			Payload: events.RefundPayload{
				TransactionID: t.ID, RefundID: r.ID, AmountCents: r.AmountCents, Reason: gw.Message,
			},
		}, nil
	}

	r.Status = RefundCompleted
	t.RefundedCents += r.AmountCents
	next := StatusPartiallyRefunded
	if t.RefundedCents == t.AmountCents {
		next = StatusRefunded
	}
	if !CanTransition(t.Status, next) {
		// Tidak mungkin kecuali aggregate korup; tetap jangan diam.
		return events.Event{}, &BusinessRuleViolation{Op: "complete_refund", From: t.Status, Msg: "invalid recomputed status"}
	}
	t.Status = next
	return events.Event{
		Type:          events.EventRefundCompleted,
		CorrelationID: t.OrderID,
		Payload: events.RefundPayload{
			TransactionID: t.ID, RefundID: r.ID, AmountCents: r.AmountCents, Reason: r.Reason,
		},
	}, nil
}

func (t *Transaction) event(typ, reason string) events.Event {
	return events.Event{
		Type:          typ,
		CorrelationID: t.OrderID,
		Payload: events.PaymentPayload{
			TransactionID: t.ID,
			OrderID:       t.OrderID,
			AmountCents:   t.AmountCents,
			Currency:      t.Currency,
			Reason:        reason,
		},
	}
}
