package events

import (
	"encoding/json"
	"time"
)

const (
	// Lock lifecycle (audit kontensi per cart).
	EventLockAcquired = "CartLockAcquired"
	EventLockTimeout  = "CartLockTimeout"
	EventLockExpired  = "CartLockExpired"

	// Inventory.
	EventStockReceived        = "StockReceived"
	EventReservationCommitted = "ReservationCommitted"
	EventReservationReleased  = "ReservationReleased"

	// Payment lifecycle.
	EventPaymentInitiated  = "PaymentInitiated"
	EventPaymentAuthorized = "PaymentAuthorized"
	EventPaymentCaptured   = "PaymentCaptured"
	EventPaymentFailed     = "PaymentFailed"
	EventPaymentCancelled  = "PaymentCancelled"
	EventRefundIssued      = "RefundIssued"
	EventRefundCompleted   = "RefundCompleted"
	EventRefundFailed      = "RefundFailed"

	// Checkout hasil akhir.
	EventCheckoutCompleted = "CheckoutCompleted"
	EventCheckoutFailed    = "CheckoutFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "checkout-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // cart_id atau order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type LockEventPayload struct {
	CartID      string `json:"cart_id"`
	HolderToken string `json:"holder_token,omitempty"`
	WaitedMS    int64  `json:"waited_ms,omitempty"`
}

type BatchAllocation struct {
	BatchID string `json:"batch_id"`
	Qty     int64  `json:"qty"`
}

type StockReceivedPayload struct {
	SKU           string `json:"sku"`
	BatchID       string `json:"batch_id"`
	Qty           int64  `json:"qty"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

type ReservationPayload struct {
	ReservationID string            `json:"reservation_id"`
	SKU           string            `json:"sku"`
	Qty           int64             `json:"qty"`
	Allocations   []BatchAllocation `json:"allocations,omitempty"`
}

type PaymentPayload struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}

type RefundPayload struct {
	TransactionID string `json:"transaction_id"`
	RefundID      string `json:"refund_id"`
	AmountCents   int64  `json:"amount_cents"`
	Reason        string `json:"reason,omitempty"`
}

type CheckoutCompletedPayload struct {
	CartID     string `json:"cart_id"`
	OrderID    string `json:"order_id"`
	TotalCents int64  `json:"total_cents"`
}

type CheckoutFailedPayload struct {
	CartID string `json:"cart_id"`
	Code   string `json:"code"` // error code taxonomy (lihat checkout/errors.go)
	Detail string `json:"detail,omitempty"`
}
