package orders

import (
	"time"

	"github.com/ariefcatur/go-checkout-engine.git/internal/pricing"
)

// Order = snapshot immutable dari cart + total hasil hitung server +
// payment_transaction_id. Dibuat tepat sekali per checkout sukses,
// tidak pernah dimutasi setelahnya (history status di-append, bukan
// ditulis ulang).
type Order struct {
	ID            string               `json:"id"`
	CartID        string               `json:"cart_id"`
	CustomerID    string               `json:"customer_id"`
	Totals        pricing.OrderTotals  `json:"totals"`
	TransactionID string               `json:"transaction_id"`
	CreatedAt     time.Time            `json:"created_at"`
}

type StatusEntry struct {
	Status     string    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
}
