package payment

import "context"

// GatewayResponse bentuk netral dari balasan provider (Clover/Moneris/
// Interac dsb). Detail wire protocol tinggal di adapter masing-masing.
type GatewayResponse struct {
	Success       bool
	TransactionID string
	Message       string
}

// Gateway adalah capability, bukan provider: core tidak tahu (dan tidak
// peduli) provider mana di baliknya.
type Gateway interface {
	Authorize(ctx context.Context, amountCents int64, currency, method string) (GatewayResponse, error)
	Capture(ctx context.Context, gatewayTxnID string) (GatewayResponse, error)
	Refund(ctx context.Context, gatewayTxnID string, amountCents int64) (GatewayResponse, error)
}
