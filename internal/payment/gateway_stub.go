package payment

import (
	"context"

	"github.com/google/uuid"
)

// StubGateway buat dev & test: approve semua kecuali amount di atas
// DeclineOverCents (0 = tidak pernah decline). Provider beneran
// (Clover/Moneris/Interac) tinggal implement Gateway di adapternya.
type StubGateway struct {
	DeclineOverCents int64
}

func (g *StubGateway) Authorize(_ context.Context, amountCents int64, _, _ string) (GatewayResponse, error) {
	if g.DeclineOverCents > 0 && amountCents > g.DeclineOverCents {
		return GatewayResponse{Success: false, Message: "amount over limit"}, nil
	}
	return GatewayResponse{Success: true, TransactionID: uuid.NewString()}, nil
}

func (g *StubGateway) Capture(_ context.Context, gatewayTxnID string) (GatewayResponse, error) {
	return GatewayResponse{Success: true, TransactionID: gatewayTxnID}, nil
}

func (g *StubGateway) Refund(_ context.Context, gatewayTxnID string, _ int64) (GatewayResponse, error) {
	return GatewayResponse{Success: true, TransactionID: gatewayTxnID}, nil
}
