package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-checkout-engine.git/internal/cart"
	"github.com/ariefcatur/go-checkout-engine.git/internal/checkout"
	"github.com/ariefcatur/go-checkout-engine.git/internal/ledger"
	"github.com/ariefcatur/go-checkout-engine.git/internal/orders"
	"github.com/ariefcatur/go-checkout-engine.git/internal/payment"
	"github.com/ariefcatur/go-checkout-engine.git/internal/redisx"
)

// CartCreator dipakai endpoint seeding /carts; Get/SetStatus tetap lewat
// orchestrator.
type CartCreator interface {
	Create(ctx context.Context, s *cart.Session) error
}

type CheckoutReq struct {
	CartID        string                 `json:"cart_id"`
	ClientContext checkout.ClientPayload `json:"client_context"`
}

type errorResp struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	SKU   string `json:"sku,omitempty"`
}

type CheckoutHandler struct {
	Orchestrator *checkout.Orchestrator
	Orders       orders.Store
	Carts        CartCreator
	Ledger       *ledger.Ledger
	Redis        *redis.Client
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/carts", h.createCart)
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/payments/{id}/refunds", h.refund)
	r.Get("/inventory/{sku}", h.getStock)
	r.Post("/inventory/receive", h.receiveStock)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Mapping taxonomy -> status code; setiap kegagalan punya code stabil.
func statusFor(code checkout.Code) int {
	switch code {
	case checkout.CodeCartLocked, checkout.CodeInsufficientStock:
		return http.StatusConflict
	case checkout.CodeCartExpired:
		return http.StatusGone
	case checkout.CodePaymentFailed:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	if req.CartID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "missing cart_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	// Fast-path idempotency by request_id (DB tetap jadi kebenaran:
	// cart CONVERTED juga di-replay dari orchestrator).
	var idemKey string
	if rid := req.ClientContext.RequestID; rid != "" {
		idemKey = fmt.Sprintf(redisx.KeyIdemCheckout, rid)
		if oid, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && oid != "" {
			if ord, err := h.Orders.ByCartID(ctx, req.CartID); err == nil && ord.ID == oid {
				writeJSON(w, http.StatusCreated, ord)
				return
			}
		}
	}

	ord, err := h.Orchestrator.Checkout(ctx, req.CartID, req.ClientContext)
	if err != nil {
		var cerr *checkout.Error
		if errors.As(err, &cerr) {
			writeJSON(w, statusFor(cerr.Code), errorResp{
				Error: cerr.Message, Code: string(cerr.Code), SKU: cerr.SKU,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
		return
	}

	if idemKey != "" {
		_ = h.Redis.Set(ctx, idemKey, ord.ID, redisx.TTLIdempotency).Err()
	}
	// Cache status biar GET order cepat.
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, ord.ID)
	_ = h.Redis.Set(ctx, statusKey, `{"status":"PLACED"}`, redisx.TTLStatusCache).Err()

	writeJSON(w, http.StatusCreated, ord)
}

type CreateCartReq struct {
	CustomerID string      `json:"customer_id"`
	Items      []cart.Item `json:"items"`
}

// createCart: jalur seeding cart (dev tooling & test integrasi); isi cart
// selanjutnya dikelola presentation layer.
func (h *CheckoutHandler) createCart(w http.ResponseWriter, r *http.Request) {
	var req CreateCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	if req.CustomerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "missing customer_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s := &cart.Session{
		CustomerID: req.CustomerID,
		Status:     cart.StatusActive,
		Items:      req.Items,
	}
	if err := h.Carts.Create(ctx, s); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id": s.ID, "status": s.Status, "expires_at": s.ExpiresAt,
	})
}

type RefundReq struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason,omitempty"`
}

func (h *CheckoutHandler) refund(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "id")
	var req RefundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	txn, err := h.Orchestrator.Refund(ctx, txnID, req.AmountCents, req.Reason)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResp{Error: "transaction not found"})
			return
		}
		var brv *payment.BusinessRuleViolation
		if errors.As(err, &brv) {
			writeJSON(w, http.StatusConflict, errorResp{Error: brv.Error()})
			return
		}
		var cerr *checkout.Error
		if errors.As(err, &cerr) {
			writeJSON(w, statusFor(cerr.Code), errorResp{
				Error: cerr.Message, Code: string(cerr.Code),
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_id": txn.ID,
		"status":         txn.Status,
		"refunded_cents": txn.RefundedCents,
	})
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	// 2) fallback DB + isi ulang cache; status = entry history terakhir.
	ord, err := h.Orders.ByID(ctx, orderID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp{Error: "not found"})
		return
	}
	hist, err := h.Orders.History(ctx, orderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
		return
	}
	status := "PLACED"
	if len(hist) > 0 {
		status = hist[len(hist)-1].Status
	}
	b, _ := json.Marshal(map[string]any{"status": status, "order": ord, "history": hist})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *CheckoutHandler) getStock(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	if sku == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "missing sku"})
		return
	}
	writeJSON(w, http.StatusOK, h.Ledger.View(sku))
}

type ReceiveReq struct {
	SKU           string `json:"sku"`
	Qty           int64  `json:"qty"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

func (h *CheckoutHandler) receiveStock(w http.ResponseWriter, r *http.Request) {
	var req ReceiveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	if req.SKU == "" || req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "missing sku or qty"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Ledger.Receive(ctx, ledger.Batch{
		SKU: req.SKU, OnHand: req.Qty, UnitCostCents: req.UnitCostCents,
	}); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, h.Ledger.View(req.SKU))
}
