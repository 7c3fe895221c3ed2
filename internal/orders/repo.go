package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-checkout-engine.git/internal/pricing"
)

var ErrNotFound = errors.New("orders: not found")

// Store adalah port yang dipakai orchestrator dan handler.
type Store interface {
	Create(ctx context.Context, o *Order) error
	ByCartID(ctx context.Context, cartID string) (*Order, error)
	ByID(ctx context.Context, id string) (*Order, error)
	History(ctx context.Context, orderID string) ([]StatusEntry, error)
}

type Repo struct{ DB *pgxpool.Pool }

// Create insert order + lines + entry history pertama dalam satu tx.
// Unique index di cart_id menjaga "satu order per cart" juga di DB.
func (r *Repo) Create(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, cart_id, customer_id, currency, subtotal_cents,
			discount_cents, tax_cents, shipping_cents, total_cents, transaction_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.CartID, o.CustomerID, o.Totals.Currency, o.Totals.SubtotalCents,
		o.Totals.DiscountCents, o.Totals.TaxCents, o.Totals.ShippingCents,
		o.Totals.TotalCents, o.TransactionID, o.CreatedAt)
	if err != nil {
		return err
	}
	for i, l := range o.Totals.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, position, sku, qty, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, i, l.SKU, l.Qty, l.UnitPriceCents, l.LineTotalCents); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_history(order_id, status, recorded_at)
		VALUES ($1,'PLACED',$2)`, o.ID, o.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// History urut kronologis; entry pertama selalu PLACED dari Create.
func (r *Repo) History(ctx context.Context, orderID string) ([]StatusEntry, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT status, recorded_at
		FROM order_status_history WHERE order_id=$1 ORDER BY recorded_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusEntry
	for rows.Next() {
		var e StatusEntry
		if err := rows.Scan(&e.Status, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) ByCartID(ctx context.Context, cartID string) (*Order, error) {
	return r.scanOne(ctx, `cart_id`, cartID)
}

func (r *Repo) ByID(ctx context.Context, id string) (*Order, error) {
	return r.scanOne(ctx, `id`, id)
}

func (r *Repo) scanOne(ctx context.Context, col, val string) (*Order, error) {
	o := &Order{}
	err := r.DB.QueryRow(ctx, `
		SELECT id, cart_id, customer_id, currency, subtotal_cents, discount_cents, tax_cents,
		       shipping_cents, total_cents, transaction_id, created_at
		FROM orders WHERE `+col+`=$1`, val).Scan(
		&o.ID, &o.CartID, &o.CustomerID, &o.Totals.Currency, &o.Totals.SubtotalCents,
		&o.Totals.DiscountCents, &o.Totals.TaxCents, &o.Totals.ShippingCents,
		&o.Totals.TotalCents, &o.TransactionID, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT sku, qty, unit_price_cents, line_total_cents
		FROM order_items WHERE order_id=$1 ORDER BY position`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l pricing.Line
		if err := rows.Scan(&l.SKU, &l.Qty, &l.UnitPriceCents, &l.LineTotalCents); err != nil {
			return nil, err
		}
		o.Totals.Lines = append(o.Totals.Lines, l)
	}
	return o, rows.Err()
}
