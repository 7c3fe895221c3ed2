package payment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("payment: transaction not found")

type Repo struct{ DB *pgxpool.Pool }

// Save upsert transaksi + seluruh log refund dalam satu tx. Dipanggil
// setelah state machine settle, bukan per transisi.
func (r *Repo) Save(ctx context.Context, t *Transaction) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var capturedAt *time.Time
	if !t.CapturedAt.IsZero() {
		capturedAt = &t.CapturedAt
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO payment_transactions(id, order_id, amount_cents, currency, status,
			auth_code, gateway_ref, fail_reason, retry_count, refunded_cents, created_at, captured_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			status=EXCLUDED.status, auth_code=EXCLUDED.auth_code,
			gateway_ref=EXCLUDED.gateway_ref, fail_reason=EXCLUDED.fail_reason,
			retry_count=EXCLUDED.retry_count, refunded_cents=EXCLUDED.refunded_cents,
			captured_at=EXCLUDED.captured_at`,
		t.ID, t.OrderID, t.AmountCents, t.Currency, t.Status,
		t.AuthCode, t.GatewayRef, t.FailReason, t.RetryCount, t.RefundedCents,
		t.CreatedAt, capturedAt)
	if err != nil {
		return err
	}

	for _, rf := range t.refunds {
		if _, err := tx.Exec(ctx, `
			INSERT INTO refunds(id, transaction_id, amount_cents, status, reason, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status`,
			rf.ID, t.ID, rf.AmountCents, rf.Status, rf.Reason, rf.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) Load(ctx context.Context, id string) (*Transaction, error) {
	t := &Transaction{refundIdx: make(map[string]int)}
	var capturedAt *time.Time
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_id, amount_cents, currency, status, auth_code, gateway_ref,
		       fail_reason, retry_count, refunded_cents, created_at, captured_at
		FROM payment_transactions WHERE id=$1`, id).Scan(
		&t.ID, &t.OrderID, &t.AmountCents, &t.Currency, &t.Status, &t.AuthCode, &t.GatewayRef,
		&t.FailReason, &t.RetryCount, &t.RefundedCents, &t.CreatedAt, &capturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if capturedAt != nil {
		t.CapturedAt = *capturedAt
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, amount_cents, status, reason, created_at
		FROM refunds WHERE transaction_id=$1 ORDER BY created_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rf Refund
		if err := rows.Scan(&rf.ID, &rf.AmountCents, &rf.Status, &rf.Reason, &rf.CreatedAt); err != nil {
			return nil, err
		}
		t.refunds = append(t.refunds, rf)
		t.refundIdx[rf.ID] = len(t.refunds) - 1
	}
	return t, rows.Err()
}
