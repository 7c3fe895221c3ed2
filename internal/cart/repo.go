package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("cart: not found")

// Store adalah port yang dipakai orchestrator; Repo implementasinya.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	SetStatus(ctx context.Context, id string, from, to Status) error
}

type Repo struct {
	DB *pgxpool.Pool
	// TTL dipakai Create kalau ExpiresAt belum diisi.
	TTL time.Duration
}

func (r *Repo) Get(ctx context.Context, id string) (*Session, error) {
	s := &Session{ID: id}
	var status string
	err := r.DB.QueryRow(ctx, `
		SELECT customer_id, status, created_at, updated_at, expires_at
		FROM cart_sessions WHERE id=$1`, id).Scan(
		&s.CustomerID, &status, &s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = Status(status)

	rows, err := r.DB.Query(ctx, `
		SELECT sku, qty, unit_price_snapshot_cents
		FROM cart_items WHERE cart_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.SKU, &it.Qty, &it.UnitPriceSnapshotCents); err != nil {
			return nil, err
		}
		s.Items = append(s.Items, it)
	}
	return s, rows.Err()
}

// SetStatus conditional: cuma jalan kalau status sekarang = from, jadi
// dua orchestration tidak bisa sama-sama mengkonversi satu cart.
func (r *Repo) SetStatus(ctx context.Context, id string, from, to Status) error {
	if !CanTransition(from, to) {
		return errors.New("cart: illegal status transition " + string(from) + " -> " + string(to))
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE cart_sessions SET status=$3, updated_at=now()
		WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

// Create dipakai seeding & test integrasi; presentation layer yang
// sebenarnya mengelola isi cart ada di luar core ini.
func (r *Repo) Create(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.ExpiresAt.IsZero() && r.TTL > 0 {
		s.ExpiresAt = time.Now().UTC().Add(r.TTL)
	}
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO cart_sessions(id, customer_id, status, expires_at)
		VALUES ($1,$2,$3,$4)`, s.ID, s.CustomerID, s.Status, s.ExpiresAt)
	if err != nil {
		return err
	}
	for i, it := range s.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cart_items(cart_id, position, sku, qty, unit_price_snapshot_cents)
			VALUES ($1,$2,$3,$4,$5)`, s.ID, i, it.SKU, it.Qty, it.UnitPriceSnapshotCents); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
