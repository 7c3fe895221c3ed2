// Package catalog cuma satu capability buat core ini: harga sekarang.
// CRUD katalog ada di luar scope.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PriceReader interface {
	CurrentPriceCents(ctx context.Context, sku string) (int64, error)
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) CurrentPriceCents(ctx context.Context, sku string) (int64, error) {
	var price int64
	err := r.DB.QueryRow(ctx, `SELECT price_cents FROM products WHERE sku=$1`, sku).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("catalog: unknown sku %s", sku)
	}
	return price, err
}
