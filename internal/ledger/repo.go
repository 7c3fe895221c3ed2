package ledger

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo = BatchStore di atas postgres. Tabel inventory_batches append-only;
// on_hand di-update, row tidak pernah dihapus.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) LoadAll(ctx context.Context) ([]Batch, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT sku, batch_id, quantity_on_hand, unit_cost_cents, received_at
		FROM inventory_batches
		ORDER BY sku, received_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.SKU, &b.BatchID, &b.OnHand, &b.UnitCostCents, &b.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) InsertBatch(ctx context.Context, b Batch) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO inventory_batches(sku, batch_id, quantity_on_hand, unit_cost_cents, received_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (batch_id) DO NOTHING`,
		b.SKU, b.BatchID, b.OnHand, b.UnitCostCents, b.ReceivedAt)
	return err
}

func (r *Repo) UpdateOnHand(ctx context.Context, sku, batchID string, onHand int64) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE inventory_batches SET quantity_on_hand=$3
		WHERE sku=$1 AND batch_id=$2`, sku, batchID, onHand)
	return err
}
