package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/yardwatch/internal/domain"
)

func (r *Repo) ListOverrides(ctx context.Context) ([]domain.Override, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT track_id, status, updated_by, updated_at FROM overrides ORDER BY track_id`)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Override, error) {
		var (
			o      domain.Override
			status string
		)
		err := row.Scan(&o.TrackID, &status, &o.UpdatedBy, &o.UpdatedAt)
		o.Status = domain.Status(status)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan overrides: %w", err)
	}
	return out, nil
}

func (r *Repo) UpsertOverride(ctx context.Context, o domain.Override) error {
	query := `
		INSERT INTO overrides (track_id, status, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (track_id) DO UPDATE
		SET status = EXCLUDED.status, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`

	if _, err := r.pool.Exec(ctx, query, o.TrackID, string(o.Status), o.UpdatedBy, o.UpdatedAt); err != nil {
		return fmt.Errorf("upsert override %d: %w", o.TrackID, err)
	}
	return nil
}

// DeleteOverride возвращает domain.ErrNotFound, если статуса не было.
func (r *Repo) DeleteOverride(ctx context.Context, trackID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM overrides WHERE track_id = $1`, trackID)
	if err != nil {
		return fmt.Errorf("delete override %d: %w", trackID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
