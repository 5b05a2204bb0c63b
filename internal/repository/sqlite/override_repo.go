package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/yardwatch/internal/domain"
)

func (r *Repo) ListOverrides(ctx context.Context) ([]domain.Override, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT track_id, status, updated_by, updated_at FROM overrides ORDER BY track_id`)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	var out []domain.Override
	for rows.Next() {
		var (
			o      domain.Override
			status string
			ms     int64
		)
		if err := rows.Scan(&o.TrackID, &status, &o.UpdatedBy, &ms); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		o.Status = domain.Status(status)
		o.UpdatedAt = time.UnixMilli(ms).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) UpsertOverride(ctx context.Context, o domain.Override) error {
	query := `
		INSERT INTO overrides (track_id, status, updated_by, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (track_id) DO UPDATE
		SET status = excluded.status, updated_by = excluded.updated_by, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, o.TrackID, string(o.Status), o.UpdatedBy, o.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("upsert override %d: %w", o.TrackID, err)
	}
	return nil
}

func (r *Repo) DeleteOverride(ctx context.Context, trackID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM overrides WHERE track_id = ?`, trackID)
	if err != nil {
		return fmt.Errorf("delete override %d: %w", trackID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete override %d: %w", trackID, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
