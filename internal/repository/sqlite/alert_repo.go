package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/yardwatch/internal/domain"
)

const (
	defaultAlertLimit = 100
	maxAlertLimit     = 1000
)

func (r *Repo) WriteAlerts(ctx context.Context, records []domain.AlertRecord) error {
	if len(records) == 0 {
		return nil
	}

	var sb strings.Builder
	vals := make([]any, 0, len(records)*6)
	for i, rec := range records {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		vals = append(vals, rec.ID, rec.TrackID, string(rec.Level), rec.Title, rec.Description, rec.CreatedAt.UnixMilli())
	}

	query := "INSERT OR IGNORE INTO alerts (id, track_id, level, title, description, created_at) VALUES " + sb.String()
	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("insert alerts: %w", err)
	}
	return nil
}

func (r *Repo) ListAlerts(ctx context.Context, f domain.AlertFilter) ([]domain.AlertRecord, error) {
	var (
		conds []string
		args  []any
	)
	if f.Level != "" {
		conds = append(conds, "level = ?")
		args = append(args, string(f.Level))
	}
	if f.TrackID != nil {
		conds = append(conds, "track_id = ?")
		args = append(args, *f.TrackID)
	}

	query := "SELECT id, track_id, level, title, description, created_at FROM alerts"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, clampLimit(f.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertRecord
	for rows.Next() {
		var (
			rec   domain.AlertRecord
			level string
			ms    int64
		)
		if err := rows.Scan(&rec.ID, &rec.TrackID, &level, &rec.Title, &rec.Description, &ms); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		rec.Level = domain.AlertLevel(level)
		rec.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultAlertLimit
	}
	if n > maxAlertLimit {
		return maxAlertLimit
	}
	return n
}
