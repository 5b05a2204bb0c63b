package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/yardwatch/internal/domain"
)

const (
	alertColumns      = 6
	defaultAlertLimit = 100
	maxAlertLimit     = 1000
)

// WriteAlerts — пакетная вставка одним INSERT. Повтор той же пачки
// после ретрая не дублирует записи: id генерируются на стороне архива.
func (r *Repo) WriteAlerts(ctx context.Context, records []domain.AlertRecord) error {
	if len(records) == 0 {
		return nil
	}

	var sb strings.Builder
	vals := make([]any, 0, len(records)*alertColumns)

	for i, rec := range records {
		p := i * alertColumns
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)", p+1, p+2, p+3, p+4, p+5, p+6)
		vals = append(vals, rec.ID, rec.TrackID, string(rec.Level), rec.Title, rec.Description, rec.CreatedAt)
	}

	query := "INSERT INTO alerts (id, track_id, level, title, description, created_at) VALUES " +
		sb.String() + " ON CONFLICT (id) DO NOTHING"

	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("insert alerts: %w", err)
	}
	return nil
}

// ListAlerts возвращает архив, новые первыми.
func (r *Repo) ListAlerts(ctx context.Context, f domain.AlertFilter) ([]domain.AlertRecord, error) {
	var (
		conds []string
		args  []any
	)
	if f.Level != "" {
		args = append(args, string(f.Level))
		conds = append(conds, fmt.Sprintf("level = $%d", len(args)))
	}
	if f.TrackID != nil {
		args = append(args, *f.TrackID)
		conds = append(conds, fmt.Sprintf("track_id = $%d", len(args)))
	}

	query := "SELECT id, track_id, level, title, description, created_at FROM alerts"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, clampLimit(f.Limit))
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AlertRecord, error) {
		var (
			rec   domain.AlertRecord
			level string
		)
		err := row.Scan(&rec.ID, &rec.TrackID, &level, &rec.Title, &rec.Description, &rec.CreatedAt)
		rec.Level = domain.AlertLevel(level)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan alerts: %w", err)
	}
	return out, nil
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
