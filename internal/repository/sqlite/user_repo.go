package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/yardwatch/internal/domain"
)

// GetUserByUsername возвращает nil, nil для неизвестного пользователя.
func (r *Repo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, scopes, created_at, updated_at
		FROM users WHERE username = ?`

	var (
		u                  domain.User
		scopes             string
		created, updatedMs int64
	)
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &scopes, &created, &updatedMs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(scopes), &u.Scopes); err != nil {
		return nil, fmt.Errorf("decode scopes of %s: %w", username, err)
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	u.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &u, nil
}

func (r *Repo) CreateUser(ctx context.Context, u *domain.User) error {
	scopes, err := json.Marshal(u.Scopes)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO users (id, email, username, password_hash, role, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	ms := u.CreatedAt.UnixMilli()
	_, err = r.db.ExecContext(ctx, query, u.ID, u.Email, u.Username, u.PasswordHash, u.Role, string(scopes), ms, ms)
	return err
}
