package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/yardwatch/internal/domain"
)

// GetUserByUsername возвращает nil, nil для неизвестного пользователя.
func (r *Repo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, scopes, created_at, updated_at
		FROM users WHERE username = $1`

	u := &domain.User{}
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.Scopes, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (r *Repo) CreateUser(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, username, password_hash, role, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	_, err := r.pool.Exec(ctx, query, u.ID, u.Email, u.Username, u.PasswordHash, u.Role, u.Scopes, u.CreatedAt)
	return err
}
