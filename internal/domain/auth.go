package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ScopeAdmin     = "admin"
	ScopeOverrides = "overrides.write"
	ScopeAlerts    = "alerts.read"
)

type CustomClaims struct {
	UserID   string          `json:"user_id"`
	Username string          `json:"username"`
	Scopes   map[string]bool `json:"scopes"` // "admin": true или "overrides.write": true
	jwt.RegisteredClaims
}

// Allows — admin разрешает все.
func (c *CustomClaims) Allows(scope string) bool {
	return c.Scopes[ScopeAdmin] || c.Scopes[scope]
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Role         string          `json:"role"`
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
