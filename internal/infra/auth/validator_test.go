package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/yardwatch/internal/domain"
	"go.uber.org/zap"
)

func signed(t *testing.T, key *rsa.PrivateKey, method jwt.SigningMethod, claims *domain.CustomClaims) string {
	t.Helper()
	var signKey any = key
	if method == jwt.SigningMethodHS256 {
		signKey = []byte("shared")
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(signKey)
	require.NoError(t, err)
	return s
}

func claimsFor(username string, exp time.Time, scopes ...string) *domain.CustomClaims {
	set := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		set[s] = true
	}
	return &domain.CustomClaims{
		UserID:   "u-1",
		Username: username,
		Scopes:   set,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestVerifyToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewBaseValidator(&key.PublicKey)
	future := time.Now().Add(time.Hour)

	t.Run("valid bearer", func(t *testing.T) {
		tok := signed(t, key, jwt.SigningMethodRS256, claimsFor("ana", future, domain.ScopeOverrides))
		claims, err := v.VerifyToken("Bearer " + tok)
		require.NoError(t, err)
		assert.Equal(t, "ana", claims.Username)
		assert.True(t, claims.Allows(domain.ScopeOverrides))
		assert.False(t, claims.Allows(domain.ScopeAlerts))
	})

	wrongIssuer := claimsFor("ana", future)
	wrongIssuer.Issuer = "someone-else"
	noExpiry := claimsFor("ana", future)
	noExpiry.ExpiresAt = nil

	cases := map[string]string{
		"empty":        "Bearer ",
		"garbage":      "not-a-jwt",
		"expired":      signed(t, key, jwt.SigningMethodRS256, claimsFor("ana", time.Now().Add(-time.Minute))),
		"foreign key":  signed(t, other, jwt.SigningMethodRS256, claimsFor("ana", future)),
		"hmac":         signed(t, key, jwt.SigningMethodHS256, claimsFor("ana", future)),
		"wrong issuer": signed(t, key, jwt.SigningMethodRS256, wrongIssuer),
		"no expiry":    signed(t, key, jwt.SigningMethodRS256, noExpiry),
		"no subject":   signed(t, key, jwt.SigningMethodRS256, claimsFor("", future)),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.VerifyToken(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestMiddleware(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewBaseValidator(&key.PublicKey)

	h := NewMiddleware(v, zap.NewNop())(RequireScope(domain.ScopeAlerts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(claims.Username))
	})))

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	future := time.Now().Add(time.Hour)
	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer junk").Code)
	assert.Equal(t, http.StatusForbidden, call("Bearer "+signed(t, key, jwt.SigningMethodRS256, claimsFor("viewer", future))).Code)

	rec := call("Bearer " + signed(t, key, jwt.SigningMethodRS256, claimsFor("ana", future, domain.ScopeAlerts)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", rec.Body.String())

	admin := call("Bearer " + signed(t, key, jwt.SigningMethodRS256, claimsFor("root", future, domain.ScopeAdmin)))
	assert.Equal(t, http.StatusOK, admin.Code)
}

func TestParseRSAPrivateKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	parsed, err := ParseRSAPrivateKey(pemBytes)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(&parsed.PublicKey))

	_, err = ParseRSAPrivateKey(nil)
	assert.Error(t, err)
	_, err = ParseRSAPrivateKey([]byte("nope"))
	assert.Error(t, err)
}
