package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/yardwatch/internal/console/handler"
	"github.com/xela07ax/yardwatch/internal/console/service"
	"github.com/xela07ax/yardwatch/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type memRepo struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	overrides map[int64]domain.Override
	alerts    []domain.AlertRecord
}

func (m *memRepo) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[username], nil
}

func (m *memRepo) ListOverrides(context.Context) ([]domain.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Override, 0, len(m.overrides))
	for _, o := range m.overrides {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	return out, nil
}

func (m *memRepo) UpsertOverride(_ context.Context, o domain.Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[o.TrackID] = o
	return nil
}

func (m *memRepo) DeleteOverride(_ context.Context, trackID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.overrides[trackID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.overrides, trackID)
	return nil
}

func (m *memRepo) ListAlerts(_ context.Context, f domain.AlertFilter) ([]domain.AlertRecord, error) {
	var out []domain.AlertRecord
	for _, a := range m.alerts {
		if f.Level != "" && a.Level != f.Level {
			continue
		}
		if f.TrackID != nil && a.TrackID != *f.TrackID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type fixture struct {
	srv  *ConsoleServer
	repo *memRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	hash := func(pw string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		require.NoError(t, err)
		return string(h)
	}

	repo := &memRepo{
		users: map[string]*domain.User{
			"ana": {ID: "u-1", Username: "ana", PasswordHash: hash("s3cret"),
				Scopes: map[string]bool{domain.ScopeOverrides: true, domain.ScopeAlerts: true}},
			"viewer": {ID: "u-2", Username: "viewer", PasswordHash: hash("look"),
				Scopes: map[string]bool{domain.ScopeAlerts: true}},
		},
		overrides: map[int64]domain.Override{},
		alerts: []domain.AlertRecord{
			{ID: "a1", TrackID: 3, Level: domain.AlertHigh, Title: "Moto #3 fora da área"},
			{ID: "a2", TrackID: 7, Level: domain.AlertMedium, Title: "Moto #7 ociosa"},
		},
	}

	logger := zap.NewNop()
	authSvc := service.NewAuthService(repo, key, time.Hour)
	srv := NewConsoleServer(logger, authSvc,
		handler.NewAuthHandler(authSvc, logger),
		handler.NewOverrideHandler(service.NewOverrideService(repo, nil, logger), logger),
		handler.NewAlertHandler(service.NewAlertService(repo), logger),
	)
	return &fixture{srv: srv, repo: repo}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, user, pw string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/token", "", `{"username":"`+user+`","password":"`+pw+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	return resp.AccessToken
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/auth/token", "", `{"username":"ana","password":"nope"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/auth/token", "", `{"username":"ghost","password":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/auth/token", "", `{`).Code)
	assert.NotEmpty(t, f.login(t, "ana", "s3cret"))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/overrides", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/alerts", "garbage", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "", "").Code)
}

func TestOverrides_Lifecycle(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "ana", "s3cret")

	rec := f.do(t, http.MethodPut, "/v1/overrides/7", token, `{"status":"manutencao"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var o domain.Override
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&o))
	assert.Equal(t, int64(7), o.TrackID)
	assert.Equal(t, domain.StatusMaintenance, o.Status)
	assert.Equal(t, "ana", o.UpdatedBy)

	rec = f.do(t, http.MethodGet, "/v1/overrides", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.Override
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/v1/overrides/7", token, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/v1/overrides/7", token, "").Code)
}

func TestOverrides_Validation(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "ana", "s3cret")

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/v1/overrides/7", token, `{"status":"voando"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/v1/overrides/7", token, `{"status":"fora_da_area"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/v1/overrides/abc", token, `{"status":"parada"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/v1/overrides/7", token, `not json`).Code)
	assert.Empty(t, f.repo.overrides)
}

func TestOverrides_ScopeEnforced(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "viewer", "look")

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/overrides", token, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPut, "/v1/overrides/7", token, `{"status":"parada"}`).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/v1/overrides/7", token, "").Code)
}

func TestAlerts_Filter(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "viewer", "look")

	rec := f.do(t, http.MethodGet, "/v1/alerts?level=high", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []domain.AlertRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "a1", records[0].ID)

	rec = f.do(t, http.MethodGet, "/v1/alerts?track_id=99", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/alerts?level=critical", token, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/alerts?track_id=x", token, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/alerts?limit=-1", token, "").Code)
}
