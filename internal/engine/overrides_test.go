package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/yardwatch/internal/domain"
)

type staticProvider struct {
	items []domain.Override
	err   error
}

func (s staticProvider) ListOverrides(context.Context) ([]domain.Override, error) {
	return s.items, s.err
}

func TestOverrideManager_SetGetClear(t *testing.T) {
	m := NewOverrideManager(nil, nil, nil)

	_, ok := m.Get(7)
	assert.False(t, ok)

	require.NoError(t, m.Set(7, domain.StatusMaintenance, "ops"))
	st, ok := m.Get(7)
	require.True(t, ok)
	assert.Equal(t, domain.StatusMaintenance, st)

	err := m.Set(8, domain.Status("quebrada"), "ops")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	err = m.Set(8, domain.StatusOutside, "ops")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	assert.Equal(t, 1, m.Len())

	assert.True(t, m.Clear(7))
	assert.False(t, m.Clear(7))
	assert.Zero(t, m.Len())
}

func TestOverrideManager_ApplyWithoutRedis(t *testing.T) {
	m := NewOverrideManager(nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, 3, domain.StatusStopped, "ws"))
	require.NoError(t, m.Apply(ctx, 1, domain.StatusMaintenance, "ws"))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].TrackID)
	assert.Equal(t, "ws", list[0].UpdatedBy)

	require.NoError(t, m.Release(ctx, 1))
	assert.Len(t, m.List(), 1)
}

func TestOverrideManager_InitFromRepo(t *testing.T) {
	repo := staticProvider{items: []domain.Override{
		{TrackID: 4, Status: domain.StatusMaintenance},
		{TrackID: 5, Status: domain.Status("bogus")},
	}}
	m := NewOverrideManager(nil, repo, nil)
	require.NoError(t, m.Set(99, domain.StatusStopped, "stale"))

	require.NoError(t, m.Init(context.Background()))

	st, ok := m.Get(4)
	require.True(t, ok)
	assert.Equal(t, domain.StatusMaintenance, st)
	_, ok = m.Get(5)
	assert.False(t, ok)
	_, ok = m.Get(99)
	assert.False(t, ok)
}

func TestOverrideManager_InitRepoError(t *testing.T) {
	m := NewOverrideManager(nil, staticProvider{err: errors.New("db down")}, nil)
	assert.Error(t, m.Init(context.Background()))
}

func TestOverrideManager_ApplySignal(t *testing.T) {
	m := NewOverrideManager(nil, nil, nil)

	m.applySignal("12", "MANUTENCAO")
	st, ok := m.Get(12)
	require.True(t, ok)
	assert.Equal(t, domain.StatusMaintenance, st)

	m.applySignal("12", "clear")
	_, ok = m.Get(12)
	assert.False(t, ok)

	m.applySignal("abc", "parada")
	m.applySignal("13", "voando")
	m.applySignal("14", "fora_da_area")
	assert.Zero(t, m.Len())
}
