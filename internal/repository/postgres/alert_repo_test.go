package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultAlertLimit, clampLimit(0))
	assert.Equal(t, defaultAlertLimit, clampLimit(-5))
	assert.Equal(t, 25, clampLimit(25))
	assert.Equal(t, maxAlertLimit, clampLimit(maxAlertLimit+1))
}

func TestMigrationsEmbedded(t *testing.T) {
	up, err := migrations.ReadFile("migrations/000001_init.up.sql")
	assert.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS alerts")

	_, err = migrations.ReadFile("migrations/000001_init.down.sql")
	assert.NoError(t, err)
}
