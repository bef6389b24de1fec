package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  name: querymind
  user: root
redis:
  url: redis://localhost:6379/0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.App.Port)
	assert.Equal(t, 24, cfg.Cache.TTLHours)
	assert.Equal(t, 4, cfg.Learning.Workers)
	assert.Equal(t, 2, cfg.Learning.PreWarm.MinCount)
	assert.Equal(t, 30, cfg.Learning.Cleanup.MaxAgeDays)
	assert.Equal(t, 3, cfg.Cache.Quality.MinPositive)
	assert.False(t, cfg.Cache.ResetHitsOnRegenerate)
	assert.True(t, cfg.Search.Arxiv.Enabled)
	assert.False(t, cfg.IsDev())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
app:
  name: qm-test
  port: 9000
database:
  name: qm
  user: qm
redis:
  url: redis://localhost:6379/1
cache:
  ttl_hours: 6
  reset_hits_on_regenerate: true
learning:
  workers: 8
env: development
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qm-test", cfg.App.Name)
	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, 6, cfg.Cache.TTLHours)
	assert.True(t, cfg.Cache.ResetHitsOnRegenerate)
	assert.Equal(t, 8, cfg.Learning.Workers)
	assert.True(t, cfg.IsDev())
	// partially specified sections keep their defaults
	assert.Equal(t, 7, cfg.Learning.PreWarm.Days)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
database:
  name: qm
  user: qm
redis:
  url: redis://localhost:6379/0
no_such_section:
  key: value
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 99999
database:
  name: qm
  user: qm
redis:
  url: redis://localhost:6379/0
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "app.port")

	path = writeConfig(t, `
database:
  user: qm
redis:
  url: redis://localhost:6379/0
`)
	_, err = Load(path)
	assert.Error(t, err)

	path = writeConfig(t, `
database:
  name: qm
  user: qm
redis:
  url: redis://localhost:6379/0
archive:
  enabled: true
`)
	_, err = Load(path)
	assert.ErrorContains(t, err, "archive.s3")
}

func TestDSN(t *testing.T) {
	cfg := defaults()
	cfg.Database.User = "qm"
	cfg.Database.Password = "secret"
	cfg.Database.Name = "querymind"

	assert.Equal(t,
		"qm:secret@tcp(127.0.0.1:3306)/querymind?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DSN())
}
