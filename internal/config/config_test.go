package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	conf, err := Load(writeConfig(t, "env: local\n"))
	require.NoError(t, err)

	assert.Equal(t, "8080", conf.Listen.Port)
	assert.Equal(t, "local", conf.Storage.Provider)
	assert.False(t, conf.Mongo.Enabled)
	assert.Equal(t, 30, conf.Limits.RateLimitRequests)
	assert.Equal(t, time.Minute, conf.Limits.RateLimitWindow)
	assert.Equal(t, 3*time.Second, conf.Limits.StoreTimeout)
	assert.Equal(t, uint(3), conf.Limits.StoreRetries)
}

func TestLoadOverrides(t *testing.T) {
	conf, err := Load(writeConfig(t, `
env: prod
listen:
  port: "9000"
mongo:
  enabled: true
  database: events
telegram:
  enabled: true
  api_key: "123:abc"
  admin_ids: [1, 2]
limits:
  store_timeout: 2s
`))
	require.NoError(t, err)

	assert.Equal(t, "prod", conf.Env)
	assert.Equal(t, "9000", conf.Listen.Port)
	assert.True(t, conf.Mongo.Enabled)
	assert.Equal(t, "events", conf.Mongo.Database)
	assert.Equal(t, []int64{1, 2}, conf.Telegram.AdminIds)
	assert.Equal(t, 2*time.Second, conf.Limits.StoreTimeout)
}

func TestLoadRejectsIncompleteDrive(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  provider: drive\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials_file")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  provider: s3\n"))
	require.Error(t, err)
}

func TestLoadRequiresTelegramKey(t *testing.T) {
	_, err := Load(writeConfig(t, "telegram:\n  enabled: true\n"))
	require.Error(t, err)
}

func TestLoadRejectsTwoDatabases(t *testing.T) {
	_, err := Load(writeConfig(t, "mongo:\n  enabled: true\nmysql:\n  enabled: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")
}

func TestLoadMySQL(t *testing.T) {
	conf, err := Load(writeConfig(t, "mysql:\n  enabled: true\n  user: app\n  prefix: mm_\n"))
	require.NoError(t, err)
	assert.True(t, conf.MySQL.Enabled)
	assert.Equal(t, "3306", conf.MySQL.Port)
	assert.Equal(t, "momento", conf.MySQL.Database)
	assert.Equal(t, "mm_", conf.MySQL.Prefix)
}
