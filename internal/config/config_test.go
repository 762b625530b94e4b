package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "shop.db")
	cfg, err := Parse([]byte("database:\n  path: " + dbPath + "\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30, cfg.SlotGranularity())
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, time.Duration(0), cfg.MinAdvance())
	assert.Equal(t, 60*24*time.Hour, cfg.MaxAdvance())
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes())

	perMin, burst := cfg.RateLimit()
	assert.Equal(t, 60, perMin)
	assert.Equal(t, 10, burst)

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err, "database directory is created")
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_ADMIN_KEY", "secret")
	t.Setenv("TEST_DB_DIR", t.TempDir())

	data := `
database:
  path: ${TEST_DB_DIR}/shop.db
api:
  admin_key: ${TEST_ADMIN_KEY}
shop:
  timezone: America/New_York
  slot_granularity_minutes: 15
  min_advance_minutes: 120
  max_advance_days: 14
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.API.AdminKey)
	assert.Equal(t, "America/New_York", cfg.Location().String())
	assert.Equal(t, 15, cfg.SlotGranularity())
	assert.Equal(t, 2*time.Hour, cfg.MinAdvance())
	assert.Equal(t, 14*24*time.Hour, cfg.MaxAdvance())
}

func TestParse_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data string
	}{
		{"bad timezone", "database:\n  path: " + dir + "/a.db\nshop:\n  timezone: Mars/Olympus\n"},
		{"granularity not dividing a day", "database:\n  path: " + dir + "/a.db\nshop:\n  slot_granularity_minutes: 7\n"},
		{"telegram without chat", "database:\n  path: " + dir + "/a.db\ntelegram:\n  bot_token: abc\n"},
		{"bad digest time", "database:\n  path: " + dir + "/a.db\ntelegram:\n  digest_time: 7pm\n"},
		{"bad yaml", "shop: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, "configs/config.yaml", Path())

	t.Setenv(EnvConfigPath, "/etc/barbershop.yaml")
	assert.Equal(t, "/etc/barbershop.yaml", Path())
}
