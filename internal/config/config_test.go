package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "STORE", "SQLITE_PATH", "PRESENCE_TIMEOUT", "CHANNEL_LOG_CAP", "SUBSCRIBER_BUFFER", "RATE_LIMIT_WHITELIST", "AUTO_BLOCK_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "./data/worldmorse.db", cfg.SQLitePath)
	assert.Equal(t, 60*time.Second, cfg.PresenceTimeout)
	assert.Equal(t, 1000, cfg.ChannelLogCap)
	assert.Equal(t, 64, cfg.SubscriberBuffer)
	assert.Empty(t, cfg.RateLimitWhitelist)
	assert.False(t, cfg.AutoBlockEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "staging")
	t.Setenv("STORE", "SQLite")
	t.Setenv("PRESENCE_TIMEOUT", "90s")
	t.Setenv("CHANNEL_LOG_CAP", "50")
	t.Setenv("SUBSCRIBER_BUFFER", "8")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.0/8, 127.0.0.1 ,")
	t.Setenv("AUTO_BLOCK_ENABLED", "true")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, 90*time.Second, cfg.PresenceTimeout)
	assert.Equal(t, 50, cfg.ChannelLogCap)
	assert.Equal(t, 8, cfg.SubscriberBuffer)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimitWhitelist)
	assert.True(t, cfg.AutoBlockEnabled)
}

func TestPresenceTimeoutMilliseconds(t *testing.T) {
	t.Setenv("PRESENCE_TIMEOUT", "30000")
	assert.Equal(t, 30*time.Second, Load().PresenceTimeout)

	t.Setenv("PRESENCE_TIMEOUT", "bogus")
	assert.Equal(t, 60*time.Second, Load().PresenceTimeout)
}

func TestProductionRequiresBackendURL(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	assert.Panics(t, func() { Load() })

	t.Setenv("STORE", "memory")
	assert.NotPanics(t, func() { Load() })
}
