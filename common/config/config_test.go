package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen.Addr())
	assert.Equal(t, "nats://localhost:4222", cfg.Nats.URL())
	assert.Contains(t, cfg.PgSql.ConnStr(), "host=localhost")
	assert.Contains(t, cfg.PgSql.ConnStr(), "sslmode=disable")
	assert.Equal(t, uint(10000), cfg.Render.WaitMillis)
	assert.Equal(t, 90*time.Second, cfg.Render.Timeout)
	assert.Equal(t, "@every 6h", cfg.Drip.CronSpec)
	assert.True(t, cfg.Drip.Enabled)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LISTEN_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("RENDER_API_KEY", "zr-key")
	t.Setenv("RENDER_TIMEOUT_SECONDS", "120")
	t.Setenv("DRIP_ENABLED", "false")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("NATS_PORT", "14222")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, uint(9090), cfg.Listen.Port)
	assert.Equal(t, "db.internal", cfg.PgSql.Host)
	assert.Equal(t, "zr-key", cfg.Render.APIKey)
	assert.Equal(t, 120*time.Second, cfg.Render.Timeout)
	assert.False(t, cfg.Drip.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "nats://localhost:14222", cfg.Nats.URL())
}

func TestLoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("LISTEN_PORT", "not-a-port")
	t.Setenv("DRIP_ENABLED", "maybe")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, uint(8080), cfg.Listen.Port)
	assert.True(t, cfg.Drip.Enabled)
}
