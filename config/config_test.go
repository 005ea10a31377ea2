package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LEDGER_MODE", "local")
	cfg := Load()

	assert.Equal(t, "ipfs", cfg.ContentScheme)
	assert.Equal(t, "Polygon Mumbai", cfg.ChainName)
	assert.Equal(t, "local", cfg.LedgerMode)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("INDEX_TTL", "2m")
	t.Setenv("GATEWAY_URL", "https://gw.example.com/")

	cfg := Load()

	assert.Equal(t, 3, cfg.RedisDB)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, 2*time.Minute, cfg.IndexTTL)
	assert.Equal(t, "https://gw.example.com", cfg.GatewayURL)
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "three")
	t.Setenv("INDEX_TTL", "soon")

	cfg := Load()

	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 30*time.Second, cfg.IndexTTL)
}
