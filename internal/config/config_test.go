package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "")
	t.Setenv("ARGON2_MEMORY_KB", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/auth", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, uint32(64*1024), cfg.Argon2.MemoryKB)
	assert.Equal(t, uint32(16), cfg.Argon2.SaltLength)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "5")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "30")
	t.Setenv("RUN_MIGRATIONS_ON_STARTUP", "yes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenTTL)
	assert.True(t, cfg.RunMigrationsOnStart)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-3")
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", testSecret)

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("JWT_SECRET", "  ")

	_, err = Load()
	require.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoad_ShortSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	require.ErrorContains(t, err, "at least 32 bytes")
}

func TestEnvBoolOrDefault(t *testing.T) {
	t.Setenv("FLAG", "off")
	assert.False(t, EnvBoolOrDefault("FLAG", true))

	t.Setenv("FLAG", "maybe")
	assert.True(t, EnvBoolOrDefault("FLAG", true))

	t.Setenv("FLAG", "")
	assert.False(t, EnvBoolOrDefault("FLAG", false))
}
