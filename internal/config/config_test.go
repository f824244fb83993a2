package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuildsURLFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "marketing")
	t.Setenv("MAIN_ADMIN_EMAIL", " Admin@Example.com ")
	t.Setenv("EMAIL_PROVIDER", "smtp")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_CONN_MAX_LIFETIME", "5m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AUTH_JWT_SECRET", "jwt-secret")
	t.Setenv("AUTH_AUDIENCE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=marketing sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "admin@example.com", cfg.MainAdminEmail)
	assert.Equal(t, "smtp", cfg.EmailProvider)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "jwt-secret", cfg.AuthJWTSecret)
	assert.Equal(t, "authenticated", cfg.AuthAudience)
}

func TestLoadRequiresMainAdmin(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/marketing")
	t.Setenv("MAIN_ADMIN_EMAIL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/marketing")
	t.Setenv("MAIN_ADMIN_EMAIL", "admin@example.com")
	t.Setenv("EMAIL_PROVIDER", "carrier-pigeon")

	_, err := Load()
	assert.Error(t, err)
}
