package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg := FromEnv()

	assert.Equal(t, time.Hour, cfg.Auth.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.TrustTTL)
	assert.Equal(t, 10*time.Minute, cfg.Auth.CodeTTL)
	assert.Equal(t, "refreshToken", cfg.Auth.TrustCookieName)
	assert.Equal(t, "accessToken", cfg.Auth.AccessCookieName)
	assert.False(t, cfg.Auth.SecureCookies)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, RoutePolicy{MaxRequests: 5, Window: 15 * time.Minute}, cfg.RateLimit.Routes["/api/auth/login"])
	assert.Equal(t, RoutePolicy{MaxRequests: 3, Window: 5 * time.Minute}, cfg.RateLimit.Routes["/api/auth/verify-code"])
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestFromEnvRouteOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_ROUTES", "/api/auth/login=10:1m, /api/custom=2:30s")

	cfg := FromEnv()

	assert.Equal(t, RoutePolicy{MaxRequests: 10, Window: time.Minute}, cfg.RateLimit.Routes["/api/auth/login"])
	assert.Equal(t, RoutePolicy{MaxRequests: 2, Window: 30 * time.Second}, cfg.RateLimit.Routes["/api/custom"])
	assert.Equal(t, RoutePolicy{MaxRequests: 3, Window: 5 * time.Minute}, cfg.RateLimit.Routes["/api/auth/verify-code"])
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("MAIL_TIMEOUT", "-3s")
	t.Setenv("RATE_LIMIT_ROUTES", "/api/auth/login=zero:1m")

	cfg := FromEnv()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Mail.Timeout)
	assert.Equal(t, 5, cfg.RateLimit.Routes["/api/auth/login"].MaxRequests)
}

func TestParseRoutes(t *testing.T) {
	routes, err := ParseRoutes("/a=1:1s,/b=20:1h")
	require.NoError(t, err)
	assert.Len(t, routes, 2)
	assert.Equal(t, RoutePolicy{MaxRequests: 20, Window: time.Hour}, routes["/b"])

	for _, bad := range []string{"a=1:1s", "/a=1", "/a=0:1s", "/a=1:forever", "/a"} {
		_, err := ParseRoutes(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("RATE_LIMIT_BACKEND", "redis")

	err := FromEnv().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "REDIS_URL")
	assert.Contains(t, err.Error(), "MAIL_TRANSPORT=log")

	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("RATE_LIMIT_BACKEND", "memory")
	assert.NoError(t, FromEnv().Validate())
}
