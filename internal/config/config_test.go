package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func setAuthEnv(t *testing.T) {
    t.Setenv("STORE_URL", "sqlite://:memory:")
    t.Setenv("JWT_SECRET", "access-secret")
    t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoadAuthDefaults(t *testing.T) {
    setAuthEnv(t)
    cfg, err := LoadAuth()
    require.NoError(t, err)
    assert.Equal(t, "3001", cfg.Port)
    assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
    assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
    assert.Equal(t, 10, cfg.BcryptCost)
    assert.Equal(t, time.Minute, cfg.PurgeInterval)
    assert.Equal(t, "bookfair", cfg.StoreDatabase)
    assert.False(t, cfg.IsDevelopment())
}

func TestLoadAuthOverrides(t *testing.T) {
    setAuthEnv(t)
    t.Setenv("APP_ENV", "development")
    t.Setenv("JWT_EXPIRE", "5m")
    t.Setenv("JWT_REFRESH_EXPIRE", "3d")
    t.Setenv("RABBITMQ_URL", "")
    t.Setenv("AMQP_URL", "amqp://broker/")
    cfg, err := LoadAuth()
    require.NoError(t, err)
    assert.True(t, cfg.IsDevelopment())
    assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
    assert.Equal(t, 72*time.Hour, cfg.RefreshTTL)
    assert.Equal(t, "amqp://broker/", cfg.BrokerURL)
}

func TestLoadAuthErrors(t *testing.T) {
    t.Run("missing required", func(t *testing.T) {
        t.Setenv("STORE_URL", "")
        t.Setenv("JWT_SECRET", "")
        t.Setenv("JWT_REFRESH_SECRET", "")
        _, err := LoadAuth()
        require.Error(t, err)
        assert.Contains(t, err.Error(), "STORE_URL")
        assert.Contains(t, err.Error(), "JWT_SECRET")
        assert.Contains(t, err.Error(), "JWT_REFRESH_SECRET")
    })
    t.Run("same secrets", func(t *testing.T) {
        setAuthEnv(t)
        t.Setenv("JWT_REFRESH_SECRET", "access-secret")
        _, err := LoadAuth()
        assert.ErrorContains(t, err, "must differ")
    })
    t.Run("bad values", func(t *testing.T) {
        setAuthEnv(t)
        t.Setenv("STORE_URL", "postgres://x")
        t.Setenv("BCRYPT_COST", "ten")
        t.Setenv("JWT_EXPIRE", "soon")
        _, err := LoadAuth()
        require.Error(t, err)
        assert.Contains(t, err.Error(), "unsupported scheme")
        assert.Contains(t, err.Error(), "BCRYPT_COST")
        assert.Contains(t, err.Error(), "JWT_EXPIRE")
    })
}

func TestLoadGateway(t *testing.T) {
    t.Setenv("STALL_SERVICE_URL", "http://stalls:8080/")
    t.Setenv("RATE_LIMIT_MAX", "50")
    t.Setenv("AUTH_RATE_LIMIT_WINDOW", "1m")
    t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
    cfg, err := LoadGateway()
    require.NoError(t, err)

    require.Len(t, cfg.Upstreams, 4)
    assert.Equal(t, Upstream{Name: "auth", URL: "http://localhost:3001", Path: "/api/auth"}, cfg.Upstreams[0])
    assert.Equal(t, "http://stalls:8080", cfg.Upstreams[1].URL)
    assert.Equal(t, "/api/notifications", cfg.Upstreams[3].Path)
    assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
    assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)

    assert.True(t, cfg.RateLimit.Enabled)
    assert.Equal(t, LimitPolicy{Window: 15 * time.Minute, Max: 50}, cfg.RateLimit.General)
    assert.Equal(t, LimitPolicy{Window: time.Minute, Max: 20}, cfg.RateLimit.Auth)

    t.Setenv("AUTH_SERVICE_URL", "localhost:3001")
    _, err = LoadGateway()
    assert.ErrorContains(t, err, "scheme must be http or https")
}

func TestParseDuration(t *testing.T) {
    cases := map[string]time.Duration{
        "15m": 15 * time.Minute,
        "7d":  7 * 24 * time.Hour,
        " 1d": 24 * time.Hour,
        "90s": 90 * time.Second,
    }
    for in, want := range cases {
        got, err := ParseDuration(in)
        require.NoError(t, err, in)
        assert.Equal(t, want, got, in)
    }
    _, err := ParseDuration("xd")
    assert.Error(t, err)
}

func TestRedisAndCacheConfig(t *testing.T) {
    t.Setenv("REDIS_ADDR", "")
    assert.False(t, LoadRedisConfig().Enabled)
    assert.Nil(t, NewRedisClient(LoadRedisConfig()))

    t.Setenv("REDIS_HOST", "cache")
    t.Setenv("REDIS_PORT", "6380")
    t.Setenv("REDIS_DB", "2")
    t.Setenv("REDIS_TLS", "1")
    rc := LoadRedisConfig()
    assert.Equal(t, RedisConfig{Enabled: true, Addr: "cache:6380", DB: 2, TLS: true}, rc)

    t.Setenv("CACHE_METHODS", "get, head")
    t.Setenv("CACHE_TTL", "bogus")
    cc := LoadCacheConfig()
    assert.True(t, cc.Methods["GET"])
    assert.True(t, cc.Methods["HEAD"])
    assert.Equal(t, time.Second, cc.TTL)
    assert.Equal(t, "/api/stalls", cc.PathPrefix)
}

func TestLoadDotEnv(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, ".env")
    require.NoError(t, os.WriteFile(path, []byte("STALLHUB_DOTENV_PROBE=from-file\n"), 0o600))
    t.Setenv("STALLHUB_DOTENV_PROBE", "")
    os.Unsetenv("STALLHUB_DOTENV_PROBE")

    require.NoError(t, LoadDotEnv(path))
    assert.Equal(t, "from-file", os.Getenv("STALLHUB_DOTENV_PROBE"))

    assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
