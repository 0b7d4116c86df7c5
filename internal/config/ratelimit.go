package config

import (
    "os"
    "strconv"
    "time"
)

// LimitPolicy is one request ceiling per window.
type LimitPolicy struct {
    Window time.Duration
    Max    int
}

type RateLimitConfig struct {
    Enabled bool
    General LimitPolicy // every request entering the gateway
    Auth    LimitPolicy // /api/auth/* on top of General
    Prefix  string
    Debug   bool
}

func LoadRateLimitConfig() RateLimitConfig {
    def := RateLimitConfig{
        Enabled: envBool("RATE_LIMIT_ENABLED", true),
        General: LimitPolicy{
            Window: envDur("RATE_LIMIT_WINDOW", 15*time.Minute),
            Max:    envInt("RATE_LIMIT_MAX", 100),
        },
        Auth: LimitPolicy{
            Window: envDur("AUTH_RATE_LIMIT_WINDOW", 15*time.Minute),
            Max:    envInt("AUTH_RATE_LIMIT_MAX", 20),
        },
        Prefix: envStr("RATE_LIMIT_PREFIX", "rl"),
        Debug:  envBool("RATE_LIMIT_DEBUG", false),
    }
    if def.General.Max < 1 {
        def.General.Max = 1
    }
    if def.Auth.Max < 1 {
        def.Auth.Max = 1
    }
    if def.General.Window <= 0 {
        def.General.Window = 15 * time.Minute
    }
    if def.Auth.Window <= 0 {
        def.Auth.Window = 15 * time.Minute
    }
    return def
}

func envStr(k, d string) string {
    if v := os.Getenv(k); v != "" {
        return v
    }
    return d
}

func envBool(k string, d bool) bool {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    switch v {
    case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
        return true
    case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
        return false
    }
    return d
}

func envInt(k string, d int) int {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if n, err := strconv.Atoi(v); err == nil {
        return n
    }
    return d
}

func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if dur, err := ParseDuration(v); err == nil {
        return dur
    }
    return d
}
