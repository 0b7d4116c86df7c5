package config

import (
    "strconv"
    "strings"
    "time"
)

// CacheConfig controls the gateway response cache for anonymous reads of
// the stall catalogue.  It needs Redis; without a client caching is off.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool
    TTL          time.Duration
    Prefix       string
    PathPrefix   string // only requests below this path are cached
    MaxBodyBytes int
}

func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
        TTL:          parseDur(envStr("CACHE_TTL", "30s")),
        Prefix:       envStr("CACHE_PREFIX", "cache"),
        PathPrefix:   envStr("CACHE_PATH_PREFIX", "/api/stalls"),
        MaxBodyBytes: atoi(envStr("CACHE_MAX_BODY_BYTES", "1048576")),
    }
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range strings.Split(s, ",") {
        p = strings.TrimSpace(strings.ToUpper(p))
        if p != "" {
            m[p] = true
        }
    }
    return m
}

func atoi(s string) int {
    i, _ := strconv.Atoi(s)
    return i
}

func parseDur(s string) time.Duration {
    d, err := ParseDuration(s)
    if err != nil || d <= 0 {
        return time.Second
    }
    return d
}
