package config // package config loads both processes' configuration from environment variables

import (
    "errors"  // joined validation errors
    "fmt"     // error messages
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "strings" // prefix checks and trimming
    "time"    // token lifetimes and intervals

    "github.com/joho/godotenv" // optional .env seeding
)

// AuthConfig holds runtime configuration for the identity service.  Each
// field corresponds to an environment variable.
type AuthConfig struct {
    Env              string        // "development" exposes error detail in 500 bodies
    Port             string        // HTTP port to listen on
    StoreURL         string        // mysql://..., sqlite://... or mongodb://...
    StoreDatabase    string        // database name used by the Mongo store
    JWTSecret        string        // access token signing secret
    JWTRefreshSecret string        // refresh token signing secret, must differ
    AccessTTL        time.Duration // access token lifetime
    RefreshTTL       time.Duration // refresh token lifetime
    BcryptCost       int           // bcrypt cost for password hashing
    PurgeInterval    time.Duration // SQL refresh-token sweeper interval
    BrokerURL        string        // RabbitMQ; empty disables auth events
    AuditLogPath     string        // audit consumer output; empty disables the consumer
}

// Upstream is one proxied service.
type Upstream struct {
    Name string // "auth", "stall", ...
    URL  string // base URL, no trailing slash
    Path string // path prefix owned by the upstream, e.g. "/api/stalls"
}

// GatewayConfig holds runtime configuration for the gateway.
type GatewayConfig struct {
    Env             string
    Port            string
    Upstreams       []Upstream // fixed order: auth, stall, reservation, notification
    UpstreamTimeout time.Duration
    TrustProxy      bool     // take the client IP from X-Forwarded-For
    CORSOrigins     []string
    BodyLimit       string   // echo BodyLimit size, e.g. "1M"
    RateLimit       RateLimitConfig
    Redis           RedisConfig
    Cache           CacheConfig
}

// IsDevelopment reports whether APP_ENV=development.
func (c AuthConfig) IsDevelopment() bool { return c.Env == "development" }

// IsDevelopment reports whether APP_ENV=development.
func (c GatewayConfig) IsDevelopment() bool { return c.Env == "development" }

// LoadDotEnv seeds the environment from the given files (".env" when none)
// without overriding variables that are already set.  A missing file is not
// an error.
func LoadDotEnv(files ...string) error {
    if len(files) == 0 {
        files = []string{".env"}
    }
    var existing []string
    for _, f := range files {
        if _, err := os.Stat(f); err == nil {
            existing = append(existing, f)
        }
    }
    if len(existing) == 0 {
        return nil
    }
    return godotenv.Load(existing...)
}

// LoadAuth reads the identity service configuration.  Every missing or
// malformed variable is reported in the returned error.
func LoadAuth() (AuthConfig, error) {
    var errs []error
    cfg := AuthConfig{
        Env:              envStr("APP_ENV", "production"),
        Port:             envStr("AUTH_PORT", "3001"),
        StoreURL:         must("STORE_URL", &errs),
        StoreDatabase:    envStr("STORE_DATABASE", "bookfair"),
        JWTSecret:        must("JWT_SECRET", &errs),
        JWTRefreshSecret: must("JWT_REFRESH_SECRET", &errs),
        AccessTTL:        durVar("JWT_EXPIRE", 15*time.Minute, &errs),
        RefreshTTL:       durVar("JWT_REFRESH_EXPIRE", 7*24*time.Hour, &errs),
        BcryptCost:       intVar("BCRYPT_COST", 10, &errs),
        PurgeInterval:    durVar("TOKEN_PURGE_INTERVAL", time.Minute, &errs),
        BrokerURL:        envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
        AuditLogPath:     os.Getenv("AUDIT_LOG_PATH"),
    }
    if cfg.JWTSecret != "" && cfg.JWTSecret == cfg.JWTRefreshSecret {
        errs = append(errs, errors.New("JWT_REFRESH_SECRET must differ from JWT_SECRET"))
    }
    if cfg.StoreURL != "" && !knownStore(cfg.StoreURL) {
        errs = append(errs, errors.New("STORE_URL: unsupported scheme"))
    }
    if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
        errs = append(errs, errors.New("token lifetimes must be positive"))
    }
    return cfg, errors.Join(errs...)
}

// LoadGateway reads the gateway configuration.
func LoadGateway() (GatewayConfig, error) {
    var errs []error
    cfg := GatewayConfig{
        Env:  envStr("APP_ENV", "production"),
        Port: envStr("PORT", "3000"),
        Upstreams: []Upstream{
            {Name: "auth", URL: upstreamURL("AUTH_SERVICE_URL", "http://localhost:3001"), Path: "/api/auth"},
            {Name: "stall", URL: upstreamURL("STALL_SERVICE_URL", "http://localhost:3002"), Path: "/api/stalls"},
            {Name: "reservation", URL: upstreamURL("RESERVATION_SERVICE_URL", "http://localhost:3003"), Path: "/api/reservations"},
            {Name: "notification", URL: upstreamURL("NOTIFICATION_SERVICE_URL", "http://localhost:3004"), Path: "/api/notifications"},
        },
        UpstreamTimeout: durVar("UPSTREAM_TIMEOUT", 10*time.Second, &errs),
        TrustProxy:      envBool("TRUST_PROXY", false),
        CORSOrigins:     splitList(envStr("CORS_ORIGINS", "*")),
        BodyLimit:       envStr("BODY_LIMIT", "1M"),
        RateLimit:       LoadRateLimitConfig(),
        Redis:           LoadRedisConfig(),
        Cache:           LoadCacheConfig(),
    }
    for _, u := range cfg.Upstreams {
        if !strings.HasPrefix(u.URL, "http://") && !strings.HasPrefix(u.URL, "https://") {
            errs = append(errs, fmt.Errorf("%s service url %q: scheme must be http or https", u.Name, u.URL))
        }
    }
    return cfg, errors.Join(errs...)
}

func knownStore(url string) bool {
    for _, p := range []string{"mysql://", "sqlite://", "mongodb://", "mongodb+srv://"} {
        if strings.HasPrefix(url, p) {
            return true
        }
    }
    return false
}

func upstreamURL(key, def string) string {
    return strings.TrimRight(envStr(key, def), "/")
}

// must retrieves the value of a required environment variable, recording
// an error when it is unset or empty.
func must(key string, errs *[]error) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        *errs = append(*errs, fmt.Errorf("missing required env var: %s", key))
    }
    return v
}

func intVar(key string, def int, errs *[]error) int {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    n, err := strconv.Atoi(v)
    if err != nil {
        *errs = append(*errs, fmt.Errorf("invalid int for %s: %q", key, v))
        return def
    }
    return n
}

func durVar(key string, def time.Duration, errs *[]error) time.Duration {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    d, err := ParseDuration(v)
    if err != nil {
        *errs = append(*errs, fmt.Errorf("invalid duration for %s: %q", key, v))
        return def
    }
    return d
}

// ParseDuration accepts Go durations plus a whole-day suffix ("7d").
func ParseDuration(s string) (time.Duration, error) {
    s = strings.TrimSpace(s)
    if days, ok := strings.CutSuffix(s, "d"); ok {
        n, err := strconv.Atoi(days)
        if err != nil {
            return 0, fmt.Errorf("invalid day count %q", s)
        }
        return time.Duration(n) * 24 * time.Hour, nil
    }
    return time.ParseDuration(s)
}

func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
