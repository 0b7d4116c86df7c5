package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/bookfair/stallhub/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
    http.ResponseWriter
    status int
    buf    bytes.Buffer
    size   int64
    limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
    cw.status = code
    cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
    if cw.limit <= 0 || cw.size < cw.limit {
        remain := cw.limit - cw.size
        if cw.limit <= 0 {
            cw.buf.Write(b)
        } else if remain > 0 {
            if int64(len(b)) <= remain {
                cw.buf.Write(b)
            } else {
                cw.buf.Write(b[:remain])
            }
        }
    }
    cw.size += int64(len(b))
    return cw.ResponseWriter.Write(b)
}

// cacheKeyFrom hashes method, path and raw query.  The gateway has no
// route patterns below the upstream prefix, so the concrete path is used.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    tail := strings.Join([]string{"method", r.Method, "path", r.URL.Path, "q", r.URL.RawQuery}, ":")
    sum := sha1.Sum([]byte(tail))
    return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
    hdrJSON, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8+len(hdrJSON)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
    copy(out[8:8+len(hdrJSON)], hdrJSON)
    copy(out[8+len(hdrJSON):], body)
    return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
    if len(bs) < 8 {
        return 0, nil, nil, false
    }
    status = int(binary.BigEndian.Uint32(bs[0:4]))
    hlen := int(binary.BigEndian.Uint32(bs[4:8]))
    if hlen < 0 || 8+hlen > len(bs) {
        return 0, nil, nil, false
    }
    hdr := make(http.Header)
    if hlen > 0 {
        if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
            return 0, nil, nil, false
        }
    }
    return status, hdr, bs[8+hlen:], true
}

// cacheable reports whether the request may be served from or stored in
// the cache: a configured method, below the cached prefix, and anonymous.
// Authenticated reads may be personalised by the upstream.
func cacheable(cfg config.CacheConfig, r *http.Request) bool {
    if !cfg.Methods[strings.ToUpper(r.Method)] {
        return false
    }
    if r.Header.Get(echo.HeaderAuthorization) != "" {
        return false
    }
    p := strings.TrimRight(cfg.PathPrefix, "/")
    return r.URL.Path == p || strings.HasPrefix(r.URL.Path, p+"/")
}

// skipHeaders are never replayed from the cache.
var skipHeaders = map[string]bool{
    "Content-Length":        true,
    "X-Cache":               true,
    "X-Request-Id":          true,
    "X-Ratelimit-Limit":     true,
    "X-Ratelimit-Remaining": true,
    "Retry-After":           true,
}

// storable reports whether a response may be shared between clients.
// Cookies, private or no-store responses and Vary: * are never cached.
func storable(h http.Header) bool {
    if len(h.Values("Set-Cookie")) > 0 {
        return false
    }
    for _, v := range h.Values("Cache-Control") {
        for _, d := range strings.Split(v, ",") {
            d = strings.ToLower(strings.TrimSpace(d))
            if d == "no-store" || d == "private" || strings.HasPrefix(d, "private=") {
                return false
            }
        }
    }
    for _, v := range h.Values("Vary") {
        for _, f := range strings.Split(v, ",") {
            if strings.TrimSpace(f) == "*" {
                return false
            }
        }
    }
    return true
}

// addedHeaders returns the keys of after whose values differ from before,
// leaving out skipHeaders.  Headers the outer middleware set before the
// handler ran are not part of the stored response.
func addedHeaders(before, after http.Header) http.Header {
    out := make(http.Header)
    for k, vals := range after {
        if skipHeaders[http.CanonicalHeaderKey(k)] {
            continue
        }
        if sameValues(before[k], vals) {
            continue
        }
        out[k] = append([]string(nil), vals...)
    }
    return out
}

func sameValues(a, b []string) bool {
    if len(a) != len(b) {
        return false
    }
    for i := range a {
        if a[i] != b[i] {
            return false
        }
    }
    return true
}

// NewRedisCache stores status, headers and body of successful upstream
// reads so a hit replays the exact response.  X-Cache reports HIT or MISS.
// Only the headers written by the wrapped handler are stored, and a hit
// replaces rather than appends to headers already on the response.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 30 * time.Second
    }

    maxBody := int64(cfg.MaxBodyBytes)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !cacheable(cfg, c.Request()) {
                return next(c)
            }

            ctx := c.Request().Context()
            key := cacheKeyFrom(cfg, c)

            if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
                if status, hdr, body, ok := decodePayload(bs); ok {
                    h := c.Response().Header()
                    for k, vals := range hdr {
                        if skipHeaders[http.CanonicalHeaderKey(k)] {
                            continue
                        }
                        h.Del(k)
                        for _, v := range vals {
                            h.Add(k, v)
                        }
                    }
                    h.Set("X-Cache", "HIT")
                    c.Response().WriteHeader(status)
                    if len(body) > 0 {
                        _, _ = c.Response().Write(body)
                    }
                    return nil
                }
            }

            before := c.Response().Header().Clone()
            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
            c.Response().Writer = cw
            c.Response().Header().Set("X-Cache", "MISS")

            if err := next(c); err != nil {
                return err
            }

            // a truncated body must not be replayed
            if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
                return nil
            }
            if !storable(c.Response().Header()) {
                return nil
            }
            hdr := addedHeaders(before, c.Response().Header())
            if payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes()); err == nil {
                _ = rdb.SetEx(context.Background(), key, payload, ttl).Err()
            }
            return nil
        }
    }
}
