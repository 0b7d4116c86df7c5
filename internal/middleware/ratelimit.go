package middleware

import (
    "log"
    "math"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/bookfair/stallhub/internal/apperr"
    "github.com/bookfair/stallhub/internal/ratelimit"
)

// RateLimit counts every request against l, keyed by ClientKey.  A nil
// limiter disables the check.  When the store fails the request goes
// through and the error is logged.
func RateLimit(l *ratelimit.Limiter, message string, debug bool) echo.MiddlewareFunc {
    if l == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := ClientKey(c)
            d, err := l.Allow(c.Request().Context(), key)
            if err != nil {
                log.Printf("ratelimit: %v; allowing key=%s", err, key)
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
            h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
            if debug {
                h.Set("X-RateLimit-Key", l.Key(key))
            }

            if !d.Allowed {
                secs := int(math.Ceil(d.ResetIn.Seconds()))
                if secs < 0 {
                    secs = 0
                }
                h.Set("Retry-After", strconv.Itoa(secs))
                if debug {
                    log.Printf("ratelimit: block policy=%s key=%s retry=%ds", l.Policy.Name, key, secs)
                }
                return apperr.New(apperr.RateLimited, message)
            }
            return next(c)
        }
    }
}
