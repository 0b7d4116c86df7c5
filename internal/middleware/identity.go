package middleware

// identity.go holds the accessors for values the middleware stores in the
// Echo context, plus the client key used for rate limiting.

import (
    "github.com/labstack/echo/v4"

    "github.com/bookfair/stallhub/internal/service"
)

// CurrentIdentity returns the identity set by BearerAuth.
func CurrentIdentity(c echo.Context) (*service.Identity, bool) {
    id, ok := c.Get(ctxIdentity).(*service.Identity)
    return id, ok && id != nil
}

// AccessToken returns the raw bearer token accepted by BearerAuth.
func AccessToken(c echo.Context) string {
    s, _ := c.Get(ctxAccessToken).(string)
    return s
}

// ClientKey identifies the caller for rate limiting.  It relies on the
// echo IPExtractor, so X-Forwarded-For is only honoured when the server
// was configured to trust it.
func ClientKey(c echo.Context) string {
    if ip := c.RealIP(); ip != "" {
        return ip
    }
    return "unknown"
}
