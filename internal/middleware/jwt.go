package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "strings" // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/bookfair/stallhub/internal/apperr"  // typed failures rendered by the error handler
    "github.com/bookfair/stallhub/internal/service" // Identity carried by a verified token
)

// Context keys set by BearerAuth.
const (
    ctxIdentity    = "identity"
    ctxAccessToken = "access_token"
)

// Authenticator verifies an access token without touching the store.
// *service.Sessions satisfies it.
type Authenticator interface {
    Authenticate(raw string) (*service.Identity, error)
}

// BearerAuth returns an Echo middleware that validates a Bearer access token
// and injects the verified identity into the request context.  Failures are
// returned as *apperr.Error so the central error handler renders them: a
// missing or malformed token is InvalidToken, a well-formed token past its
// exp claim is TokenExpired.  Handlers read the result with
// CurrentIdentity and AccessToken.
func BearerAuth(a Authenticator) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            // Expect "Authorization: Bearer <jwt>".  The scheme is matched
            // case-insensitively as RFC 6750 allows.
            auth := c.Request().Header.Get("Authorization")
            scheme, raw, ok := strings.Cut(auth, " ")
            if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
                return apperr.New(apperr.InvalidToken, "Access token is required")
            }
            raw = strings.TrimSpace(raw)

            id, err := a.Authenticate(raw)
            if err != nil {
                return err
            }
            c.Set(ctxIdentity, id)
            c.Set(ctxAccessToken, raw)
            return next(c)
        }
    }
}
