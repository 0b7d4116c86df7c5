package middleware // middleware provides shared request processing for handlers

import (
    "github.com/labstack/echo/v4" // echo provides middleware chaining and context

    "github.com/bookfair/stallhub/internal/apperr"
    "github.com/bookfair/stallhub/internal/model"
)

// RequireRole returns a middleware function that enforces that the
// authenticated user has one of the specified roles.  It must run after
// BearerAuth; a request without a verified identity is rejected as
// unauthenticated, one with a role outside the set as forbidden.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
    allowed := make(map[model.Role]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id, ok := CurrentIdentity(c)
            if !ok {
                return apperr.New(apperr.InvalidToken, "Unauthorized")
            }
            if !allowed[id.Role] {
                return apperr.New(apperr.Forbidden, "Access denied: Insufficient permissions")
            }
            return next(c)
        }
    }
}
