package router // package router wires the identity service's HTTP surface

import (
    "github.com/labstack/echo/v4"                   // Echo web framework to handle routing
    echomw "github.com/labstack/echo/v4/middleware" // echo's built-in middleware (recover, request id)

    "github.com/bookfair/stallhub/internal/handler"    // handlers that implement the endpoints
    "github.com/bookfair/stallhub/internal/middleware" // bearer and role guards, request log
    "github.com/bookfair/stallhub/internal/model"
)

// Options configures the identity service engine.
type Options struct {
    Dev        bool // expose internal error detail
    TrustProxy bool // take the client IP from X-Forwarded-For
}

// NewAuthServer returns an Echo instance with the shared middleware chain,
// error handler and validator installed but no routes.
func NewAuthServer(opts Options) *echo.Echo {
    e := echo.New()
    e.HideBanner = true
    e.HidePort = true
    e.HTTPErrorHandler = handler.ErrorHandler(opts.Dev)
    e.Validator = handler.NewValidator()
    if opts.TrustProxy {
        e.IPExtractor = echo.ExtractIPFromXFFHeader()
    } else {
        e.IPExtractor = echo.ExtractIPDirect()
    }

    e.Use(echomw.Recover())
    e.Use(echomw.RequestID())
    e.Use(middleware.RequestLog("auth"))
    e.RouteNotFound("/*", handler.NotFound)
    return e
}

// RegisterAuth registers the auth routes.  The order of checks on a
// protected route is bearer token, then role, then the handler.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, authn middleware.Authenticator, store handler.Pinger) {
    e.GET("/health", handler.Health(store))

    // Operations that do not need an existing session.
    g := e.Group("/api/auth")
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    g.POST("/employee/login", a.EmployeeLogin)
    g.POST("/refresh", a.Refresh)
    g.POST("/logout", a.Logout)

    // Protected endpoints.
    bearer := middleware.BearerAuth(authn)
    g.GET("/verify", a.Verify, bearer)
    g.GET("/profile", a.Profile, bearer)

    // Account administration.
    admin := g.Group("/users", bearer, middleware.RequireRole(model.RoleAdmin))
    admin.PATCH("/:id/status", a.SetStatus)
}
