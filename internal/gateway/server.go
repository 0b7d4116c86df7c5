// Package gateway is the single ingress of the platform.  It applies the
// rate-limit policies, forwards each path group to its upstream service and
// turns upstream failures into a uniform 503.
package gateway

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/bookfair/stallhub/internal/config"
	"github.com/bookfair/stallhub/internal/handler"
	"github.com/bookfair/stallhub/internal/middleware"
	"github.com/bookfair/stallhub/internal/ratelimit"
)

const (
	generalLimitMessage = "Too many requests from this IP, please try again later"
	authLimitMessage    = "Too many authentication attempts, please try again later"
)

// Server is the gateway HTTP server.
type Server struct {
	cfg     config.GatewayConfig
	echo    *echo.Echo
	client  *http.Client
	store   ratelimit.CounterStore
	general *ratelimit.Limiter
	auth    *ratelimit.Limiter

	ownStore *ratelimit.MemoryStore // created here when no store was passed
}

// New builds the gateway.  store holds the rate-limit counters; nil means
// an in-process MemoryStore owned by the server.  rdb backs the stall
// response cache and may be nil.
func New(cfg config.GatewayConfig, store ratelimit.CounterStore, rdb *redis.Client) *Server {
	s := &Server{cfg: cfg, store: store}
	if s.store == nil {
		s.ownStore = ratelimit.NewMemoryStore(time.Minute)
		s.store = s.ownStore
	}
	if cfg.UpstreamTimeout <= 0 {
		s.cfg.UpstreamTimeout = 10 * time.Second
	}
	s.client = newUpstreamClient()

	rl := cfg.RateLimit
	if rl.Enabled {
		s.general = ratelimit.New(ratelimit.Policy{Name: "general", Window: rl.General.Window, Max: rl.General.Max}, s.store, rl.Prefix)
		s.auth = ratelimit.New(ratelimit.Policy{Name: "auth", Window: rl.Auth.Window, Max: rl.Auth.Max}, s.store, rl.Prefix)
	}

	s.echo = s.newEcho(rdb)
	return s
}

func (s *Server) newEcho(rdb *redis.Client) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(s.cfg.IsDevelopment())
	if s.cfg.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLog("gateway"))
	e.Use(echomw.Secure())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: s.cfg.CORSOrigins}))
	if s.cfg.BodyLimit != "" {
		e.Use(echomw.BodyLimit(s.cfg.BodyLimit))
	}
	// every request counts against the general policy, matched or not
	e.Use(middleware.RateLimit(s.general, generalLimitMessage, s.cfg.RateLimit.Debug))

	e.GET("/health", s.health)
	e.GET("/api/status", s.status)

	for _, u := range s.cfg.Upstreams {
		var mws []echo.MiddlewareFunc
		switch u.Name {
		case "auth":
			mws = append(mws, middleware.RateLimit(s.auth, authLimitMessage, s.cfg.RateLimit.Debug))
		case "stall":
			mws = append(mws, middleware.NewRedisCache(s.cfg.Cache, rdb))
		}
		mws = append(mws, middleware.ParseJSONBody())

		g := e.Group(u.Path, mws...)
		h := s.proxy(u)
		g.Any("", h)
		g.Any("/*", h)
	}

	e.RouteNotFound("/*", handler.NotFound)
	return e
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	log.Printf("gateway: listening on %s", addr)
	for _, u := range s.cfg.Upstreams {
		log.Printf("gateway: route %s -> %s (%s)", u.Path, u.URL, u.Name)
	}
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and releases the counter store if the
// server created it.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if s.ownStore != nil {
		_ = s.ownStore.Close()
	}
	s.client.CloseIdleConnections()
	return err
}
