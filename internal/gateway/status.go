package gateway

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// health reports gateway liveness and the configured upstream URLs.  It
// does not probe the upstreams, so it stays 200 while they are down.
func (s *Server) health(c echo.Context) error {
	services := make(map[string]string, len(s.cfg.Upstreams))
	for _, u := range s.cfg.Upstreams {
		services[u.Name] = u.URL
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"message":   "API Gateway is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"services":  services,
	})
}

type upstreamView struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Path string `json:"path"`
}

func (s *Server) status(c echo.Context) error {
	out := make([]upstreamView, 0, len(s.cfg.Upstreams))
	for _, u := range s.cfg.Upstreams {
		out = append(out, upstreamView{Name: u.Name, URL: u.URL, Path: u.Path})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"message":  "All services configuration",
		"services": out,
	})
}
