package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bookfair/stallhub/internal/apperr"
	"github.com/bookfair/stallhub/internal/config"
	"github.com/bookfair/stallhub/internal/middleware"
)

// hopHeaders apply to a single connection and are not forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func newUpstreamClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 32
	return &http.Client{
		Transport: tr,
		// redirects belong to the client, not the gateway
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

// proxy forwards the request to u keeping method, path, query and headers.
// A JSON body already decoded by ParseJSONBody is encoded again, since the
// original stream was consumed at the edge.  Numbers keep their literal
// form and a null body is still sent.
func (s *Server) proxy(u config.Upstream) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		target := u.URL + req.URL.RequestURI()

		var (
			body   io.Reader = req.Body
			length           = req.ContentLength
		)
		parsed, hasJSON := middleware.ParsedBody(c)
		if hasJSON {
			bs, err := encodeJSON(parsed)
			if err != nil {
				return apperr.Wrap(apperr.Internal, "Could not encode request body", err)
			}
			body, length = bytes.NewReader(bs), int64(len(bs))
		} else if length == 0 {
			body = http.NoBody
		}

		ctx, cancel := context.WithTimeout(req.Context(), s.cfg.UpstreamTimeout)
		defer cancel()

		out, err := http.NewRequestWithContext(ctx, req.Method, target, body)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "Could not build upstream request", err)
		}
		copyHeader(out.Header, req.Header)
		removeHopHeaders(out.Header)
		out.ContentLength = length
		if hasJSON {
			out.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		}
		out.Header.Del(echo.HeaderContentLength)
		setForwarded(out, c)

		start := time.Now()
		resp, err := s.client.Do(out)
		if err != nil {
			log.Printf("gateway: %s upstream %s %s failed after %s: %v", u.Name, req.Method, req.URL.Path, time.Since(start).Round(time.Millisecond), err)
			return apperr.Wrap(apperr.UpstreamUnavailable, serviceTitle(u.Name)+" service is currently unavailable", err)
		}
		defer resp.Body.Close()

		removeHopHeaders(resp.Header)
		replaceHeader(c.Response().Header(), resp.Header)
		c.Response().WriteHeader(resp.StatusCode)
		if _, err := io.Copy(c.Response(), resp.Body); err != nil {
			// headers are out; all that is left is to record the cut
			log.Printf("gateway: %s upstream %s %s: copy body: %v", u.Name, req.Method, req.URL.Path, err)
		}
		return nil
	}
}

func copyHeader(dst, src http.Header) {
	for k, vals := range src {
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}

// replaceHeader copies src into dst, dropping any value dst already held
// for the same key.  The upstream answer wins over headers the gateway
// middleware set on the way in.
func replaceHeader(dst, src http.Header) {
	for k, vals := range src {
		dst.Del(k)
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// removeHopHeaders drops the fixed hop-by-hop set and any header named in
// Connection.
func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// setForwarded appends the client address to X-Forwarded-For and passes
// the request id on.
func setForwarded(out *http.Request, c echo.Context) {
	req := c.Request()
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := req.Header.Values(echo.HeaderXForwardedFor); len(prior) > 0 {
			host = strings.Join(prior, ", ") + ", " + host
		}
		out.Header.Set(echo.HeaderXForwardedFor, host)
	}
	out.Header.Set("X-Forwarded-Host", req.Host)
	out.Header.Set(echo.HeaderXForwardedProto, c.Scheme())
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		out.Header.Set(echo.HeaderXRequestID, id)
	}
}

// serviceTitle turns "stall" into "Stall".
func serviceTitle(name string) string {
	if name == "" {
		return "Upstream"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
