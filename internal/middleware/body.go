package middleware

import (
    "bytes"
    "encoding/json"
    "errors"
    "io"
    "mime"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/bookfair/stallhub/internal/apperr"
)

const (
    ctxJSONBody    = "json_body"
    ctxHasJSONBody = "json_body_present"
)

// ParseJSONBody reads and decodes application/json request bodies at the
// edge.  The decoded value is kept in the context for the proxy, which must
// re-encode it because the original stream has been consumed.  Malformed
// JSON is rejected before any upstream sees it.
func ParseJSONBody() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            req := c.Request()
            if req.Body == nil || req.Body == http.NoBody || !isJSON(req.Header.Get(echo.HeaderContentType)) {
                return next(c)
            }
            raw, err := io.ReadAll(req.Body)
            _ = req.Body.Close()
            if err != nil {
                // BodyLimit reports an oversized body through the reader
                var he *echo.HTTPError
                if errors.As(err, &he) {
                    return he
                }
                return apperr.Wrap(apperr.Validation, "Could not read request body", err)
            }
            if len(bytes.TrimSpace(raw)) == 0 {
                req.Body = http.NoBody
                return next(c)
            }
            v, err := decodeJSON(raw)
            if err != nil {
                return apperr.Wrap(apperr.Validation, "Invalid JSON body", err)
            }
            c.Set(ctxJSONBody, v)
            c.Set(ctxHasJSONBody, true)
            req.Body = http.NoBody
            req.ContentLength = 0
            return next(c)
        }
    }
}

// ParsedBody returns the value decoded by ParseJSONBody.  The flag is true
// for any decoded body, including a literal null.
func ParsedBody(c echo.Context) (any, bool) {
    has, _ := c.Get(ctxHasJSONBody).(bool)
    return c.Get(ctxJSONBody), has
}

// decodeJSON decodes a single JSON value.  Numbers stay json.Number so they
// encode back to the same literal.
func decodeJSON(raw []byte) (any, error) {
    dec := json.NewDecoder(bytes.NewReader(raw))
    dec.UseNumber()
    var v any
    if err := dec.Decode(&v); err != nil {
        return nil, err
    }
    if _, err := dec.Token(); err != io.EOF {
        return nil, errors.New("unexpected data after JSON value")
    }
    return v, nil
}

func isJSON(ct string) bool {
    mt, _, err := mime.ParseMediaType(ct)
    return err == nil && (mt == echo.MIMEApplicationJSON || strings.HasSuffix(mt, "+json"))
}
