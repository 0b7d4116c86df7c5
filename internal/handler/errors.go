package handler

import (
    "errors"
    "log"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/bookfair/stallhub/internal/apperr"
)

// StatusOf maps a failure kind to its HTTP status.
func StatusOf(k apperr.Kind) int {
    switch k {
    case apperr.Validation, apperr.MissingInput, apperr.DuplicateIdentity, apperr.InvalidRole:
        return http.StatusBadRequest
    case apperr.InvalidCredentials, apperr.InvalidToken, apperr.TokenExpired, apperr.TokenNotFound:
        return http.StatusUnauthorized
    case apperr.AccountDisabled, apperr.WrongLoginChannel, apperr.Forbidden:
        return http.StatusForbidden
    case apperr.UserUnavailable, apperr.NotFound:
        return http.StatusNotFound
    case apperr.RateLimited:
        return http.StatusTooManyRequests
    case apperr.UpstreamUnavailable:
        return http.StatusServiceUnavailable
    case apperr.Internal:
        return http.StatusInternalServerError
    }
    return http.StatusInternalServerError
}

// ErrorHandler renders every error returned by a handler or middleware as
// an Envelope.  Internal causes are logged in full; the client sees them
// only when dev is true.
func ErrorHandler(dev bool) echo.HTTPErrorHandler {
    return func(err error, c echo.Context) {
        if c.Response().Committed {
            return
        }
        status, body := render(err, dev)
        if status >= http.StatusInternalServerError {
            log.Printf("http: %s %s -> %d: %v", c.Request().Method, c.Request().URL.Path, status, err)
        }
        var werr error
        if c.Request().Method == http.MethodHead {
            werr = c.NoContent(status)
        } else {
            werr = c.JSON(status, body)
        }
        if werr != nil {
            log.Printf("http: write error response: %v", werr)
        }
    }
}

func render(err error, dev bool) (int, Envelope) {
    var ve *validationError
    if errors.As(err, &ve) {
        return http.StatusBadRequest, Envelope{Message: "Validation failed", Errors: ve.fields}
    }

    var ae *apperr.Error
    if errors.As(err, &ae) {
        status := StatusOf(ae.Kind)
        env := Envelope{Message: ae.Message}
        if env.Message == "" {
            env.Message = http.StatusText(status)
        }
        if dev && ae.Err != nil {
            env.Error = ae.Err.Error()
        }
        return status, env
    }

    // echo's own errors: 404/405 from the router, 413 from BodyLimit, bind failures
    var he *echo.HTTPError
    if errors.As(err, &he) {
        if he.Code == http.StatusNotFound {
            return http.StatusNotFound, Envelope{Message: "Route not found"}
        }
        msg := http.StatusText(he.Code)
        if s, ok := he.Message.(string); ok && he.Code < http.StatusInternalServerError {
            msg = s
        }
        env := Envelope{Message: msg}
        if dev && he.Internal != nil {
            env.Error = he.Internal.Error()
        }
        return he.Code, env
    }

    env := Envelope{Message: "Internal server error"}
    if dev {
        env.Error = err.Error()
    }
    return http.StatusInternalServerError, env
}
