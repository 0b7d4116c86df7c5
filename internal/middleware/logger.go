package middleware

import (
    "log"
    "time"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
)

// RequestLog writes one line per request: method, uri, status, latency,
// client ip and request id.  Errors are rendered before the line is
// written so the logged status is the one the client saw.
func RequestLog(component string) echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        HandleError:  true,
        LogMethod:    true,
        LogURI:       true,
        LogStatus:    true,
        LogLatency:   true,
        LogRemoteIP:  true,
        LogRequestID: true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            log.Printf("%s: %s %s %d %s ip=%s id=%s", component, v.Method, v.URI, v.Status, v.Latency.Round(time.Microsecond), v.RemoteIP, v.RequestID)
            return nil
        },
    })
}
