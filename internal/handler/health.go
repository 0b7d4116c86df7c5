package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http" // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is anything whose reachability can be probed: *sql.DB, the mongo
// store.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Health reports liveness of the identity service and whether its
// credential store answers.  A store failure turns the response into 503
// so load balancers stop routing to the instance.
func Health(store Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()

        data := echo.Map{"service": "auth", "timestamp": time.Now().UTC().Format(time.RFC3339), "store": "up"}
        if err := store.PingContext(ctx); err != nil {
            data["store"] = "down"
            return c.JSON(http.StatusServiceUnavailable, Envelope{Success: false, Message: "Auth service store unavailable", Data: data})
        }
        return ok(c, http.StatusOK, "Auth service is running", data)
    }
}
