package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Envelope is the body shape of every JSON response, success or failure.
type Envelope struct {
    Success bool         `json:"success"`
    Message string       `json:"message"`
    Data    any          `json:"data,omitempty"`
    Error   any          `json:"error,omitempty"`
    Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError is one failed validation rule.
type FieldError struct {
    Field   string `json:"field"`
    Message string `json:"message"`
}

func ok(c echo.Context, status int, message string, data any) error {
    return c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// NotFound is the catch-all for unmatched routes.
func NotFound(c echo.Context) error {
    return c.JSON(http.StatusNotFound, echo.Map{
        "success": false,
        "message": "Route not found",
        "path":    c.Request().URL.Path,
    })
}
