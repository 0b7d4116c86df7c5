package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/bookfair/stallhub/internal/apperr"
    "github.com/bookfair/stallhub/internal/middleware"
    "github.com/bookfair/stallhub/internal/model"
)

type statusReq struct {
    IsActive *bool `json:"isActive" validate:"required"`
}

type accountStatusView struct {
    ID             string     `json:"id"`
    Email          string     `json:"email"`
    Role           model.Role `json:"role"`
    IsActive       bool       `json:"isActive"`
    ActiveSessions int        `json:"activeSessions"`
}

// SetStatus (admin) activates or deactivates an account.  Deactivation
// revokes the account's refresh tokens.
func (h *AuthHandler) SetStatus(c echo.Context) error {
    actor, found := middleware.CurrentIdentity(c)
    if !found {
        return apperr.New(apperr.InvalidToken, "Unauthorized")
    }
    var req statusReq
    if err := bind(c, &req); err != nil {
        return err
    }
    userID := c.Param("id")
    if userID == "" {
        return apperr.New(apperr.MissingInput, "User id is required")
    }
    if userID == actor.UserID && !*req.IsActive {
        return apperr.New(apperr.Forbidden, "Administrators cannot deactivate themselves")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    u, err := h.Sessions.SetActive(ctx, actor.UserID, userID, *req.IsActive)
    if err != nil {
        return err
    }
    n, err := h.Sessions.ActiveSessions(ctx, u.ID)
    if err != nil {
        return err
    }
    return ok(c, http.StatusOK, "Account status updated", echo.Map{"user": accountStatusView{
        ID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.IsActive, ActiveSessions: n,
    }})
}
