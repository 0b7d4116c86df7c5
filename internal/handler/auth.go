package handler

import (
    "context" // per-request deadline for store calls
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/bookfair/stallhub/internal/apperr"
    "github.com/bookfair/stallhub/internal/middleware"
    "github.com/bookfair/stallhub/internal/model"
    "github.com/bookfair/stallhub/internal/service"
)

// storeTimeout bounds every handler's trip to the credential store.
const storeTimeout = 5 * time.Second

// AuthHandler exposes the session manager over HTTP.
type AuthHandler struct {
    Sessions *service.Sessions
}

func NewAuthHandler(s *service.Sessions) *AuthHandler {
    return &AuthHandler{Sessions: s}
}

// ----- DTOs -----

type registerReq struct {
    Email         string `json:"email" validate:"required,email"`
    Password      string `json:"password" validate:"required,min=6"`
    Name          string `json:"name" validate:"required,min=2"`
    BusinessName  string `json:"businessName" validate:"max=255"`
    ContactNumber string `json:"contactNumber" validate:"required,contact"`
    Address       string `json:"address" validate:"max=512"`
    Role          string `json:"role"` // checked by the session manager
}

type loginReq struct {
    Email    string `json:"email" validate:"required,email"`
    Password string `json:"password" validate:"required"`
}

type refreshReq struct {
    RefreshToken string `json:"refreshToken"`
}

// userView is the projection returned by register and self-service login.
type userView struct {
    ID            string     `json:"id"`
    Email         string     `json:"email"`
    Name          string     `json:"name"`
    BusinessName  string     `json:"businessName,omitempty"`
    ContactNumber string     `json:"contactNumber"`
    Role          model.Role `json:"role"`
}

// staffView is the reduced projection used by employee login and verify.
type staffView struct {
    ID    string     `json:"id"`
    Email string     `json:"email"`
    Name  string     `json:"name"`
    Role  model.Role `json:"role"`
}

type profileView struct {
    ID            string     `json:"id"`
    Email         string     `json:"email"`
    Name          string     `json:"name"`
    BusinessName  string     `json:"businessName,omitempty"`
    ContactNumber string     `json:"contactNumber"`
    Address       string     `json:"address,omitempty"`
    Role          model.Role `json:"role"`
    IsVerified    bool       `json:"isVerified"`
    CreatedAt     time.Time  `json:"createdAt"`
}

type sessionView struct {
    User         any    `json:"user"`
    AccessToken  string `json:"accessToken"`
    RefreshToken string `json:"refreshToken"`
}

func toUserView(u *model.User) userView {
    return userView{ID: u.ID, Email: u.Email, Name: u.Name, BusinessName: u.BusinessName, ContactNumber: u.ContactNumber, Role: u.Role}
}

func toStaffView(u *model.User) staffView {
    return staffView{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

func toProfileView(u *model.User) profileView {
    return profileView{
        ID: u.ID, Email: u.Email, Name: u.Name, BusinessName: u.BusinessName,
        ContactNumber: u.ContactNumber, Address: u.Address, Role: u.Role,
        IsVerified: u.IsVerified, CreatedAt: u.CreatedAt,
    }
}

// bind decodes and validates the body into req.
func bind(c echo.Context, req any) error {
    if err := c.Bind(req); err != nil {
        return apperr.Wrap(apperr.Validation, "Invalid request body", err)
    }
    switch r := req.(type) {
    case *registerReq:
        r.Email = strings.ToLower(strings.TrimSpace(r.Email))
        r.Name = strings.TrimSpace(r.Name)
        r.BusinessName = strings.TrimSpace(r.BusinessName)
        r.ContactNumber = strings.TrimSpace(r.ContactNumber)
        r.Address = strings.TrimSpace(r.Address)
    case *loginReq:
        r.Email = strings.ToLower(strings.TrimSpace(r.Email))
    }
    return c.Validate(req)
}

// Register: create a vendor/publisher account and return its first session.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := bind(c, &req); err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    sess, err := h.Sessions.Register(ctx, service.RegisterInput{
        Email:         req.Email,
        Password:      req.Password,
        Name:          req.Name,
        BusinessName:  req.BusinessName,
        ContactNumber: req.ContactNumber,
        Address:       req.Address,
        Role:          req.Role,
    })
    if err != nil {
        return err
    }
    return ok(c, http.StatusCreated, "User registered successfully", sessionView{
        User:         toUserView(sess.User),
        AccessToken:  sess.AccessToken.Token,
        RefreshToken: sess.RefreshToken.Token,
    })
}

// Login: self-service channel.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := bind(c, &req); err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    sess, err := h.Sessions.Login(ctx, req.Email, req.Password)
    if err != nil {
        return err
    }
    return ok(c, http.StatusOK, "Login successful", sessionView{
        User:         toUserView(sess.User),
        AccessToken:  sess.AccessToken.Token,
        RefreshToken: sess.RefreshToken.Token,
    })
}

// EmployeeLogin: staff channel, reduced user projection.
func (h *AuthHandler) EmployeeLogin(c echo.Context) error {
    var req loginReq
    if err := bind(c, &req); err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    sess, err := h.Sessions.EmployeeLogin(ctx, req.Email, req.Password)
    if err != nil {
        return err
    }
    return ok(c, http.StatusOK, "Employee login successful", sessionView{
        User:         toStaffView(sess.User),
        AccessToken:  sess.AccessToken.Token,
        RefreshToken: sess.RefreshToken.Token,
    })
}

// Refresh returns a new access token and leaves the refresh token as it is.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil {
        return apperr.Wrap(apperr.Validation, "Invalid request body", err)
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    access, err := h.Sessions.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
    if err != nil {
        return err
    }
    return ok(c, http.StatusOK, "Token refreshed successfully", echo.Map{"accessToken": access.Token})
}

// Logout revokes the refresh token in the body, if any.  It always
// succeeds unless the store fails; an unreadable body counts as no token.
func (h *AuthHandler) Logout(c echo.Context) error {
    var req refreshReq
    _ = c.Bind(&req)

    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    if err := h.Sessions.Logout(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
        return err
    }
    return ok(c, http.StatusOK, "Logout successful", nil)
}

// Verify (protected) confirms the bearer token and that its user exists.
func (h *AuthHandler) Verify(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    u, err := h.Sessions.Verify(ctx, middleware.AccessToken(c))
    if err != nil {
        return err
    }
    return ok(c, http.StatusOK, "Token is valid", echo.Map{"user": toStaffView(u)})
}

// Profile (protected) returns the caller's full profile.
func (h *AuthHandler) Profile(c echo.Context) error {
    id, found := middleware.CurrentIdentity(c)
    if !found {
        return apperr.New(apperr.InvalidToken, "Unauthorized")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    u, err := h.Sessions.GetProfile(ctx, id.UserID)
    if err != nil {
        return err
    }
    return ok(c, http.StatusOK, "Profile retrieved successfully", echo.Map{"user": toProfileView(u)})
}
