package model

import (
    "database/sql/driver"
    "fmt"
    "strings"
    "time"
)

// Role is the closed set of account roles.  Only vendor and publisher may be
// created through self-registration; employee and admin accounts are
// provisioned out-of-band.
type Role uint8

const (
    RoleVendor Role = iota + 1
    RolePublisher
    RoleEmployee
    RoleAdmin
)

// Channel identifies which login endpoint an account must use.
type Channel uint8

const (
    ChannelSelfService Channel = iota + 1 // POST /api/auth/login
    ChannelEmployee                       // POST /api/auth/employee/login
)

// ParseRole maps the wire/storage name of a role onto Role.
func ParseRole(s string) (Role, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "vendor":
        return RoleVendor, nil
    case "publisher":
        return RolePublisher, nil
    case "employee":
        return RoleEmployee, nil
    case "admin":
        return RoleAdmin, nil
    }
    return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
    switch r {
    case RoleVendor:
        return "vendor"
    case RolePublisher:
        return "publisher"
    case RoleEmployee:
        return "employee"
    case RoleAdmin:
        return "admin"
    }
    return ""
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool { return r.String() != "" }

// SelfRegistrable reports whether an account with this role may be created
// by the public register endpoint.
func (r Role) SelfRegistrable() bool {
    switch r {
    case RoleVendor, RolePublisher:
        return true
    case RoleEmployee, RoleAdmin:
        return false
    }
    return false
}

// Channel returns the login channel accounts with this role must use.
func (r Role) Channel() Channel {
    switch r {
    case RoleVendor, RolePublisher:
        return ChannelSelfService
    case RoleEmployee, RoleAdmin:
        return ChannelEmployee
    }
    return 0
}

func (r Role) MarshalText() ([]byte, error) {
    if !r.Valid() {
        return nil, fmt.Errorf("invalid role %d", uint8(r))
    }
    return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
    v, err := ParseRole(string(b))
    if err != nil {
        return err
    }
    *r = v
    return nil
}

// Value stores the role by name.
func (r Role) Value() (driver.Value, error) {
    if !r.Valid() {
        return nil, fmt.Errorf("invalid role %d", uint8(r))
    }
    return r.String(), nil
}

// Scan reads a role name from a users.role column.
func (r *Role) Scan(src any) error {
    switch v := src.(type) {
    case string:
        return r.UnmarshalText([]byte(v))
    case []byte:
        return r.UnmarshalText(v)
    }
    return fmt.Errorf("cannot scan %T into Role", src)
}

// User represents an account as stored in the credential store.  The
// password is only ever held as a bcrypt hash.
type User struct {
    ID            string    // opaque unique id (uuid)
    Email         string    // unique, lower-cased
    PasswordHash  string    // bcrypt hash
    Name          string    // display name
    BusinessName  string    // optional
    ContactNumber string    // required at registration
    Address       string    // optional
    Role          Role      // vendor | publisher | employee | admin
    IsVerified    bool      // set by out-of-band verification
    IsActive      bool      // false once deactivated
    CreatedAt     time.Time // UTC
}

// RefreshToken models one issued refresh token.  One row exists per login
// session.  Only the SHA-256 digest of the signed token is stored.
type RefreshToken struct {
    ID        string    // row id (uuid)
    TokenHash string    // SHA-256 hex digest of the signed token, unique
    UserID    string    // owning user (reference, not ownership)
    ExpiresAt time.Time // UTC; rows past this are purged by the store
    IsActive  bool      // false once revoked or found expired
    CreatedAt time.Time // UTC
}

// Usable reports whether the token may still be exchanged for an access
// token at the given instant.
func (t RefreshToken) Usable(now time.Time) bool {
    return t.IsActive && now.Before(t.ExpiresAt)
}
