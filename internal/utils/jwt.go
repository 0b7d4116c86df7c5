package utils // package utils provides the token codec and password hashing helpers

import (
    "crypto/sha256" // SHA-256 digest of refresh tokens for storage
    "encoding/hex"  // hex encoding of the digest
    "errors"        // sentinel verification errors
    "fmt"           // error wrapping
    "time"          // expirations and the clock

    "github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
    "github.com/google/uuid"       // random jti so two refresh tokens never collide
)

// Verification failures.  Callers must be able to tell a token that is
// malformed or signed with the wrong secret from one that was valid but has
// run past its exp claim.
var (
    ErrTokenInvalid = errors.New("token invalid")
    ErrTokenExpired = errors.New("token expired")
)

const (
    DefaultAccessTTL  = 15 * time.Minute   // short-lived bearer credential
    DefaultRefreshTTL = 7 * 24 * time.Hour // persisted refresh credential
)

// AccessClaims is the payload of an access token.  Nothing beyond the user
// id, email and role is embedded, apart from the registered exp/iat claims.
type AccessClaims struct {
    UserID string `json:"userId"`
    Email  string `json:"email"`
    Role   string `json:"role"`
    jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token.  The registered jti claim
// keeps tokens minted for the same user in the same second distinct.
type RefreshClaims struct {
    UserID string `json:"userId"`
    jwt.RegisteredClaims
}

// Signed is a serialized token together with its expiry.
type Signed struct {
    Token string    // the compact JWT string
    Exp   time.Time // UTC expiration, second precision
}

// Codec signs and verifies the two token kinds.  Each kind has its own
// secret and TTL, so a refresh token can never pass as an access token.
type Codec struct {
    AccessSecret  []byte
    RefreshSecret []byte
    AccessTTL     time.Duration
    RefreshTTL    time.Duration
    // Now is the clock used for iat/exp and for validation.  Nil means
    // time.Now.
    Now func() time.Time
}

// NewCodec returns a Codec with the given secrets.  Non-positive TTLs fall
// back to the defaults.
func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Codec {
    if accessTTL <= 0 {
        accessTTL = DefaultAccessTTL
    }
    if refreshTTL <= 0 {
        refreshTTL = DefaultRefreshTTL
    }
    return &Codec{
        AccessSecret:  []byte(accessSecret),
        RefreshSecret: []byte(refreshSecret),
        AccessTTL:     accessTTL,
        RefreshTTL:    refreshTTL,
    }
}

func (c *Codec) now() time.Time {
    if c.Now != nil {
        return c.Now().UTC()
    }
    return time.Now().UTC()
}

// SignAccess builds and signs an HS256 access token for the given identity.
func (c *Codec) SignAccess(userID, email, role string) (Signed, error) {
    now := c.now()
    exp := now.Add(c.AccessTTL).Truncate(time.Second)
    claims := AccessClaims{
        UserID: userID,
        Email:  email,
        Role:   role,
        RegisteredClaims: jwt.RegisteredClaims{
            ExpiresAt: jwt.NewNumericDate(exp),
            IssuedAt:  jwt.NewNumericDate(now),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.AccessSecret)
    if err != nil {
        return Signed{}, fmt.Errorf("sign access token: %w", err)
    }
    return Signed{Token: signed, Exp: exp}, nil
}

// SignRefresh builds and signs an HS256 refresh token for userID.
func (c *Codec) SignRefresh(userID string) (Signed, error) {
    now := c.now()
    exp := now.Add(c.RefreshTTL).Truncate(time.Second)
    claims := RefreshClaims{
        UserID: userID,
        RegisteredClaims: jwt.RegisteredClaims{
            ID:        uuid.NewString(),
            ExpiresAt: jwt.NewNumericDate(exp),
            IssuedAt:  jwt.NewNumericDate(now),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.RefreshSecret)
    if err != nil {
        return Signed{}, fmt.Errorf("sign refresh token: %w", err)
    }
    return Signed{Token: signed, Exp: exp}, nil
}

// VerifyAccess checks signature and expiry of an access token.
func (c *Codec) VerifyAccess(raw string) (*AccessClaims, error) {
    claims := &AccessClaims{}
    if err := c.parse(raw, claims, c.AccessSecret); err != nil {
        return nil, err
    }
    if claims.UserID == "" {
        return nil, ErrTokenInvalid
    }
    return claims, nil
}

// VerifyRefresh checks signature and expiry of a refresh token.
func (c *Codec) VerifyRefresh(raw string) (*RefreshClaims, error) {
    claims := &RefreshClaims{}
    if err := c.parse(raw, claims, c.RefreshSecret); err != nil {
        return nil, err
    }
    if claims.UserID == "" {
        return nil, ErrTokenInvalid
    }
    return claims, nil
}

func (c *Codec) parse(raw string, claims jwt.Claims, secret []byte) error {
    _, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
        // Reject anything that is not HMAC; the header is attacker-controlled.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
        }
        return secret, nil
    },
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithExpirationRequired(),
        jwt.WithTimeFunc(c.now),
    )
    switch {
    case err == nil:
        return nil
    case errors.Is(err, jwt.ErrTokenExpired):
        return ErrTokenExpired
    default:
        return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
    }
}

// HashToken returns the SHA-256 hex digest of a refresh token.  The store
// keeps only this digest, so a leaked table cannot be replayed.
func HashToken(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}
