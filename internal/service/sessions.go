// Package service holds the session manager: registration, the two login
// channels, refresh, logout and token verification.
package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bookfair/stallhub/internal/apperr"
	"github.com/bookfair/stallhub/internal/model"
	"github.com/bookfair/stallhub/internal/queue"
	"github.com/bookfair/stallhub/internal/repository"
	"github.com/bookfair/stallhub/internal/utils"
)

// UserStore is the user side of the credential store.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	SetUserActive(ctx context.Context, id string, active bool) error
}

// TokenStore is the refresh-token side of the credential store.  Tokens are
// addressed by their SHA-256 digest.
type TokenStore interface {
	StoreRefresh(ctx context.Context, t *model.RefreshToken) error
	FindActiveRefresh(ctx context.Context, tokenHash, userID string) (*model.RefreshToken, error)
	DeactivateRefresh(ctx context.Context, tokenHash string) (bool, error)
	DeactivateAllForUser(ctx context.Context, userID string) (int64, error)
	CountActiveForUser(ctx context.Context, userID string, now time.Time) (int, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// RegisterInput carries an already validated registration request.
type RegisterInput struct {
	Email         string
	Password      string
	Name          string
	BusinessName  string
	ContactNumber string
	Address       string
	Role          string // optional; empty means vendor
}

// Session is the result of a successful registration or login.
type Session struct {
	User         *model.User
	AccessToken  utils.Signed
	RefreshToken utils.Signed
}

// Identity is what a verified access token asserts.
type Identity struct {
	UserID string
	Email  string
	Role   model.Role
}

// Options tunes a Sessions value.  Zero values are usable.
type Options struct {
	BcryptCost int
	Publisher  queue.Publisher  // nil drops events
	Now        func() time.Time // nil means time.Now
}

// Sessions is the session manager.  It is safe for concurrent use.
type Sessions struct {
	users  UserStore
	tokens TokenStore
	codec  *utils.Codec
	cost   int
	pub    queue.Publisher
	now    func() time.Time
}

func NewSessions(users UserStore, tokens TokenStore, codec *utils.Codec, opts Options) *Sessions {
	s := &Sessions{users: users, tokens: tokens, codec: codec, cost: opts.BcryptCost, pub: opts.Publisher, now: opts.Now}
	if s.pub == nil {
		s.pub = queue.Noop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Register creates a vendor or publisher account and opens its first session.
func (s *Sessions) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := repository.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperr.New(apperr.MissingInput, "Email and password are required")
	}

	switch _, err := s.users.FindUserByEmail(ctx, email); {
	case err == nil:
		return nil, apperr.New(apperr.DuplicateIdentity, "User with this email already exists")
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Wrap(apperr.Internal, "Registration failed", err)
	}

	role := model.RoleVendor
	if r := strings.TrimSpace(in.Role); r != "" {
		parsed, err := model.ParseRole(r)
		if err != nil || !parsed.SelfRegistrable() {
			return nil, apperr.New(apperr.InvalidRole, "Invalid role. Only vendor or publisher allowed for registration")
		}
		role = parsed
	}

	hash, err := utils.HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Registration failed", err)
	}
	u := &model.User{
		ID:            uuid.NewString(),
		Email:         email,
		PasswordHash:  hash,
		Name:          strings.TrimSpace(in.Name),
		BusinessName:  strings.TrimSpace(in.BusinessName),
		ContactNumber: strings.TrimSpace(in.ContactNumber),
		Address:       strings.TrimSpace(in.Address),
		Role:          role,
		IsActive:      true,
		CreatedAt:     s.now(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		// lost a race with a concurrent registration for the same email
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.New(apperr.DuplicateIdentity, "User with this email already exists")
		}
		return nil, apperr.Wrap(apperr.Internal, "Registration failed", err)
	}

	// No transaction: if this fails the user exists without a session and
	// can simply log in.
	sess, err := s.issue(ctx, u)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Registration failed", err)
	}
	ev := queue.NewEvent(queue.EventUserRegistered, u.ID, s.now())
	ev.Email, ev.Role = u.Email, u.Role.String()
	s.publish(ctx, ev)
	return sess, nil
}

// Login is the self-service channel for vendors and publishers.
func (s *Sessions) Login(ctx context.Context, email, password string) (*Session, error) {
	return s.login(ctx, model.ChannelSelfService, email, password)
}

// EmployeeLogin is the channel for employees and admins.
func (s *Sessions) EmployeeLogin(ctx context.Context, email, password string) (*Session, error) {
	return s.login(ctx, model.ChannelEmployee, email, password)
}

func (s *Sessions) login(ctx context.Context, ch model.Channel, email, password string) (*Session, error) {
	invalid := apperr.New(apperr.InvalidCredentials, "Invalid email or password")

	u, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		// spend a bcrypt round anyway so response time does not reveal
		// whether the address is registered
		utils.BurnPasswordCheck(password)
		return nil, invalid
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Login failed", err)
	}
	if !u.IsActive {
		return nil, apperr.New(apperr.AccountDisabled, "Your account has been deactivated")
	}
	// The channel is checked before the password: a staff account is told
	// to use the other endpoint whatever password it sent.
	if u.Role.Channel() != ch {
		switch ch {
		case model.ChannelSelfService:
			return nil, apperr.New(apperr.WrongLoginChannel, "Please use employee login")
		case model.ChannelEmployee:
			return nil, apperr.New(apperr.WrongLoginChannel, "Access denied: Employee credentials required")
		}
		return nil, apperr.New(apperr.WrongLoginChannel, "Wrong login channel")
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, invalid
	}

	sess, err := s.issue(ctx, u)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Login failed", err)
	}
	ev := queue.NewEvent(queue.EventSessionStarted, u.ID, s.now())
	ev.Email, ev.Role, ev.Channel = u.Email, u.Role.String(), channelName(ch)
	s.publish(ctx, ev)
	return sess, nil
}

// issue mints an access/refresh pair and persists the refresh token.
func (s *Sessions) issue(ctx context.Context, u *model.User) (*Session, error) {
	access, err := s.codec.SignAccess(u.ID, u.Email, u.Role.String())
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.SignRefresh(u.ID)
	if err != nil {
		return nil, err
	}
	row := &model.RefreshToken{
		ID:        uuid.NewString(),
		TokenHash: utils.HashToken(refresh.Token),
		UserID:    u.ID,
		ExpiresAt: refresh.Exp,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	if err := s.tokens.StoreRefresh(ctx, row); err != nil {
		return nil, err
	}
	return &Session{User: u, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token.  The refresh
// token itself is neither rotated nor modified on success.
func (s *Sessions) Refresh(ctx context.Context, raw string) (utils.Signed, error) {
	if raw == "" {
		return utils.Signed{}, apperr.New(apperr.MissingInput, "Refresh token is required")
	}
	claims, err := s.codec.VerifyRefresh(raw)
	if err != nil {
		return utils.Signed{}, apperr.Wrap(apperr.InvalidToken, "Invalid or expired refresh token", err)
	}

	digest := utils.HashToken(raw)
	row, err := s.tokens.FindActiveRefresh(ctx, digest, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return utils.Signed{}, apperr.New(apperr.TokenNotFound, "Refresh token not found or has been revoked")
	}
	if err != nil {
		return utils.Signed{}, apperr.Wrap(apperr.Internal, "Token refresh failed", err)
	}
	if !row.Usable(s.now()) {
		if _, err := s.tokens.DeactivateRefresh(ctx, digest); err != nil {
			return utils.Signed{}, apperr.Wrap(apperr.Internal, "Token refresh failed", err)
		}
		return utils.Signed{}, apperr.New(apperr.TokenExpired, "Refresh token has expired")
	}

	u, err := s.users.FindUserByID(ctx, claims.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return utils.Signed{}, apperr.Wrap(apperr.Internal, "Token refresh failed", err)
	}
	if u == nil || !u.IsActive {
		return utils.Signed{}, apperr.New(apperr.UserUnavailable, "User not found or inactive")
	}

	access, err := s.codec.SignAccess(u.ID, u.Email, u.Role.String())
	if err != nil {
		return utils.Signed{}, apperr.Wrap(apperr.Internal, "Token refresh failed", err)
	}
	return access, nil
}

// Logout revokes the given refresh token.  An empty or unknown token is not
// an error, so repeated calls are safe.
func (s *Sessions) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	changed, err := s.tokens.DeactivateRefresh(ctx, utils.HashToken(raw))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "Logout failed", err)
	}
	if changed {
		var userID string
		if claims, err := s.codec.VerifyRefresh(raw); err == nil {
			userID = claims.UserID
		}
		s.publish(ctx, queue.NewEvent(queue.EventSessionRevoked, userID, s.now()))
	}
	return nil
}

// Authenticate checks an access token's signature and expiry.  It does not
// touch the store.
func (s *Sessions) Authenticate(raw string) (*Identity, error) {
	if raw == "" {
		return nil, apperr.New(apperr.InvalidToken, "Access token is required")
	}
	claims, err := s.codec.VerifyAccess(raw)
	switch {
	case errors.Is(err, utils.ErrTokenExpired):
		return nil, apperr.Wrap(apperr.TokenExpired, "Token expired", err)
	case err != nil:
		return nil, apperr.Wrap(apperr.InvalidToken, "Invalid token", err)
	}
	role, err := model.ParseRole(claims.Role)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidToken, "Invalid token", err)
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email, Role: role}, nil
}

// Verify authenticates raw and confirms the user it names still exists.
func (s *Sessions) Verify(ctx context.Context, raw string) (*model.User, error) {
	id, err := s.Authenticate(raw)
	if err != nil {
		return nil, err
	}
	u, err := s.users.FindUserByID(ctx, id.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "User not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Verification failed", err)
	}
	return u, nil
}

// GetProfile returns the stored user.  Callers must not expose PasswordHash.
func (s *Sessions) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.FindUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "User not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Failed to retrieve profile", err)
	}
	return u, nil
}

// SetActive enables or disables an account.  Disabling also revokes every
// refresh token the user holds; access tokens already issued stay valid
// until they expire.
func (s *Sessions) SetActive(ctx context.Context, actorID, userID string, active bool) (*model.User, error) {
	if err := s.users.SetUserActive(ctx, userID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "User not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "Failed to update account status", err)
	}
	if !active {
		n, err := s.tokens.DeactivateAllForUser(ctx, userID)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "Failed to update account status", err)
		}
		log.Printf("sessions: revoked %d refresh tokens for user=%s", n, userID)
	}
	ev := queue.NewEvent(queue.EventAccountStatusChanged, userID, s.now())
	ev.Active, ev.ActorID = &active, actorID
	s.publish(ctx, ev)
	return s.GetProfile(ctx, userID)
}

// ActiveSessions counts the user's usable refresh tokens.
func (s *Sessions) ActiveSessions(ctx context.Context, userID string) (int, error) {
	n, err := s.tokens.CountActiveForUser(ctx, userID, s.now())
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "Failed to count sessions", err)
	}
	return n, nil
}

// publish delivers ev with its own short deadline.  Failures are logged
// and never reach the caller.
func (s *Sessions) publish(ctx context.Context, ev queue.AuthEvent) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.pub.Publish(pctx, ev); err != nil {
		log.Printf("sessions: publish %s for user=%s failed: %v", ev.Type, ev.UserID, err)
	}
}

func channelName(ch model.Channel) string {
	switch ch {
	case model.ChannelSelfService:
		return "self-service"
	case model.ChannelEmployee:
		return "employee"
	}
	return ""
}
