package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookfair/stallhub/internal/apperr"
	"github.com/bookfair/stallhub/internal/database"
	"github.com/bookfair/stallhub/internal/model"
	"github.com/bookfair/stallhub/internal/queue"
	"github.com/bookfair/stallhub/internal/repository"
	"github.com/bookfair/stallhub/internal/utils"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct {
	mu     sync.Mutex
	events []queue.AuthEvent
	err    error
}

func (r *recorder) Publish(_ context.Context, ev queue.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	db     *sql.DB
	users  *repository.UserRepo
	tokens *repository.TokenRepo
	clock  *fakeClock
	pub    *recorder
	s      *Sessions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, dialect, err := database.Open("sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, dialect))

	f := &fixture{
		db:     db,
		users:  repository.NewUserRepo(db),
		tokens: repository.NewTokenRepo(db),
		clock:  &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		pub:    &recorder{},
	}
	codec := utils.NewCodec("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	codec.Now = f.clock.Now
	f.s = NewSessions(f.users, f.tokens, codec, Options{BcryptCost: 4, Publisher: f.pub, Now: f.clock.Now})
	return f
}

// seed inserts an account directly, the way staff accounts are provisioned.
func (f *fixture) seed(t *testing.T, email, password string, role model.Role) *model.User {
	t.Helper()
	hash, err := utils.HashPassword(password, 4)
	require.NoError(t, err)
	u := &model.User{ID: uuid.NewString(), Email: email, PasswordHash: hash, Name: "Seeded",
		ContactNumber: "0771234567", Role: role, IsActive: true}
	require.NoError(t, f.users.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(query, args...).Scan(&n))
	return n
}

func kind(err error) apperr.Kind { return apperr.KindOf(err) }

var v1 = RegisterInput{
	Email:         "v1@test.com",
	Password:      "secret1",
	Name:          "V One",
	ContactNumber: "0771234567",
	Role:          "vendor",
}

func TestRegisterScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, model.RoleVendor, sess.User.Role)
	assert.NotEmpty(t, sess.AccessToken.Token)
	assert.NotEmpty(t, sess.RefreshToken.Token)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), sess.RefreshToken.Exp)

	n, err := f.s.ActiveSessions(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{queue.EventUserRegistered}, f.pub.types())

	// stored by digest, never as the token string
	assert.Zero(t, f.count(t, "SELECT COUNT(*) FROM refresh_tokens WHERE token_hash=?", sess.RefreshToken.Token))
	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM refresh_tokens WHERE token_hash=?", utils.HashToken(sess.RefreshToken.Token)))
}

func TestRegisterDefaultsAndRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := v1
	in.Role = ""
	in.Email = "  Mixed@Test.com "
	sess, err := f.s.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.RoleVendor, sess.User.Role)
	assert.Equal(t, "mixed@test.com", sess.User.Email)

	in.Email, in.Role = "pub@test.com", "publisher"
	sess, err = f.s.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.RolePublisher, sess.User.Role)

	for _, role := range []string{"admin", "employee", "superuser"} {
		in.Email, in.Role = role+"@test.com", role
		_, err = f.s.Register(ctx, in)
		assert.Equal(t, apperr.InvalidRole, kind(err), role)
	}
	assert.Equal(t, 2, f.count(t, "SELECT COUNT(*) FROM users"))
}

func TestRegisterDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.s.Register(ctx, v1)
	require.NoError(t, err)

	again := v1
	again.Email = "V1@TEST.COM"
	_, err = f.s.Register(ctx, again)
	assert.Equal(t, apperr.DuplicateIdentity, kind(err))
	assert.Equal(t, apperr.ClassValidation, kind(err).Class())
	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM users WHERE email=?", "v1@test.com"))
}

func TestVerifyUntilAccessTokenExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)

	u, err := f.s.Verify(ctx, sess.AccessToken.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, u.ID)

	f.clock.Advance(15*time.Minute - time.Second)
	_, err = f.s.Verify(ctx, sess.AccessToken.Token)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.s.Verify(ctx, sess.AccessToken.Token)
	assert.Equal(t, apperr.TokenExpired, kind(err))
	assert.Equal(t, apperr.ClassAuthentication, kind(err).Class())
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)

	_, err = f.s.Verify(ctx, sess.RefreshToken.Token)
	assert.Equal(t, apperr.InvalidToken, kind(err))
	_, err = f.s.Verify(ctx, "not-a-jwt")
	assert.Equal(t, apperr.InvalidToken, kind(err))
	_, err = f.s.Verify(ctx, "")
	assert.Equal(t, apperr.InvalidToken, kind(err))

	_, err = f.db.Exec("DELETE FROM users WHERE id=?", sess.User.ID)
	require.NoError(t, err)
	_, err = f.s.Verify(ctx, sess.AccessToken.Token)
	assert.Equal(t, apperr.NotFound, kind(err))
}

func TestAuthenticateIdentity(t *testing.T) {
	f := newFixture(t)
	admin := f.seed(t, "admin@x.com", "pw-admin", model.RoleAdmin)

	sess, err := f.s.EmployeeLogin(context.Background(), "admin@x.com", "pw-admin")
	require.NoError(t, err)

	id, err := f.s.Authenticate(sess.AccessToken.Token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: admin.ID, Email: "admin@x.com", Role: model.RoleAdmin}, *id)
}

func TestLoginChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "admin@x.com", "pw-admin", model.RoleAdmin)
	f.seed(t, "staff@x.com", "pw-staff", model.RoleEmployee)
	f.seed(t, "pub@x.com", "pw-pub", model.RolePublisher)

	t.Run("staff on self-service login regardless of password", func(t *testing.T) {
		for _, pw := range []string{"pw-admin", "wrong"} {
			_, err := f.s.Login(ctx, "admin@x.com", pw)
			assert.Equal(t, apperr.WrongLoginChannel, kind(err), pw)
			assert.Equal(t, apperr.ClassAuthorization, kind(err).Class())
		}
	})

	t.Run("vendor side on employee login", func(t *testing.T) {
		_, err := f.s.EmployeeLogin(ctx, "pub@x.com", "pw-pub")
		assert.Equal(t, apperr.WrongLoginChannel, kind(err))
	})

	t.Run("each channel admits its roles", func(t *testing.T) {
		sess, err := f.s.Login(ctx, "pub@x.com", "pw-pub")
		require.NoError(t, err)
		assert.Equal(t, model.RolePublisher, sess.User.Role)

		sess, err = f.s.EmployeeLogin(ctx, "STAFF@x.com", "pw-staff")
		require.NoError(t, err)
		assert.Equal(t, model.RoleEmployee, sess.User.Role)
	})

	evs := f.pub.events
	require.Len(t, evs, 2)
	assert.Equal(t, "self-service", evs[0].Channel)
	assert.Equal(t, "employee", evs[1].Channel)
}

func TestLoginWrongPasswordCreatesNoSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seed(t, "v2@test.com", "secret1", model.RoleVendor)

	for i := 0; i < 2; i++ {
		_, err := f.s.Login(ctx, "v2@test.com", "nope")
		var ae *apperr.Error
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, apperr.InvalidCredentials, ae.Kind)
		assert.Equal(t, "Invalid email or password", ae.Message)
	}
	assert.Zero(t, f.count(t, "SELECT COUNT(*) FROM refresh_tokens WHERE user_id=?", u.ID))

	// unknown email reads exactly like a wrong password
	_, err := f.s.Login(ctx, "ghost@test.com", "nope")
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.InvalidCredentials, ae.Kind)
	assert.Equal(t, "Invalid email or password", ae.Message)
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seed(t, "v3@test.com", "secret1", model.RoleVendor)
	require.NoError(t, f.users.SetUserActive(ctx, u.ID, false))

	_, err := f.s.Login(ctx, "v3@test.com", "secret1")
	assert.Equal(t, apperr.AccountDisabled, kind(err))
}

func TestLoginOpensOneSessionEach(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)

	// two logins in the same second still get distinct refresh tokens
	a, err := f.s.Login(ctx, v1.Email, v1.Password)
	require.NoError(t, err)
	b, err := f.s.Login(ctx, v1.Email, v1.Password)
	require.NoError(t, err)
	assert.NotEqual(t, a.RefreshToken.Token, b.RefreshToken.Token)

	n, err := f.s.ActiveSessions(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRefreshDoesNotRotate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)

	seen := map[string]bool{sess.AccessToken.Token: true}
	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Second)
		access, err := f.s.Refresh(ctx, sess.RefreshToken.Token)
		require.NoError(t, err)
		assert.False(t, seen[access.Token], "access token reused")
		seen[access.Token] = true

		u, err := f.s.Verify(ctx, access.Token)
		require.NoError(t, err)
		assert.Equal(t, sess.User.ID, u.ID)
	}
	n, err := f.s.ActiveSessions(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRefreshFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)

	_, err = f.s.Refresh(ctx, "")
	assert.Equal(t, apperr.MissingInput, kind(err))

	_, err = f.s.Refresh(ctx, "garbage")
	assert.Equal(t, apperr.InvalidToken, kind(err))

	_, err = f.s.Refresh(ctx, sess.AccessToken.Token)
	assert.Equal(t, apperr.InvalidToken, kind(err))

	// validly signed but never stored
	codec := utils.NewCodec("access-secret", "refresh-secret", 0, 0)
	codec.Now = f.clock.Now
	stray, err := codec.SignRefresh(sess.User.ID)
	require.NoError(t, err)
	_, err = f.s.Refresh(ctx, stray.Token)
	assert.Equal(t, apperr.TokenNotFound, kind(err))
}

func TestRefreshAfterLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)

	require.NoError(t, f.s.Logout(ctx, sess.RefreshToken.Token))
	for i := 0; i < 2; i++ {
		_, err = f.s.Refresh(ctx, sess.RefreshToken.Token)
		assert.Equal(t, apperr.TokenNotFound, kind(err))
	}

	// idempotent, and unknown or empty tokens are accepted
	assert.NoError(t, f.s.Logout(ctx, sess.RefreshToken.Token))
	assert.NoError(t, f.s.Logout(ctx, "never-issued"))
	assert.NoError(t, f.s.Logout(ctx, ""))

	assert.Equal(t, []string{queue.EventUserRegistered, queue.EventSessionRevoked}, f.pub.types())
	assert.Equal(t, sess.User.ID, f.pub.events[1].UserID)
}

func TestRefreshStoredExpiryDeactivatesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)

	// the row expires before the token's own exp claim
	_, err = f.db.Exec("UPDATE refresh_tokens SET expires_at=? WHERE user_id=?",
		f.clock.Now().Add(-time.Second), sess.User.ID)
	require.NoError(t, err)

	_, err = f.s.Refresh(ctx, sess.RefreshToken.Token)
	assert.Equal(t, apperr.TokenExpired, kind(err))
	assert.Zero(t, f.count(t, "SELECT COUNT(*) FROM refresh_tokens WHERE user_id=? AND is_active=?", sess.User.ID, true))

	_, err = f.s.Refresh(ctx, sess.RefreshToken.Token)
	assert.Equal(t, apperr.TokenNotFound, kind(err))
}

func TestRefreshTokenPastExpClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)

	f.clock.Advance(7 * 24 * time.Hour)
	_, err = f.s.Refresh(ctx, sess.RefreshToken.Token)
	assert.Equal(t, apperr.InvalidToken, kind(err))
}

func TestRefreshForInactiveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)

	require.NoError(t, f.users.SetUserActive(ctx, sess.User.ID, false))
	_, err = f.s.Refresh(ctx, sess.RefreshToken.Token)
	assert.Equal(t, apperr.UserUnavailable, kind(err))

	_, err = f.db.Exec("DELETE FROM users WHERE id=?", sess.User.ID)
	require.NoError(t, err)
	_, err = f.s.Refresh(ctx, sess.RefreshToken.Token)
	assert.Equal(t, apperr.UserUnavailable, kind(err))
}

func TestGetProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := v1
	in.BusinessName, in.Address = " V One Books ", "Colombo"
	sess, err := f.s.Register(ctx, in)
	require.NoError(t, err)

	u, err := f.s.GetProfile(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "V One Books", u.BusinessName)
	assert.Equal(t, "Colombo", u.Address)
	assert.False(t, u.IsVerified)
	assert.Equal(t, f.clock.Now(), u.CreatedAt)

	_, err = f.s.GetProfile(ctx, "missing")
	assert.Equal(t, apperr.NotFound, kind(err))
}

func TestSetActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)
	_, err = f.s.Login(ctx, v1.Email, v1.Password)
	require.NoError(t, err)

	u, err := f.s.SetActive(ctx, "admin-1", sess.User.ID, false)
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	n, err := f.s.ActiveSessions(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = f.s.Refresh(ctx, sess.RefreshToken.Token)
	assert.Equal(t, apperr.TokenNotFound, kind(err))
	_, err = f.s.Login(ctx, v1.Email, v1.Password)
	assert.Equal(t, apperr.AccountDisabled, kind(err))

	u, err = f.s.SetActive(ctx, "admin-1", sess.User.ID, true)
	require.NoError(t, err)
	assert.True(t, u.IsActive)
	_, err = f.s.Login(ctx, v1.Email, v1.Password)
	require.NoError(t, err)

	_, err = f.s.SetActive(ctx, "admin-1", "missing", false)
	assert.Equal(t, apperr.NotFound, kind(err))

	var changes []queue.AuthEvent
	for _, ev := range f.pub.events {
		if ev.Type == queue.EventAccountStatusChanged {
			changes = append(changes, ev)
		}
	}
	require.Len(t, changes, 2)
	assert.False(t, *changes[0].Active)
	assert.True(t, *changes[1].Active)
	assert.Equal(t, "admin-1", changes[0].ActorID)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	_, err := f.s.Register(context.Background(), v1)
	assert.NoError(t, err)
}

func TestSweepOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.s.Register(ctx, v1)
	require.NoError(t, err)

	sweepOnce(ctx, f.tokens, f.clock.Now())
	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM refresh_tokens"))

	sweepOnce(ctx, f.tokens, sess.RefreshToken.Exp)
	assert.Zero(t, f.count(t, "SELECT COUNT(*) FROM refresh_tokens"))
}

func TestRunTokenSweeperStops(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunTokenSweeper(ctx, f.tokens, 10*time.Millisecond, nil)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
