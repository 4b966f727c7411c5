package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeLedger struct {
	revoked map[string]bool
	err     error
}

func (l *fakeLedger) IsRevoked(_ context.Context, token string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	return l.revoked[token], nil
}

type fakeUsers struct {
	users map[string]model.User
}

func (u *fakeUsers) FindByID(_ context.Context, id string) (model.User, error) {
	user, ok := u.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return user, nil
}

type guardFixture struct {
	clk    *fakeClock
	codec  *service.TokenCodec
	ledger *fakeLedger
	users  *fakeUsers
	guard  *SessionGuard
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	clk := newFakeClock()
	codec := service.NewTokenCodec(
		"access-secret-for-tests",
		"refresh-secret-for-tests",
		"reset-secret-for-tests",
		15*time.Minute, 7*24*time.Hour, 15*time.Minute,
		clk.Now,
	)
	ledger := &fakeLedger{revoked: map[string]bool{}}
	users := &fakeUsers{users: map[string]model.User{
		"user-1":  {ID: "user-1", Email: "a@b.com", PasswordHash: "hash"},
		"admin-1": {ID: "admin-1", Email: "root@b.com", PasswordHash: "hash", IsAdmin: true},
	}}

	return &guardFixture{
		clk:    clk,
		codec:  codec,
		ledger: ledger,
		users:  users,
		guard:  NewSessionGuard(codec, ledger, users, clk.Now),
	}
}

func (fx *guardFixture) serve(t *testing.T, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var captured model.PublicUser
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		captured = identity
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(captured)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	mutate(req)
	rec := httptest.NewRecorder()
	fx.guard.RequireAuth(next).ServeHTTP(rec, req)
	return rec
}

func TestSessionGuard_BearerHeader(t *testing.T) {
	fx := newGuardFixture(t)
	token, _, err := fx.codec.IssueAccess("user-1")
	require.NoError(t, err)

	rec := fx.serve(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var identity model.PublicUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	assert.Equal(t, "user-1", identity.ID)
	assert.Equal(t, "a@b.com", identity.Email)
}

func TestSessionGuard_CookieFallback(t *testing.T) {
	fx := newGuardFixture(t)
	token, _, err := fx.codec.IssueAccess("user-1")
	require.NoError(t, err)

	rec := fx.serve(t, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionGuard_HeaderWinsOverCookie(t *testing.T) {
	fx := newGuardFixture(t)
	good, _, err := fx.codec.IssueAccess("user-1")
	require.NoError(t, err)

	// A bad header must not fall back to the valid cookie.
	rec := fx.serve(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer bogus")
		r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: good})
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionGuard_MissingCredential(t *testing.T) {
	fx := newGuardFixture(t)

	rec := fx.serve(t, func(*http.Request) {})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing credentials")
}

func TestSessionGuard_RevokedBeatsValidSignature(t *testing.T) {
	fx := newGuardFixture(t)
	token, _, err := fx.codec.IssueAccess("user-1")
	require.NoError(t, err)
	fx.ledger.revoked[token] = true

	// Correctly signed, unexpired, still rejected.
	rec := fx.serve(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token revoked")
}

func TestSessionGuard_Expired(t *testing.T) {
	fx := newGuardFixture(t)
	token, _, err := fx.codec.IssueAccess("user-1")
	require.NoError(t, err)

	fx.clk.Advance(16 * time.Minute)

	rec := fx.serve(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token expired")
}

func TestSessionGuard_WrongPurposeToken(t *testing.T) {
	fx := newGuardFixture(t)

	// Reset and refresh tokens never pass the access-secret check.
	for _, issue := range []func(string) (string, time.Time, error){fx.codec.IssueReset, fx.codec.IssueRefresh} {
		token, _, err := issue("user-1")
		require.NoError(t, err)

		rec := fx.serve(t, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid token")
	}
}

func TestSessionGuard_UnknownSubject(t *testing.T) {
	fx := newGuardFixture(t)
	token, _, err := fx.codec.IssueAccess("deleted-user")
	require.NoError(t, err)

	rec := fx.serve(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown account")
}

func TestSessionGuard_LedgerFailureIsNotACredentialError(t *testing.T) {
	fx := newGuardFixture(t)
	fx.ledger.err = model.ErrStoreUnavailable
	token, _, err := fx.codec.IssueAccess("user-1")
	require.NoError(t, err)

	rec := fx.serve(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionGuard_AdminGate(t *testing.T) {
	fx := newGuardFixture(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := fx.guard.RequireAuth(fx.guard.RequireAdmin(next))

	adminToken, _, err := fx.codec.IssueAccess("admin-1")
	require.NoError(t, err)
	userToken, _, err := fx.codec.IssueAccess("user-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Authenticated but not capable: 403, not 401.
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
