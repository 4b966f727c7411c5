package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/config"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
	"go-auth-service/internal/notify"
	"go-auth-service/internal/router"
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

type memUsers struct {
	mu      sync.Mutex
	byID    map[string]model.User
	byEmail map[string]model.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]model.User{}, byEmail: map[string]model.User{}}
}

func (s *memUsers) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[u.Email]; exists {
		return model.ErrEmailTaken
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u
	return nil
}

func (s *memUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *memUsers) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *memUsers) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	s.byID[userID] = u
	s.byEmail[u.Email] = u
	return nil
}

func (s *memUsers) List(context.Context) ([]model.PublicUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PublicUser, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u.Public())
	}
	return out, nil
}

func (s *memUsers) promote(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byEmail[email]
	u.IsAdmin = true
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u
}

type memLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func (l *memLedger) Record(_ context.Context, token string, _ string, expiresAt time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.entries[token]; exists {
		return false, nil
	}
	l.entries[token] = expiresAt
	return true, nil
}

func (l *memLedger) IsRevoked(_ context.Context, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	expiresAt, ok := l.entries[token]
	if !ok {
		return false, nil
	}
	return expiresAt.After(l.now()), nil
}

type stubVerifier struct {
	identity service.FederatedIdentity
	err      error
}

func (v stubVerifier) Verify(context.Context, string, string) (service.FederatedIdentity, error) {
	return v.identity, v.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *recordingNotifier) Publish(m notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, m)
}

func (n *recordingNotifier) lastTokenOf(typ notify.Type) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.messages) - 1; i >= 0; i-- {
		if n.messages[i].Type == typ {
			return n.messages[i].Token
		}
	}
	return ""
}

type testEnv struct {
	clk      *fakeClock
	users    *memUsers
	ledger   *memLedger
	notifier *recordingNotifier
	server   http.Handler
}

func newTestEnv(t *testing.T, verifier service.FederatedVerifier) *testEnv {
	t.Helper()

	clk := newFakeClock()
	users := newMemUsers()
	ledger := &memLedger{entries: map[string]time.Time{}, now: clk.Now}
	notifier := &recordingNotifier{}

	codec := service.NewTokenCodec(
		"access-secret-for-tests",
		"refresh-secret-for-tests",
		"reset-secret-for-tests",
		15*time.Minute, 7*24*time.Hour, 15*time.Minute,
		clk.Now,
	)
	svc := service.NewAuthService(codec, users, ledger, verifier, notifier, 10, clk.Now)
	guard := middleware.NewSessionGuard(codec, ledger, users, clk.Now)

	cfg := &config.Config{
		AppEnv:           "test",
		RequestTimeout:   5 * time.Second,
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     100000,
		AuthRateLimitRPM: 100000,
	}
	cookies := handler.CookieConfig{
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  7 * 24 * time.Hour,
		RefreshPath: "/api/v1/auth",
	}

	h := router.Handlers{
		Auth: handler.NewAuthHandler(svc, cookies),
		User: handler.NewUserHandler(users),
	}

	return &testEnv{
		clk:      clk,
		users:    users,
		ledger:   ledger,
		notifier: notifier,
		server:   router.New(cfg, guard, h),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) model.APIResponse {
	t.Helper()
	var resp model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func registerUser(t *testing.T, env *testEnv, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", model.RegisterRequest{
		Email:    email,
		Password: password,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return rec
}

func TestAuthFlow_RegisterLoginRefreshLogout(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := registerUser(t, env, "alice@example.com", "correct-horse")
	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.AccessToken)
	require.NotNil(t, resp.User)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.False(t, resp.User.IsAdmin)

	accessCookie := cookieByName(rec, "accessToken")
	require.NotNil(t, accessCookie)
	assert.Equal(t, "/", accessCookie.Path)
	assert.Equal(t, 900, accessCookie.MaxAge)
	assert.True(t, accessCookie.HttpOnly)
	assert.False(t, accessCookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, accessCookie.SameSite)

	refreshCookie := cookieByName(rec, "refreshToken")
	require.NotNil(t, refreshCookie)
	assert.Equal(t, "/api/v1/auth", refreshCookie.Path)
	assert.Equal(t, 604800, refreshCookie.MaxAge)
	assert.True(t, refreshCookie.HttpOnly)

	// The fresh access token opens the protected surface.
	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", decodeResponse(t, rec).User.Email)

	// Rotate the session.
	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: refreshCookie.Value})
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decodeResponse(t, rec)
	require.NotEmpty(t, rotated.AccessToken)
	newRefresh := cookieByName(rec, "refreshToken")
	require.NotNil(t, newRefresh)
	assert.NotEqual(t, refreshCookie.Value, newRefresh.Value)

	// Replaying the consumed refresh token must fail.
	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: refreshCookie.Value})
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token revoked")

	// Logout revokes the pair and clears both cookies.
	rec = env.do(t, http.MethodPost, "/api/v1/auth/logout", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+rotated.AccessToken)
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: newRefresh.Value})
	})
	require.Equal(t, http.StatusOK, rec.Code)
	for _, name := range []string{"accessToken", "refreshToken"} {
		cleared := cookieByName(rec, name)
		require.NotNil(t, cleared, name)
		assert.Empty(t, cleared.Value)
		assert.Negative(t, cleared.MaxAge)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+rotated.AccessToken)
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token revoked")

	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: newRefresh.Value})
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthFlow_ExpiredAccessTokenRecoversViaRefresh(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := registerUser(t, env, "bob@example.com", "correct-horse")
	resp := decodeResponse(t, rec)
	refreshCookie := cookieByName(rec, "refreshToken")
	require.NotNil(t, refreshCookie)

	env.clk.Advance(16 * time.Minute)

	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token expired")

	// The week-long refresh token is still good.
	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: refreshCookie.Value})
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decodeResponse(t, rec)

	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+rotated.AccessToken)
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthFlow_RefreshViaBodyForNonCookieClients(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := registerUser(t, env, "cli@example.com", "correct-horse")
	refreshCookie := cookieByName(rec, "refreshToken")
	require.NotNil(t, refreshCookie)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", model.RefreshRequest{
		RefreshToken: refreshCookie.Value,
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAuthFlow_RefreshWithoutTokenIsMissingCredential(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing credentials")
}

func TestAuthFlow_LoginFailuresShareOneAnswer(t *testing.T) {
	env := newTestEnv(t, nil)
	registerUser(t, env, "carol@example.com", "correct-horse")

	wrongPassword := env.do(t, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{
		Email:    "carol@example.com",
		Password: "wrong",
	}, nil)
	unknownEmail := env.do(t, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{
		Email:    "nobody@example.com",
		Password: "correct-horse",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestAuthFlow_DuplicateRegistration(t *testing.T) {
	env := newTestEnv(t, nil)
	registerUser(t, env, "dave@example.com", "correct-horse")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", model.RegisterRequest{
		Email:    "dave@example.com",
		Password: "another-pass",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthFlow_PasswordReset(t *testing.T) {
	env := newTestEnv(t, nil)
	registerUser(t, env, "erin@example.com", "old-password-1")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/password-reset/request", model.PasswordResetRequest{
		Email: "erin@example.com",
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	resetToken := env.notifier.lastTokenOf(notify.TypePasswordReset)
	require.NotEmpty(t, resetToken)

	// The reset token is not a session credential.
	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+resetToken)
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/password-reset/complete", model.PasswordResetCompleteRequest{
		Token:       resetToken,
		NewPassword: "new-password-1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{
		Email:    "erin@example.com",
		Password: "old-password-1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{
		Email:    "erin@example.com",
		Password: "new-password-1",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthFlow_PasswordResetUnknownEmailLooksIdentical(t *testing.T) {
	env := newTestEnv(t, nil)
	registerUser(t, env, "frank@example.com", "correct-horse")

	known := env.do(t, http.MethodPost, "/api/v1/auth/password-reset/request", model.PasswordResetRequest{
		Email: "frank@example.com",
	}, nil)
	unknown := env.do(t, http.MethodPost, "/api/v1/auth/password-reset/request", model.PasswordResetRequest{
		Email: "ghost@example.com",
	}, nil)

	assert.Equal(t, known.Code, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())
}

func TestAuthFlow_FederatedLogin(t *testing.T) {
	env := newTestEnv(t, stubVerifier{identity: service.FederatedIdentity{Email: "sso@example.com"}})

	rec := env.do(t, http.MethodPost, "/api/v1/auth/federated", model.FederatedLoginRequest{
		Provider: "google",
		IDToken:  "provider-token",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeResponse(t, rec)
	require.NotNil(t, first.User)

	// Second login reuses the provisioned account.
	rec = env.do(t, http.MethodPost, "/api/v1/auth/federated", model.FederatedLoginRequest{
		Provider: "google",
		IDToken:  "provider-token",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.User.ID, decodeResponse(t, rec).User.ID)
}

func TestAuthFlow_FederatedLoginRejected(t *testing.T) {
	env := newTestEnv(t, stubVerifier{err: model.ErrInvalidCredentials})

	rec := env.do(t, http.MethodPost, "/api/v1/auth/federated", model.FederatedLoginRequest{
		Provider: "google",
		IDToken:  "bad-token",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminUsersEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := registerUser(t, env, "grace@example.com", "correct-horse")
	resp := decodeResponse(t, rec)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/users", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.users.promote("grace@example.com")

	rec = env.do(t, http.MethodGet, "/api/v1/admin/users", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "grace@example.com")
}
