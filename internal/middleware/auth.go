package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go-auth-service/internal/model"
)

// AccessTokenCookie is the cookie fallback for clients that do not send a
// bearer header. The header wins when both are present.
const AccessTokenCookie = "accessToken"

type tokenVerifier interface {
	Verify(tokenString string, purpose string) (*model.TokenClaims, error)
}

type revocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type identityLoader interface {
	FindByID(ctx context.Context, id string) (model.User, error)
}

type contextKey string

const identityContextKey contextKey = "auth_identity"

// SessionGuard validates inbound request credentials and attaches the
// resolved, sanitized identity to the request context.
type SessionGuard struct {
	codec  tokenVerifier
	ledger revocationChecker
	users  identityLoader
	now    func() time.Time
}

func NewSessionGuard(codec tokenVerifier, ledger revocationChecker, users identityLoader, now func() time.Time) *SessionGuard {
	if now == nil {
		now = time.Now
	}

	return &SessionGuard{codec: codec, ledger: ledger, users: users, now: now}
}

func (g *SessionGuard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractAccessToken(r)
		if token == "" {
			writeGuardError(w, model.ErrMissingCredential)
			return
		}

		revoked, err := g.ledger.IsRevoked(r.Context(), token)
		if err != nil {
			writeGuardError(w, err)
			return
		}
		if revoked {
			writeGuardError(w, model.ErrRevoked)
			return
		}

		claims, err := g.codec.Verify(token, model.PurposeAccess)
		if err != nil {
			writeGuardError(w, err)
			return
		}

		// Second expiry check against our own clock, in case the codec
		// tolerates skew.
		if !g.now().Before(claims.ExpiresAt) {
			writeGuardError(w, model.ErrExpired)
			return
		}

		user, err := g.users.FindByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, model.ErrUserNotFound) {
				// Covers accounts deleted after issuance.
				writeGuardError(w, model.ErrUnknownSubject)
				return
			}
			writeGuardError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, user.Public())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin is the capability gate, composed after RequireAuth. Its
// rejection is a 403, distinct from the 401 authentication failures.
func (g *SessionGuard) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeGuardError(w, model.ErrMissingCredential)
			return
		}

		if !identity.IsAdmin {
			writeGuardError(w, model.ErrForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func IdentityFromContext(ctx context.Context) (model.PublicUser, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.PublicUser)
	return identity, ok
}

func extractAccessToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" && strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}

	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}

	return ""
}

func writeGuardError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	message := "authentication required"

	switch {
	case errors.Is(err, model.ErrMissingCredential):
		message = "missing credentials"
	case errors.Is(err, model.ErrRevoked):
		message = "token revoked"
	case errors.Is(err, model.ErrExpired):
		message = "token expired"
	case errors.Is(err, model.ErrInvalidSignature):
		message = "invalid token"
	case errors.Is(err, model.ErrUnknownSubject):
		message = "unknown account"
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
		message = "admin access required"
	case errors.Is(err, model.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		message = "service temporarily unavailable"
	default:
		status = http.StatusInternalServerError
		message = "unexpected server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonEncode(w, model.APIResponse{Success: false, Message: message})
}
