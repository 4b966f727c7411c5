package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-auth-service/internal/model"
	"go-auth-service/internal/notify"
	"go-auth-service/pkg/apierror"
)

// UserStore is the credential store. The auth core reads users and only
// writes at registration and password change.
type UserStore interface {
	Create(ctx context.Context, u model.User) error
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
}

// RevocationLedger persists explicitly invalidated tokens until their
// natural expiry. Record must be atomic and idempotent: the bool result
// reports whether this call actually inserted the entry, which the refresh
// rotation uses as its single-use gate.
type RevocationLedger interface {
	Record(ctx context.Context, token string, purpose string, expiresAt time.Time) (bool, error)
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type AuthService struct {
	codec      *TokenCodec
	users      UserStore
	ledger     RevocationLedger
	federated  FederatedVerifier
	notifier   notify.Notifier
	bcryptCost int
	now        Clock
}

func NewAuthService(codec *TokenCodec, users UserStore, ledger RevocationLedger, federated FederatedVerifier, notifier notify.Notifier, bcryptCost int, now Clock) *AuthService {
	if now == nil {
		now = time.Now
	}
	if federated == nil {
		federated = DisabledVerifier{}
	}

	return &AuthService{
		codec:      codec,
		users:      users,
		ledger:     ledger,
		federated:  federated,
		notifier:   notifier,
		bcryptCost: bcryptCost,
		now:        now,
	}
}

func (s *AuthService) Register(ctx context.Context, email string, password string) (model.User, model.TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, model.TokenPair{}, apierror.New("BAD_REQUEST", "a valid email is required", http.StatusBadRequest)
	}
	if len(password) < 8 {
		return model.User{}, model.TokenPair{}, apierror.New("BAD_REQUEST", "password must be at least 8 characters", http.StatusBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		IsAdmin:      false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	s.notifier.Publish(notify.Message{Type: notify.TypeWelcome, Email: user.Email})

	return user, pair, nil
}

// Login collapses unknown email and wrong password into one generic
// rejection so responses cannot be used to enumerate accounts.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.User, model.TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.User{}, model.TokenPair{}, model.ErrInvalidCredentials
		}
		return model.User{}, model.TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.User{}, model.TokenPair{}, model.ErrInvalidCredentials
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	return user, pair, nil
}

// FederatedLogin is an alternate issuance trigger: the external verifier
// vouches for the identity, then the same token pair is minted. Unknown
// emails are provisioned on the fly with an unusable random password.
func (s *AuthService) FederatedLogin(ctx context.Context, provider string, idToken string) (model.User, model.TokenPair, error) {
	identity, err := s.federated.Verify(ctx, provider, idToken)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	user, err := s.users.FindByEmail(ctx, normalizeEmail(identity.Email))
	if errors.Is(err, model.ErrUserNotFound) {
		user, err = s.provisionFederatedUser(ctx, identity.Email)
	}
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	return user, pair, nil
}

func (s *AuthService) provisionFederatedUser(ctx context.Context, email string) (model.User, error) {
	// Password login stays impossible for federated accounts: the stored
	// hash is of a random value nobody knows.
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.bcryptCost)
	if err != nil {
		return model.User{}, err
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, err
	}

	return user, nil
}

// Refresh rotates a refresh token: verify, check the ledger, resolve the
// subject, then atomically record the presented token as consumed. The
// ledger insert is the single point of truth for "already rotated" — when
// two requests race, exactly one insert wins and the loser sees Revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.User, model.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return model.User{}, model.TokenPair{}, model.ErrMissingCredential
	}

	claims, err := s.codec.Verify(refreshToken, model.PurposeRefresh)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	revoked, err := s.ledger.IsRevoked(ctx, refreshToken)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	if revoked {
		return model.User{}, model.TokenPair{}, model.ErrRevoked
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.User{}, model.TokenPair{}, model.ErrUnknownSubject
		}
		return model.User{}, model.TokenPair{}, err
	}

	// Expiry equals the token's own claimed exp, not now+TTL: the entry
	// only needs to outlive the token's remaining natural lifetime.
	inserted, err := s.ledger.Record(ctx, refreshToken, model.PurposeRefresh, claims.ExpiresAt)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	if !inserted {
		return model.User{}, model.TokenPair{}, model.ErrRevoked
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	return user, pair, nil
}

// Logout revokes whatever tokens are presented, best effort. Signature
// validity is not required — an expired or malformed token is still
// ledgered for its claimed remaining lifetime (or treated as already
// expired when unreadable). Callers clear cookies regardless of the
// returned error.
func (s *AuthService) Logout(ctx context.Context, accessToken string, refreshToken string) error {
	var firstErr error

	record := func(token string, fallbackPurpose string) {
		if strings.TrimSpace(token) == "" {
			return
		}

		purpose := fallbackPurpose
		expiresAt := s.now().UTC()
		if claims := s.codec.DecodeUnverified(token); claims != nil {
			if claims.Purpose != "" {
				purpose = claims.Purpose
			}
			if !claims.ExpiresAt.IsZero() {
				expiresAt = claims.ExpiresAt
			}
		}

		if _, err := s.ledger.Record(ctx, token, purpose, expiresAt); err != nil {
			slog.Warn("logout revocation failed", "purpose", purpose, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	record(accessToken, model.PurposeAccess)
	record(refreshToken, model.PurposeRefresh)

	return firstErr
}

// RequestPasswordReset issues a short-lived reset token and hands it to the
// notification side-channel. The caller always gets a success answer;
// whether the email exists is never disclosed.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil
		}
		return err
	}

	token, _, err := s.codec.IssueReset(user.ID)
	if err != nil {
		return err
	}

	s.notifier.Publish(notify.Message{Type: notify.TypePasswordReset, Email: user.Email, Token: token})

	return nil
}

// CompletePasswordReset consumes a reset token by setting the new password
// hash. Reset tokens have their own secret, so the session guard can never
// accept one; the short TTL and single consuming operation make a ledger
// entry unnecessary.
func (s *AuthService) CompletePasswordReset(ctx context.Context, token string, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return model.ErrMissingCredential
	}
	if len(newPassword) < 8 {
		return apierror.New("BAD_REQUEST", "password must be at least 8 characters", http.StatusBadRequest)
	}

	claims, err := s.codec.Verify(token, model.PurposeReset)
	if err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.ErrUnknownSubject
		}
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	s.notifier.Publish(notify.Message{Type: notify.TypePasswordSet, Email: user.Email})

	return nil
}

func (s *AuthService) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *AuthService) issuePair(userID string) (model.TokenPair, error) {
	access, accessExp, err := s.codec.IssueAccess(userID)
	if err != nil {
		return model.TokenPair{}, err
	}

	refresh, refreshExp, err := s.codec.IssueRefresh(userID)
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
