package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

// Clock supplies the current time. Injected so expiry behavior is testable
// and so no component reads ambient time on its own terms.
type Clock func() time.Time

// TokenCodec signs and verifies purpose-scoped HS256 tokens. Each purpose
// (access, refresh, reset) has its own secret; a token signed for one
// purpose can never verify under another. Verification classifies failures
// into the model sentinel errors exactly once, here.
type TokenCodec struct {
	secrets map[string][]byte
	ttls    map[string]time.Duration
	now     Clock
}

func NewTokenCodec(accessSecret, refreshSecret, resetSecret string, accessTTL, refreshTTL, resetTTL time.Duration, now Clock) *TokenCodec {
	if now == nil {
		now = time.Now
	}

	return &TokenCodec{
		secrets: map[string][]byte{
			model.PurposeAccess:  []byte(accessSecret),
			model.PurposeRefresh: []byte(refreshSecret),
			model.PurposeReset:   []byte(resetSecret),
		},
		ttls: map[string]time.Duration{
			model.PurposeAccess:  accessTTL,
			model.PurposeRefresh: refreshTTL,
			model.PurposeReset:   resetTTL,
		},
		now: now,
	}
}

func (c *TokenCodec) IssueAccess(userID string) (string, time.Time, error) {
	return c.issue(userID, model.PurposeAccess)
}

// IssueRefresh mints a refresh token. The random jti nonce makes every
// issuance a distinct string, which the revocation ledger's per-token
// uniqueness relies on.
func (c *TokenCodec) IssueRefresh(userID string) (string, time.Time, error) {
	return c.issue(userID, model.PurposeRefresh)
}

func (c *TokenCodec) IssueReset(userID string) (string, time.Time, error) {
	return c.issue(userID, model.PurposeReset)
}

func (c *TokenCodec) issue(userID string, purpose string) (string, time.Time, error) {
	issuedAt := c.now().UTC()
	expiresAt := issuedAt.Add(c.ttls[purpose])

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"typ": purpose,
		"jti": uuid.NewString(),
		"iat": issuedAt.Unix(),
		"exp": expiresAt.Unix(),
	})

	signed, err := token.SignedString(c.secrets[purpose])
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Verify checks signature and expiry against the secret for the given
// purpose. The secret is chosen by the caller's expectation, never by the
// token's own claims, so a mismatched purpose fails as a bad signature.
func (c *TokenCodec) Verify(tokenString string, purpose string) (*model.TokenClaims, error) {
	secret, ok := c.secrets[purpose]
	if !ok {
		return nil, model.ErrInvalidSignature
	}

	parsed, err := jwt.Parse(tokenString,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.ErrExpired
		}
		return nil, model.ErrInvalidSignature
	}

	claims, err := c.extract(parsed)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, model.ErrInvalidSignature
	}

	return claims, nil
}

// DecodeUnverified extracts claims without checking the signature or
// expiry. Logout uses it to revoke already-expired or oddly-signed tokens
// for their claimed remaining lifetime. Returns nil if the token cannot be
// decoded at all.
func (c *TokenCodec) DecodeUnverified(tokenString string) *model.TokenClaims {
	parsed, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil
	}

	claims, err := c.extract(parsed)
	if err != nil {
		return nil
	}

	return claims
}

func (c *TokenCodec) extract(parsed *jwt.Token) (*model.TokenClaims, error) {
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrInvalidSignature
	}

	subject, _ := mapClaims["sub"].(string)
	if subject == "" {
		return nil, model.ErrInvalidSignature
	}

	purpose, _ := mapClaims["typ"].(string)
	tokenID, _ := mapClaims["jti"].(string)

	var expiresAt time.Time
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return &model.TokenClaims{
		UserID:    subject,
		Purpose:   purpose,
		TokenID:   tokenID,
		ExpiresAt: expiresAt,
	}, nil
}
