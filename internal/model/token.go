package model

import "time"

// Token purposes. Each purpose is signed with its own secret, so a token
// issued for one purpose can never verify under another.
const (
	PurposeAccess  = "access"
	PurposeRefresh = "refresh"
	PurposeReset   = "reset"
)

// TokenClaims is the decoded, already-classified content of a token. The
// codec decides validity once; callers never re-inspect JWT internals.
type TokenClaims struct {
	UserID    string
	Purpose   string
	TokenID   string
	ExpiresAt time.Time
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RevokedToken is a ledger entry for an explicitly invalidated token. An
// entry is meaningless past ExpiresAt and gets garbage-collected.
type RevokedToken struct {
	Token     string    `json:"token"`
	Purpose   string    `json:"purpose"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
