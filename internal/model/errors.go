package model

import "errors"

var (
	// Credential rejection kinds. All are terminal for the request; the
	// client decides whether a refresh attempt makes sense (Expired yes,
	// Revoked never).
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidSignature  = errors.New("invalid token signature")
	ErrExpired           = errors.New("token expired")
	ErrRevoked           = errors.New("token revoked")
	ErrUnknownSubject    = errors.New("unknown subject")

	// ErrInvalidCredentials deliberately covers both unknown email and
	// wrong password so login responses do not aid account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrForbidden is the capability gate rejection, distinct from the
	// authentication failures above.
	ErrForbidden = errors.New("forbidden")

	// User store errors
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")

	// ErrStoreUnavailable marks infrastructure faults. It must never be
	// conflated with a credential rejection.
	ErrStoreUnavailable = errors.New("store unavailable")
)
