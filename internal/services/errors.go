package services

import "errors"

// Authentication and authorization failures surfaced to handlers.
// Handlers map these to HTTP statuses; the messages are safe to show
// to clients.
var (
	// ErrInvalidCredentials covers both unknown email and wrong
	// password so that login responses cannot be used to enumerate
	// accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountDeactivated is returned for inactive accounts on both
	// login and token verification. Unlike ErrInvalidCredentials it
	// reveals that the account exists; this mirrors the original
	// system's behavior and is kept deliberately.
	ErrAccountDeactivated = errors.New("account is deactivated")

	ErrDuplicateEmail = errors.New("email already registered")

	ErrMissingToken = errors.New("missing or malformed authorization header")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// ErrSessionExpired means the token's signature checked out but no
	// live session row backs it: the session expired or was revoked by
	// logout or a password reset.
	ErrSessionExpired = errors.New("session expired or revoked")

	ErrUserNotFound = errors.New("user not found")

	ErrResetTokenInvalid = errors.New("invalid or expired reset token")

	// ErrCVExists is returned when initializing a CV for a user who
	// already has one.
	ErrCVExists = errors.New("cv already exists")
)
