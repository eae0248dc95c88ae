package types

import "time"

// Session is a server-side record backing an issued bearer token.
// A token authorizes requests only while a matching, unexpired session
// row exists; deleting the row revokes the token before its signature
// expiry elapses.
type Session struct {
	// ID is the unique identifier of the session (UUIDv4).
	ID string `json:"id" db:"id"`

	// UserID references the owning user. Sessions are cascade-deleted
	// with the user.
	UserID string `json:"user_id" db:"user_id"`

	// Token is the bearer token value this session backs, stored verbatim.
	Token string `json:"-" db:"token"`

	// ExpiresAt mirrors the token's own expiry.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// CreatedAt is the timestamp when the session was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PasswordResetToken is a single-use, time-limited token allowing a user
// to set a new password without knowing the old one. Delivery of the
// token (email) is handled outside this service.
type PasswordResetToken struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"user_id" db:"user_id"`
	Token      string     `json:"-" db:"token"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty" db:"consumed_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
