package domain

import "time"

// TokenKind tags the purpose a signed token was minted for. A token of one
// kind is never accepted where the other is expected.
type TokenKind string

const (
	TokenKindSession TokenKind = "session"
	TokenKindReset   TokenKind = "password_reset"
)

// SessionClaims are carried by the token issued on login.
type SessionClaims struct {
	UserID    int64
	Role      Role
	ExpiresAt time.Time
}

// ResetClaims are carried by the token embedded in a password reset link.
type ResetClaims struct {
	Email     string
	ExpiresAt time.Time
}
