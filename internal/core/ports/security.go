package ports

import (
	"time"

	"github.com/reachend/auth-service/internal/core/domain"
)

// PasswordHasher is a salted one-way hash. Verify never panics on a malformed hash.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// TokenCodec signs and verifies the two token kinds. Decode errors are one of
// domain.ErrTokenMalformed, domain.ErrTokenBadSignature or domain.ErrTokenExpired.
type TokenCodec interface {
	EncodeSession(claims domain.SessionClaims) (string, error)
	DecodeSession(token string) (*domain.SessionClaims, error)
	EncodeReset(claims domain.ResetClaims) (string, error)
	DecodeReset(token string) (*domain.ResetClaims, error)
}

// Clock supplies the current time so expiry logic can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
