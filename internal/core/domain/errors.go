package domain

import (
	"errors"
	"fmt"
)

// Authentication and authorization.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrForbidden          = errors.New("access forbidden")
)

// Token codec failures. Callers translate these; they never reach a client as-is.
var (
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
)

// Account lifecycle.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrAlreadyDeleted = errors.New("user already soft-deleted")
)

// Password recovery.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrResetTokenExpired   = errors.New("reset token has expired")
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired otp")
)

// ErrInvalidInput is returned when required fields are missing or malformed.
var ErrInvalidInput = errors.New("invalid input")

// MaxPasswordBytes is the longest password bcrypt accepts, counted in bytes.
const MaxPasswordBytes = 72

// ErrPasswordTooLong is an ErrInvalidInput.
var ErrPasswordTooLong = fmt.Errorf("%w: password exceeds %d bytes", ErrInvalidInput, MaxPasswordBytes)

// ErrRateLimited is returned when a caller exceeds the request budget for an endpoint.
var ErrRateLimited = errors.New("too many requests")
