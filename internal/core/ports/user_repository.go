package ports

import (
	"context"
	"time"

	"github.com/reachend/auth-service/internal/core/domain"
)

// ListUsersFilter scopes a user listing. Soft-deleted rows are skipped unless
// IncludeDeleted is set.
type ListUsersFilter struct {
	IncludeDeleted bool
	Search         string // optional: partial match on name or email
	Limit          int
	Offset         int
}

// UserRepository is the credential store.
type UserRepository interface {
	// Create inserts a user and returns it with its assigned ID.
	// Returns domain.ErrDuplicateEmail when an active user already owns the email.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)

	// FindActiveByEmail ignores soft-deleted users.
	FindActiveByEmail(ctx context.Context, email string) (*domain.User, error)

	// FindByID returns the user whether or not it is soft-deleted.
	FindByID(ctx context.Context, id int64) (*domain.User, error)

	List(ctx context.Context, filter ListUsersFilter) ([]*domain.User, error)

	// SetResetToken and SetOTP stamp updated_at with at rather than the
	// store's own clock.
	SetResetToken(ctx context.Context, userID int64, token string, expiresAt, at time.Time) error
	SetOTP(ctx context.Context, userID int64, code string, expiresAt, at time.Time) error

	// ConsumeResetToken replaces the password hash and clears the reset token
	// in a single conditional write. It succeeds only while the stored token
	// still equals token and has not expired at now; otherwise it returns
	// domain.ErrInvalidToken and changes nothing.
	ConsumeResetToken(ctx context.Context, email, token, passwordHash string, now time.Time) error

	// ConsumeOTP is the OTP counterpart of ConsumeResetToken and returns
	// domain.ErrInvalidOrExpiredOTP when the code no longer matches.
	ConsumeOTP(ctx context.Context, email, code, passwordHash string, now time.Time) error

	// SoftDelete returns domain.ErrAlreadyDeleted for a user that is already deleted.
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	HardDelete(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
}
