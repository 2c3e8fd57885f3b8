package domain

import (
	"errors"
	"time"
)

// Role is the closed set of roles a user can hold.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole converts a raw string into a Role, rejecting anything outside the enumeration.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	}
	return "", ErrUnknownRole
}

func (r Role) String() string { return string(r) }

// User models an account holder. Soft-deleted users keep their row but are
// excluded from authentication and from the email uniqueness constraint.
type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	IsDeleted    bool       `json:"is_deleted"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`

	ResetToken        *string    `json:"-"`
	ResetTokenExpires *time.Time `json:"-"`
	OTPCode           *string    `json:"-"`
	OTPExpiresAt      *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the user may authenticate.
func (u *User) Active() bool {
	return u != nil && !u.IsDeleted
}

// Principal is the verified identity attached to a single request.
type Principal struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}
