package ports

import (
	"context"
	"time"

	"github.com/reachend/auth-service/internal/core/domain"
)

// RegisterInput carries the data needed to create an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role // empty means domain.RoleUser
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Principal domain.Principal
}

// AuthService authenticates users and resolves bearer tokens into principals.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Resolve(ctx context.Context, token string) (*domain.Principal, error)
	RequireRole(principal domain.Principal, role domain.Role) error
}

// UserService exposes account lookups and admin lifecycle operations.
type UserService interface {
	Get(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context, filter ListUsersFilter) ([]*domain.User, error)
	SoftDelete(ctx context.Context, id int64) error
	HardDelete(ctx context.Context, id int64) error
}
