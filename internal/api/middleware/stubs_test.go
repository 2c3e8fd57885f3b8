package middleware

import (
	"context"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

type stubAuthService struct {
	ports.AuthService
	resolveFn     func(ctx context.Context, token string) (*domain.Principal, error)
	requireRoleFn func(p domain.Principal, role domain.Role) error
}

func (s *stubAuthService) Resolve(ctx context.Context, token string) (*domain.Principal, error) {
	return s.resolveFn(ctx, token)
}

func (s *stubAuthService) RequireRole(p domain.Principal, role domain.Role) error {
	return s.requireRoleFn(p, role)
}
