package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// UserService serves account lookups and the admin lifecycle operations.
type UserService struct {
	repo  ports.UserRepository
	clock ports.Clock
	log   zerolog.Logger
}

func NewUserService(repo ports.UserRepository, clock ports.Clock, log zerolog.Logger) *UserService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &UserService{repo: repo, clock: clock, log: log}
}

func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, filter ports.ListUsersFilter) ([]*domain.User, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

func (s *UserService) SoftDelete(ctx context.Context, id int64) error {
	if err := s.repo.SoftDelete(ctx, id, s.clock.Now()); err != nil {
		return fmt.Errorf("soft delete user %d: %w", id, err)
	}
	s.log.Info().Int64("user_id", id).Msg("user soft-deleted")
	return nil
}

func (s *UserService) HardDelete(ctx context.Context, id int64) error {
	if err := s.repo.HardDelete(ctx, id); err != nil {
		return fmt.Errorf("hard delete user %d: %w", id, err)
	}
	s.log.Info().Int64("user_id", id).Msg("user hard-deleted")
	return nil
}
