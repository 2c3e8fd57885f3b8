package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
	"github.com/reachend/auth-service/internal/pkg/metrics"
)

const defaultSessionTTL = 30 * time.Minute

// AuthService implements registration, login and bearer token resolution.
type AuthService struct {
	repo       ports.UserRepository
	hasher     ports.PasswordHasher
	tokens     ports.TokenCodec
	clock      ports.Clock
	sessionTTL time.Duration
	log        zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	repo ports.UserRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenCodec,
	clock ports.Clock,
	sessionTTL time.Duration,
	log zerolog.Logger,
) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &AuthService{
		repo:       repo,
		hasher:     hasher,
		tokens:     tokens,
		clock:      clock,
		sessionTTL: sessionTTL,
		log:        log,
	}
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if name == "" || email == "" || in.Password == "" {
		return nil, domain.ErrInvalidInput
	}
	if len(in.Password) > domain.MaxPasswordBytes {
		return nil, domain.ErrPasswordTooLong
	}

	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	now := s.clock.Now()
	created, err := s.repo.Create(ctx, &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.log.Info().Int64("user_id", created.ID).Str("role", created.Role.String()).Msg("user registered")
	return created, nil
}

// EnsureAdmin creates the bootstrap admin account unless an active user
// already owns the email. It reports whether an account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	existing, err := s.repo.FindActiveByEmail(ctx, normalizeEmail(email))
	switch {
	case err == nil:
		if existing.Role != domain.RoleAdmin {
			s.log.Warn().Int64("user_id", existing.ID).Msg("bootstrap admin email belongs to a non-admin user")
		}
		return false, nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return false, fmt.Errorf("ensure admin: %w", err)
	}

	_, err = s.Register(ctx, ports.RegisterInput{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     domain.RoleAdmin,
	})
	if errors.Is(err, domain.ErrDuplicateEmail) {
		// Another instance won the race.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Login never tells the caller which of email or password was wrong.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	user, err := s.repo.FindActiveByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("login: %w", err)
		}
		// Burn a comparison so unknown emails cost the same as wrong passwords.
		s.hasher.Verify(password, s.timingHash())
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	// JWT exp has whole-second resolution.
	expiresAt := s.clock.Now().Add(s.sessionTTL).Truncate(time.Second)
	token, err := s.tokens.EncodeSession(domain.SessionClaims{
		UserID:    user.ID,
		Role:      user.Role,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: %w", err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	return &ports.LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Principal: domain.Principal{UserID: user.ID, Role: user.Role},
	}, nil
}

// Resolve turns a session token into a principal. Expiry is reported as
// domain.ErrTokenExpired; every other failure collapses into
// domain.ErrInvalidCredentials. Soft-deleted users are rejected even while
// their token is still within its lifetime.
func (s *AuthService) Resolve(ctx context.Context, token string) (*domain.Principal, error) {
	claims, err := s.tokens.DecodeSession(token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			metrics.TokenResolutionsTotal.WithLabelValues("expired").Inc()
			return nil, domain.ErrTokenExpired
		}
		metrics.TokenResolutionsTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.TokenResolutionsTotal.WithLabelValues("invalid").Inc()
			return nil, domain.ErrInvalidCredentials
		}
		metrics.TokenResolutionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if !user.Active() {
		s.log.Debug().Int64("user_id", user.ID).Msg("token presented for soft-deleted user")
		metrics.TokenResolutionsTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	metrics.TokenResolutionsTotal.WithLabelValues("ok").Inc()
	return &domain.Principal{UserID: claims.UserID, Role: claims.Role}, nil
}

// RequireRole is an exact match; admin does not implicitly satisfy user.
func (s *AuthService) RequireRole(principal domain.Principal, role domain.Role) error {
	switch role {
	case domain.RoleAdmin, domain.RoleUser:
		if principal.Role == role {
			return nil
		}
		return domain.ErrForbidden
	default:
		return domain.ErrForbidden
	}
}

func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("timing-equalizer")
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to prepare timing hash")
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
