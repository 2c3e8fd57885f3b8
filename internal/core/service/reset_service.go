package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"html"
	"io"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
	"github.com/reachend/auth-service/internal/pkg/metrics"
)

const (
	defaultResetTTL = 15 * time.Minute
	defaultOTPTTL   = 10 * time.Minute

	otpDigits = 6
	otpSpace  = 1_000_000

	// Largest multiple of otpSpace that fits in a uint32; draws at or above it are rejected.
	otpCeiling = (1 << 32) / otpSpace * otpSpace
)

// ResetConfig tunes the password recovery flows. Zero values fall back to defaults.
type ResetConfig struct {
	ResetTTL time.Duration
	OTPTTL   time.Duration
	// URLBase is the page that receives the reset token as ?token=...
	URLBase string
}

// ResetService implements the link and OTP password recovery flows.
// Both flows persist their secret before the notification is queued; a failed
// enqueue is logged and never rolls back the stored secret.
type ResetService struct {
	repo   ports.UserRepository
	hasher ports.PasswordHasher
	tokens ports.TokenCodec
	clock  ports.Clock
	random io.Reader
	queue  ports.NotificationQueue
	cfg    ResetConfig
	log    zerolog.Logger
}

// NewResetService wires a ResetService. A nil random reader means crypto/rand.
func NewResetService(
	repo ports.UserRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenCodec,
	clock ports.Clock,
	random io.Reader,
	queue ports.NotificationQueue,
	cfg ResetConfig,
	log zerolog.Logger,
) *ResetService {
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = defaultResetTTL
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = defaultOTPTTL
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if random == nil {
		random = rand.Reader
	}
	return &ResetService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		clock:  clock,
		random: random,
		queue:  queue,
		cfg:    cfg,
		log:    log,
	}
}

func (s *ResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.lookup(ctx, "link", email)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.ResetTTL).Truncate(time.Second)
	token, err := s.tokens.EncodeReset(domain.ResetClaims{Email: user.Email, ExpiresAt: expiresAt})
	if err != nil {
		metrics.ResetRequestsTotal.WithLabelValues("link", "error").Inc()
		return fmt.Errorf("request reset: %w", err)
	}
	if err := s.repo.SetResetToken(ctx, user.ID, token, expiresAt, now); err != nil {
		metrics.ResetRequestsTotal.WithLabelValues("link", "error").Inc()
		return fmt.Errorf("request reset: %w", err)
	}

	s.notify(domain.Notification{
		To:       user.Email,
		Subject:  "Password Reset Request",
		HTMLBody: resetLinkBody(s.resetLink(token), s.cfg.ResetTTL),
	})
	metrics.ResetRequestsTotal.WithLabelValues("link", "issued").Inc()
	return nil
}

func (s *ResetService) RedeemReset(ctx context.Context, token, newPassword string) error {
	if err := checkNewPassword(newPassword); err != nil {
		return err
	}

	claims, err := s.tokens.DecodeReset(token)
	if err != nil {
		metrics.ResetRedemptionsTotal.WithLabelValues("link", "rejected").Inc()
		if errors.Is(err, domain.ErrTokenExpired) {
			return domain.ErrResetTokenExpired
		}
		return domain.ErrInvalidToken
	}
	now := s.clock.Now()
	if !now.Before(claims.ExpiresAt) {
		metrics.ResetRedemptionsTotal.WithLabelValues("link", "rejected").Inc()
		return domain.ErrResetTokenExpired
	}

	user, err := s.repo.FindActiveByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.ResetRedemptionsTotal.WithLabelValues("link", "rejected").Inc()
			return domain.ErrUserNotFound
		}
		metrics.ResetRedemptionsTotal.WithLabelValues("link", "error").Inc()
		return fmt.Errorf("redeem reset: %w", err)
	}
	if user.ResetToken == nil || subtle.ConstantTimeCompare([]byte(*user.ResetToken), []byte(token)) != 1 {
		metrics.ResetRedemptionsTotal.WithLabelValues("link", "rejected").Inc()
		return domain.ErrInvalidToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			metrics.ResetRedemptionsTotal.WithLabelValues("link", "rejected").Inc()
			return err
		}
		metrics.ResetRedemptionsTotal.WithLabelValues("link", "error").Inc()
		return fmt.Errorf("redeem reset: %w", err)
	}
	if err := s.repo.ConsumeResetToken(ctx, user.Email, token, hash, now); err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			metrics.ResetRedemptionsTotal.WithLabelValues("link", "rejected").Inc()
			return domain.ErrInvalidToken
		}
		metrics.ResetRedemptionsTotal.WithLabelValues("link", "error").Inc()
		return fmt.Errorf("redeem reset: %w", err)
	}

	s.log.Info().Int64("user_id", user.ID).Msg("password reset via link")
	metrics.ResetRedemptionsTotal.WithLabelValues("link", "success").Inc()
	return nil
}

func (s *ResetService) RequestOTP(ctx context.Context, email string) error {
	user, err := s.lookup(ctx, "otp", email)
	if err != nil {
		return err
	}

	code, err := s.generateOTP()
	if err != nil {
		metrics.ResetRequestsTotal.WithLabelValues("otp", "error").Inc()
		return fmt.Errorf("request otp: %w", err)
	}
	now := s.clock.Now()
	if err := s.repo.SetOTP(ctx, user.ID, code, now.Add(s.cfg.OTPTTL), now); err != nil {
		metrics.ResetRequestsTotal.WithLabelValues("otp", "error").Inc()
		return fmt.Errorf("request otp: %w", err)
	}

	s.notify(domain.Notification{
		To:       user.Email,
		Subject:  "Password Reset OTP",
		HTMLBody: otpBody(code, s.cfg.OTPTTL),
	})
	metrics.ResetRequestsTotal.WithLabelValues("otp", "issued").Inc()
	return nil
}

func (s *ResetService) RedeemOTP(ctx context.Context, email, otp, newPassword string) error {
	if err := checkNewPassword(newPassword); err != nil {
		return err
	}

	user, err := s.repo.FindActiveByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.ResetRedemptionsTotal.WithLabelValues("otp", "rejected").Inc()
			return domain.ErrUserNotFound
		}
		metrics.ResetRedemptionsTotal.WithLabelValues("otp", "error").Inc()
		return fmt.Errorf("redeem otp: %w", err)
	}

	now := s.clock.Now()
	if user.OTPCode == nil || user.OTPExpiresAt == nil ||
		subtle.ConstantTimeCompare([]byte(*user.OTPCode), []byte(otp)) != 1 ||
		!now.Before(*user.OTPExpiresAt) {
		metrics.ResetRedemptionsTotal.WithLabelValues("otp", "rejected").Inc()
		return domain.ErrInvalidOrExpiredOTP
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			metrics.ResetRedemptionsTotal.WithLabelValues("otp", "rejected").Inc()
			return err
		}
		metrics.ResetRedemptionsTotal.WithLabelValues("otp", "error").Inc()
		return fmt.Errorf("redeem otp: %w", err)
	}
	if err := s.repo.ConsumeOTP(ctx, user.Email, otp, hash, now); err != nil {
		if errors.Is(err, domain.ErrInvalidOrExpiredOTP) {
			metrics.ResetRedemptionsTotal.WithLabelValues("otp", "rejected").Inc()
			return domain.ErrInvalidOrExpiredOTP
		}
		metrics.ResetRedemptionsTotal.WithLabelValues("otp", "error").Inc()
		return fmt.Errorf("redeem otp: %w", err)
	}

	s.log.Info().Int64("user_id", user.ID).Msg("password reset via otp")
	metrics.ResetRedemptionsTotal.WithLabelValues("otp", "success").Inc()
	return nil
}

func checkNewPassword(pw string) error {
	switch {
	case pw == "":
		return domain.ErrInvalidInput
	case len(pw) > domain.MaxPasswordBytes:
		return domain.ErrPasswordTooLong
	}
	return nil
}

func (s *ResetService) lookup(ctx context.Context, flow, email string) (*domain.User, error) {
	user, err := s.repo.FindActiveByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.ResetRequestsTotal.WithLabelValues(flow, "unknown_email").Inc()
			return nil, domain.ErrUserNotFound
		}
		metrics.ResetRequestsTotal.WithLabelValues(flow, "error").Inc()
		return nil, fmt.Errorf("lookup %s: %w", flow, err)
	}
	return user, nil
}

func (s *ResetService) notify(n domain.Notification) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(n); err != nil {
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		s.log.Error().Err(err).Str("subject", n.Subject).Msg("failed to enqueue notification")
	}
}

// generateOTP draws a uniformly distributed code in [0, 10^6) and zero-pads it.
func (s *ResetService) generateOTP() (string, error) {
	var buf [4]byte
	for {
		if _, err := io.ReadFull(s.random, buf[:]); err != nil {
			return "", err
		}
		n := binary.BigEndian.Uint32(buf[:])
		if uint64(n) < otpCeiling {
			return fmt.Sprintf("%0*d", otpDigits, n%otpSpace), nil
		}
	}
}

func (s *ResetService) resetLink(token string) string {
	base := s.cfg.URLBase
	if base == "" {
		base = "http://localhost:8080/reset-password"
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func resetLinkBody(link string, ttl time.Duration) string {
	return fmt.Sprintf(`<p>You requested a password reset. Click the link below to reset your password:</p>
<p><a href="%s">Reset Password</a></p>
<p>This link will expire in %d minutes.</p>`, html.EscapeString(link), int(ttl.Minutes()))
}

func otpBody(code string, ttl time.Duration) string {
	return fmt.Sprintf(`<p>Your password reset OTP is: <strong>%s</strong></p>
<p>This OTP is valid for %d minutes.</p>`, code, int(ttl.Minutes()))
}
