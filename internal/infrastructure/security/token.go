package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

// MinSecretLength is the shortest signing secret the codec accepts.
const MinSecretLength = 32

var ErrWeakSecret = errors.New("token secret too short")

// tokenClaims is the wire shape shared by both token kinds. Purpose keeps a
// reset token from ever decoding as a session token and vice versa.
type tokenClaims struct {
	Purpose domain.TokenKind `json:"purpose"`
	Role    string           `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTCodec implements ports.TokenCodec with HS256-signed JWTs.
type JWTCodec struct {
	secret []byte
	clock  ports.Clock
}

func NewJWTCodec(secret string, clock ports.Clock) (*JWTCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &JWTCodec{secret: []byte(secret), clock: clock}, nil
}

func (c *JWTCodec) EncodeSession(claims domain.SessionClaims) (string, error) {
	if _, err := domain.ParseRole(string(claims.Role)); err != nil {
		return "", fmt.Errorf("encode session token: %w", err)
	}
	return c.sign(domain.TokenKindSession, strconv.FormatInt(claims.UserID, 10), string(claims.Role), claims.ExpiresAt)
}

func (c *JWTCodec) DecodeSession(token string) (*domain.SessionClaims, error) {
	claims, err := c.parse(token, domain.TokenKindSession)
	if err != nil {
		return nil, err
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, domain.ErrTokenMalformed
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return nil, domain.ErrTokenMalformed
	}

	return &domain.SessionClaims{
		UserID:    id,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (c *JWTCodec) EncodeReset(claims domain.ResetClaims) (string, error) {
	if claims.Email == "" {
		return "", errors.New("encode reset token: empty subject")
	}
	return c.sign(domain.TokenKindReset, claims.Email, "", claims.ExpiresAt)
}

func (c *JWTCodec) DecodeReset(token string) (*domain.ResetClaims, error) {
	claims, err := c.parse(token, domain.TokenKindReset)
	if err != nil {
		return nil, err
	}
	if claims.Role != "" {
		return nil, domain.ErrTokenMalformed
	}
	return &domain.ResetClaims{
		Email:     claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (c *JWTCodec) sign(kind domain.TokenKind, subject, role string, expiresAt time.Time) (string, error) {
	if expiresAt.IsZero() {
		return "", fmt.Errorf("encode %s token: expiry required", kind)
	}

	claims := tokenClaims{
		Purpose: kind,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(c.clock.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// parse verifies the signature before any claim is trusted, then expiry, then
// the purpose tag.
func (c *JWTCodec) parse(token string, kind domain.TokenKind) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Purpose != kind || claims.Subject == "" {
		return nil, domain.ErrTokenMalformed
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return domain.ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrTokenExpired
	default:
		return domain.ErrTokenMalformed
	}
}
