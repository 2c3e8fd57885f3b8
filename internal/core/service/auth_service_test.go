package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
	"github.com/reachend/auth-service/internal/infrastructure/security"
)

func TestAuthService_Register_Success(t *testing.T) {
	f := newFixture(t)

	user, err := f.auth.Register(context.Background(), ports.RegisterInput{
		Name:     "  Alice ",
		Email:    " Alice@Example.com ",
		Password: "pass123",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Name != "Alice" {
		t.Fatalf("expected trimmed name, got %q", user.Name)
	}
	if user.Role != domain.RoleUser {
		t.Fatalf("expected default role user, got %s", user.Role)
	}
	if user.PasswordHash == "pass123" || !f.hasher.Verify("pass123", user.PasswordHash) {
		t.Fatalf("expected stored hash to verify the password")
	}
	if !user.CreatedAt.Equal(t0) {
		t.Fatalf("expected created_at from clock, got %v", user.CreatedAt)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   ports.RegisterInput
		want error
	}{
		{"missing name", ports.RegisterInput{Email: "a@b.c", Password: "x"}, domain.ErrInvalidInput},
		{"missing email", ports.RegisterInput{Name: "a", Password: "x"}, domain.ErrInvalidInput},
		{"missing password", ports.RegisterInput{Name: "a", Email: "a@b.c"}, domain.ErrInvalidInput},
		{"unknown role", ports.RegisterInput{Name: "a", Email: "a@b.c", Password: "x", Role: "owner"}, domain.ErrUnknownRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.auth.Register(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.register(t, "bob@example.com", "pass", "")

	_, err := f.auth.Register(context.Background(), ports.RegisterInput{
		Name: "Bob", Email: "BOB@example.com", Password: "pass2",
	})
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestAuthService_Register_ReusesEmailOfDeletedUser(t *testing.T) {
	f := newFixture(t)
	old := f.register(t, "carol@example.com", "pass", "")
	if err := f.users.SoftDelete(context.Background(), old.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	again := f.register(t, "carol@example.com", "pass", "")
	if again.ID == old.ID {
		t.Fatalf("expected a new record")
	}
}

func TestAuthService_LoginAndResolve(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@x.com", "hunter2", domain.RoleAdmin)

	res, err := f.auth.Login(context.Background(), "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Token == "" {
		t.Fatalf("expected token")
	}
	if !res.ExpiresAt.Equal(t0.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", res.ExpiresAt)
	}
	if res.Principal != (domain.Principal{UserID: u.ID, Role: domain.RoleAdmin}) {
		t.Fatalf("unexpected principal: %+v", res.Principal)
	}

	p, err := f.auth.Resolve(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if p.UserID != u.ID || p.Role != domain.RoleAdmin {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestAuthService_Login_SameErrorForUnknownEmailAndWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "hunter2", "")

	_, wrongPassword := f.auth.Login(context.Background(), "a@x.com", "nope")
	_, unknownEmail := f.auth.Login(context.Background(), "nobody@x.com", "hunter2")

	if !errors.Is(wrongPassword, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongPassword)
	}
	if !errors.Is(unknownEmail, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("errors differ: %q vs %q", wrongPassword, unknownEmail)
	}
}

func TestAuthService_Login_StoreFailureIsNotInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.repo.err = errStoreDown

	_, err := f.auth.Login(context.Background(), "a@x.com", "pw")
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestAuthService_Login_SoftDeletedUser(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@x.com", "hunter2", "")
	if err := f.users.SoftDelete(context.Background(), u.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if _, err := f.auth.Login(context.Background(), "a@x.com", "hunter2"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Resolve_Expiry(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "hunter2", "")
	res, err := f.auth.Login(context.Background(), "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	f.clock.Advance(30*time.Minute - time.Second)
	if _, err := f.auth.Resolve(context.Background(), res.Token); err != nil {
		t.Fatalf("expected token valid one second before expiry, got %v", err)
	}

	f.clock.Advance(time.Second)
	if _, err := f.auth.Resolve(context.Background(), res.Token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at expiry, got %v", err)
	}
}

func TestAuthService_Resolve_Rejections(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@x.com", "hunter2", "")

	otherCodec, err := security.NewJWTCodec("another-secret-with-at-least-32-bytes", f.clock)
	if err != nil {
		t.Fatalf("NewJWTCodec: %v", err)
	}
	foreign, _ := otherCodec.EncodeSession(domain.SessionClaims{UserID: u.ID, Role: domain.RoleUser, ExpiresAt: t0.Add(time.Hour)})
	resetToken, _ := f.codec.EncodeReset(domain.ResetClaims{Email: u.Email, ExpiresAt: t0.Add(time.Hour)})
	ghost, _ := f.codec.EncodeSession(domain.SessionClaims{UserID: 999, Role: domain.RoleUser, ExpiresAt: t0.Add(time.Hour)})
	valid, _ := f.codec.EncodeSession(domain.SessionClaims{UserID: u.ID, Role: domain.RoleUser, ExpiresAt: t0.Add(time.Hour)})

	// Signature of one token over the payload of another.
	vp, gp := strings.Split(valid, "."), strings.Split(ghost, ".")
	tampered := vp[0] + "." + gp[1] + "." + vp[2]

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"tampered", tampered},
		{"reset token used as session", resetToken},
		{"unknown user", ghost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.auth.Resolve(context.Background(), tt.token); !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestAuthService_Resolve_SoftDeletedUserLosesSession(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@x.com", "hunter2", "")
	res, err := f.auth.Login(context.Background(), "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := f.users.SoftDelete(context.Background(), u.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := f.auth.Resolve(context.Background(), res.Token); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_RequireRole(t *testing.T) {
	svc := NewAuthService(newStubUserRepo(), nil, nil, nil, 0, zerolog.Nop())

	tests := []struct {
		name      string
		principal domain.Role
		required  domain.Role
		want      error
	}{
		{"admin on admin route", domain.RoleAdmin, domain.RoleAdmin, nil},
		{"user on admin route", domain.RoleUser, domain.RoleAdmin, domain.ErrForbidden},
		{"user on user route", domain.RoleUser, domain.RoleUser, nil},
		{"admin on user route", domain.RoleAdmin, domain.RoleUser, domain.ErrForbidden},
		{"unknown required role", domain.RoleAdmin, domain.Role("owner"), domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.RequireRole(domain.Principal{UserID: 7, Role: tt.principal}, tt.required)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.auth.EnsureAdmin(ctx, "Root", "Root@Example.com", "bootstrap-pass")
	if err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if !created {
		t.Fatalf("expected the admin to be created")
	}

	created, err = f.auth.EnsureAdmin(ctx, "Root", "root@example.com", "other-pass")
	if err != nil {
		t.Fatalf("second EnsureAdmin: %v", err)
	}
	if created {
		t.Fatalf("expected the second call to be a no-op")
	}

	res, err := f.auth.Login(ctx, "root@example.com", "bootstrap-pass")
	if err != nil {
		t.Fatalf("login as bootstrap admin: %v", err)
	}
	if res.Principal.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", res.Principal.Role)
	}
}

func TestAuthService_EnsureAdmin_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.err = errStoreDown

	if _, err := f.auth.EnsureAdmin(context.Background(), "Root", "root@example.com", "bootstrap-pass"); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestAuthService_Register_PasswordByteLimit(t *testing.T) {
	f := newFixture(t)

	// 40 runes, 120 bytes.
	_, err := f.auth.Register(context.Background(), ports.RegisterInput{
		Name: "Eur", Email: "eur@x.com", Password: strings.Repeat("€", 40),
	})
	if !errors.Is(err, domain.ErrInvalidInput) || !errors.Is(err, domain.ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong as ErrInvalidInput, got %v", err)
	}
	if _, err := f.repo.FindActiveByEmail(context.Background(), "eur@x.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected nothing stored, got %v", err)
	}

	f.register(t, "max@x.com", strings.Repeat("€", 24), "")
}

func TestAuthService_Login_ExpiryMatchesTokenClaim(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "hunter2", "")
	f.clock.Advance(1500 * time.Millisecond)

	res, err := f.auth.Login(context.Background(), "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !res.ExpiresAt.Equal(t0.Add(time.Second + 30*time.Minute)) {
		t.Fatalf("expected expiry truncated to the second, got %v", res.ExpiresAt)
	}
	claims, err := f.codec.DecodeSession(res.Token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !claims.ExpiresAt.Equal(res.ExpiresAt) {
		t.Fatalf("token exp %v differs from reported %v", claims.ExpiresAt, res.ExpiresAt)
	}
}
