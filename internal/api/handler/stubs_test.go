package handler

import (
	"context"
	"io"
	"net/http/httptest"

	"github.com/labstack/echo/v4"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

type stubAuthService struct {
	registerFn    func(ctx context.Context, in ports.RegisterInput) (*domain.User, error)
	loginFn       func(ctx context.Context, email, password string) (*ports.LoginResult, error)
	resolveFn     func(ctx context.Context, token string) (*domain.Principal, error)
	requireRoleFn func(p domain.Principal, role domain.Role) error
}

func (s *stubAuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	return s.registerFn(ctx, in)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubAuthService) Resolve(ctx context.Context, token string) (*domain.Principal, error) {
	return s.resolveFn(ctx, token)
}

func (s *stubAuthService) RequireRole(p domain.Principal, role domain.Role) error {
	return s.requireRoleFn(p, role)
}

type stubResetService struct {
	requestResetFn func(ctx context.Context, email string) error
	redeemResetFn  func(ctx context.Context, token, newPassword string) error
	requestOTPFn   func(ctx context.Context, email string) error
	redeemOTPFn    func(ctx context.Context, email, otp, newPassword string) error
}

func (s *stubResetService) RequestReset(ctx context.Context, email string) error {
	return s.requestResetFn(ctx, email)
}

func (s *stubResetService) RedeemReset(ctx context.Context, token, newPassword string) error {
	return s.redeemResetFn(ctx, token, newPassword)
}

func (s *stubResetService) RequestOTP(ctx context.Context, email string) error {
	return s.requestOTPFn(ctx, email)
}

func (s *stubResetService) RedeemOTP(ctx context.Context, email, otp, newPassword string) error {
	return s.redeemOTPFn(ctx, email, otp, newPassword)
}

type stubUserService struct {
	getFn        func(ctx context.Context, id int64) (*domain.User, error)
	listFn       func(ctx context.Context, filter ports.ListUsersFilter) ([]*domain.User, error)
	softDeleteFn func(ctx context.Context, id int64) error
	hardDeleteFn func(ctx context.Context, id int64) error
}

func (s *stubUserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	return s.getFn(ctx, id)
}

func (s *stubUserService) List(ctx context.Context, filter ports.ListUsersFilter) ([]*domain.User, error) {
	return s.listFn(ctx, filter)
}

func (s *stubUserService) SoftDelete(ctx context.Context, id int64) error {
	return s.softDeleteFn(ctx, id)
}

func (s *stubUserService) HardDelete(ctx context.Context, id int64) error {
	return s.hardDeleteFn(ctx, id)
}

// newContext builds an echo context with the validator installed, as the router does.
func newContext(method, target string, body io.Reader, contentType string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// statusOf returns the status the handler produced, whether it wrote a
// response or returned an error for the central handler.
func statusOf(rec *httptest.ResponseRecorder, err error) int {
	if err != nil {
		code, _ := ErrorStatus(err)
		return code
	}
	return rec.Code
}
