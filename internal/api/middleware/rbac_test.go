package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/reachend/auth-service/internal/api/handler"
	"github.com/reachend/auth-service/internal/core/domain"
)

func exactRole() *stubAuthService {
	return &stubAuthService{
		requireRoleFn: func(p domain.Principal, role domain.Role) error {
			if p.Role != role {
				return domain.ErrForbidden
			}
			return nil
		},
	}
}

func TestRBAC_Allowed(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	handler.SetPrincipal(c, domain.Principal{UserID: 1, Role: domain.RoleAdmin})

	called := false
	h := RBAC(exactRole(), domain.RoleAdmin)(func(c echo.Context) error {
		called = true
		return nil
	})

	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
}

func TestRBAC_Forbidden(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	handler.SetPrincipal(c, domain.Principal{UserID: 2, Role: domain.RoleUser})

	h := RBAC(exactRole(), domain.RoleAdmin)(func(c echo.Context) error {
		t.Fatalf("next must not be called")
		return nil
	})

	var he *echo.HTTPError
	if err := h(c); !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if he.Message != "not authorized as admin" {
		t.Fatalf("unexpected message: %v", he.Message)
	}
}

func TestRBAC_WithoutAuth(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	h := RBAC(exactRole(), domain.RoleAdmin)(func(c echo.Context) error { return nil })

	var he *echo.HTTPError
	if err := h(c); !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
