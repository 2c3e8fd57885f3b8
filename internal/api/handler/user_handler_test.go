package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

func TestUserHandler_Me(t *testing.T) {
	h := NewUserHandler(&stubUserService{
		getFn: func(ctx context.Context, id int64) (*domain.User, error) {
			if id != 7 {
				t.Fatalf("expected id 7, got %d", id)
			}
			return &domain.User{ID: 7, Name: "Alice", Email: "alice@example.com", Role: domain.RoleUser}, nil
		},
	}, nil)

	c, rec := newContext(http.MethodGet, "/users/me", nil, "")
	SetPrincipal(c, domain.Principal{UserID: 7, Role: domain.RoleUser})

	if err := h.Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Email != "alice@example.com" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestUserHandler_Me_WithoutPrincipal(t *testing.T) {
	h := NewUserHandler(&stubUserService{}, nil)
	c, _ := newContext(http.MethodGet, "/users/me", nil, "")

	var he *echo.HTTPError
	if err := h.Me(c); !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestUserHandler_ListScopes(t *testing.T) {
	var got []ports.ListUsersFilter
	svc := &stubUserService{
		listFn: func(ctx context.Context, filter ports.ListUsersFilter) ([]*domain.User, error) {
			got = append(got, filter)
			return []*domain.User{{ID: 1, Role: domain.RoleUser}}, nil
		},
	}
	h := NewUserHandler(svc, nil)

	c, rec := newContext(http.MethodGet, "/users?limit=5&offset=10&search=ali", nil, "")
	if err := h.List(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, _ = newContext(http.MethodGet, "/admin/users", nil, "")
	if err := h.AdminList(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	want := []ports.ListUsersFilter{
		{IncludeDeleted: false, Search: "ali", Limit: 5, Offset: 10},
		{IncludeDeleted: true},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestUserHandler_List_BadPaging(t *testing.T) {
	h := NewUserHandler(&stubUserService{}, nil)
	for _, target := range []string{"/users?limit=abc", "/users?offset=-1"} {
		c, _ := newContext(http.MethodGet, target, nil, "")
		var he *echo.HTTPError
		if err := h.List(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %v", target, err)
		}
	}
}

func TestUserHandler_AdminCreate(t *testing.T) {
	auth := &stubAuthService{
		registerFn: func(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
			if in.Role != domain.RoleAdmin {
				t.Fatalf("expected admin role, got %q", in.Role)
			}
			return &domain.User{ID: 2, Email: in.Email, Role: in.Role}, nil
		},
	}
	h := NewUserHandler(&stubUserService{}, auth)

	body := strings.NewReader(`{"name":"Root","email":"root@example.com","password":"s3cret-pass","role":"admin"}`)
	c, rec := newContext(http.MethodPost, "/admin/users", body, echo.MIMEApplicationJSON)

	if err := h.AdminCreate(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	body = strings.NewReader(`{"name":"Root","email":"root@example.com","password":"s3cret-pass","role":"superuser"}`)
	c, _ = newContext(http.MethodPost, "/admin/users", body, echo.MIMEApplicationJSON)
	var he *echo.HTTPError
	if err := h.AdminCreate(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %v", err)
	}

	body = strings.NewReader(`{"name":"Root","email":"root@example.com","password":"` + strings.Repeat("€", 40) + `","role":"admin"}`)
	c, _ = newContext(http.MethodPost, "/admin/users", body, echo.MIMEApplicationJSON)
	if err := h.AdminCreate(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a password over 72 bytes, got %v", err)
	}
}

func TestUserHandler_SoftDelete(t *testing.T) {
	cases := []struct {
		name     string
		id       string
		svcErr   error
		wantCode int
	}{
		{"deleted", "3", nil, http.StatusOK},
		{"already deleted", "3", fmt.Errorf("soft delete user 3: %w", domain.ErrAlreadyDeleted), http.StatusBadRequest},
		{"not found", "99", fmt.Errorf("soft delete user 99: %w", domain.ErrUserNotFound), http.StatusNotFound},
		{"bad id", "abc", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewUserHandler(&stubUserService{
				softDeleteFn: func(ctx context.Context, id int64) error { return tc.svcErr },
			}, nil)

			c, rec := newContext(http.MethodDelete, "/admin/users/"+tc.id+"/soft", nil, "")
			c.SetPath("/admin/users/:id/soft")
			c.SetParamNames("id")
			c.SetParamValues(tc.id)

			err := h.SoftDelete(c)
			if got := statusOf(rec, err); got != tc.wantCode {
				t.Fatalf("expected %d, got %d (err=%v)", tc.wantCode, got, err)
			}
		})
	}
}

func TestUserHandler_HardDelete(t *testing.T) {
	var deleted int64
	h := NewUserHandler(&stubUserService{
		hardDeleteFn: func(ctx context.Context, id int64) error {
			deleted = id
			return nil
		},
	}, nil)

	c, rec := newContext(http.MethodDelete, "/admin/users/4/hard", nil, "")
	c.SetParamNames("id")
	c.SetParamValues("4")

	if err := h.HardDelete(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || deleted != 4 {
		t.Fatalf("expected 200 and id 4, got %d and %d", rec.Code, deleted)
	}
}
