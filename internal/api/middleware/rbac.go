package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reachend/auth-service/internal/api/handler"
	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

// RBAC enforces role-based access control. Mount it after Auth.
func RBAC(auth ports.AuthService, role domain.Role) echo.MiddlewareFunc {
	denied := fmt.Sprintf("not authorized as %s", role)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, err := handler.PrincipalFrom(c)
			if err != nil {
				return err
			}
			if err := auth.RequireRole(principal, role); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, denied)
			}
			return next(c)
		}
	}
}
