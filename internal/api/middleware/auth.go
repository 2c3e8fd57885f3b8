package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/reachend/auth-service/internal/api/handler"
	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

// Auth resolves the bearer token into a principal and stores it on the context.
// Expired tokens are reported separately so clients know to log in again.
func Auth(auth ports.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return unauthorized(c, "not authenticated")
			}

			principal, err := auth.Resolve(c.Request().Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrTokenExpired):
				return unauthorized(c, "token expired")
			case errors.Is(err, domain.ErrInvalidCredentials):
				return unauthorized(c, "invalid credentials")
			default:
				return err
			}

			handler.SetPrincipal(c, *principal)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func unauthorized(c echo.Context, msg string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return echo.NewHTTPError(http.StatusUnauthorized, msg)
}
