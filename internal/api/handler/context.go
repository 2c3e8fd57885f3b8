package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reachend/auth-service/internal/core/domain"
)

const principalKey = "principal"

// SetPrincipal attaches the verified identity to the request. It lives only as
// long as the echo.Context does.
func SetPrincipal(c echo.Context, p domain.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the identity stored by the Auth middleware. A missing
// principal means the route was mounted without the middleware.
func PrincipalFrom(c echo.Context) (domain.Principal, error) {
	p, ok := c.Get(principalKey).(domain.Principal)
	if !ok || p.UserID == 0 {
		return domain.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return p, nil
}
