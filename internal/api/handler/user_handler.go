package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

// UserHandler serves the current user, the active user listing and the admin
// lifecycle endpoints.
type UserHandler struct {
	users ports.UserService
	auth  ports.AuthService
}

func NewUserHandler(users ports.UserService, auth ports.AuthService) *UserHandler {
	return &UserHandler{users: users, auth: auth}
}

// Me handles GET /users/me.
//
// @Summary      Current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userResponse
// @Failure      401  {object}  errorResponse
// @Router       /users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	principal, err := PrincipalFrom(c)
	if err != nil {
		return err
	}
	user, err := h.users.Get(c.Request().Context(), principal.UserID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// List handles GET /users. Soft-deleted users are never included.
//
// @Summary      List active users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Partial match on name or email"
// @Param        limit   query     int     false  "Page size (default 50, max 200)"
// @Param        offset  query     int     false  "Rows to skip"
// @Success      200     {object}  listUsersResponse
// @Failure      400     {object}  errorResponse
// @Failure      401     {object}  errorResponse
// @Router       /users [get]
func (h *UserHandler) List(c echo.Context) error {
	return h.list(c, false)
}

// AdminList handles GET /admin/users, including soft-deleted users.
//
// @Summary      List all users
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Partial match on name or email"
// @Param        limit   query     int     false  "Page size (default 50, max 200)"
// @Param        offset  query     int     false  "Rows to skip"
// @Success      200     {object}  listUsersResponse
// @Failure      401     {object}  errorResponse
// @Failure      403     {object}  errorResponse
// @Router       /admin/users [get]
func (h *UserHandler) AdminList(c echo.Context) error {
	return h.list(c, true)
}

func (h *UserHandler) list(c echo.Context, includeDeleted bool) error {
	var q listUsersQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	filter := ports.ListUsersFilter{
		IncludeDeleted: includeDeleted,
		Search:         q.Search,
		Limit:          q.Limit,
		Offset:         q.Offset,
	}
	users, err := h.users.List(c.Request().Context(), filter)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, toUserListResponse(users, q.Limit, q.Offset))
}

// AdminCreate handles POST /admin/users.
//
// @Summary      Create a user with an explicit role
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createUserRequest  true  "User details"
// @Success      201   {object}  userResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /admin/users [post]
func (h *UserHandler) AdminCreate(c echo.Context) error {
	var req createUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return respond(c, err)
	}

	user, err := h.auth.Register(c.Request().Context(), ports.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusCreated, toUserResponse(user))
}

// SoftDelete handles DELETE /admin/users/:id/soft.
//
// @Summary      Soft delete a user
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /admin/users/{id}/soft [delete]
func (h *UserHandler) SoftDelete(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	if err := h.users.SoftDelete(c.Request().Context(), id); err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "user soft-deleted"})
}

// HardDelete handles DELETE /admin/users/:id/hard. Works on soft-deleted users too.
//
// @Summary      Permanently delete a user
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /admin/users/{id}/hard [delete]
func (h *UserHandler) HardDelete(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	if err := h.users.HardDelete(c.Request().Context(), id); err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "user permanently deleted"})
}

func userIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return id, nil
}
