package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

const (
	msgResetSent     = "password reset email sent"
	msgOTPSent       = "password reset otp sent"
	msgConcealed     = "if the account exists, instructions have been sent"
	msgPasswordReset = "password has been reset"
)

// ResetHandler serves both recovery flows. With concealUnknown set, requests
// for unknown emails get the same 202 as real ones so the endpoints cannot be
// used to probe which emails are registered.
type ResetHandler struct {
	service        ports.ResetService
	concealUnknown bool
}

func NewResetHandler(service ports.ResetService, concealUnknown bool) *ResetHandler {
	return &ResetHandler{service: service, concealUnknown: concealUnknown}
}

// ForgotPassword emails a single-use reset link.
//
// @Summary      Request a password reset link
// @Tags         password
// @Accept       json
// @Produce      json
// @Param        body  body      forgotPasswordRequest  true  "Account email"
// @Success      202   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /auth/forgot-password [post]
func (h *ResetHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	err := h.service.RequestReset(c.Request().Context(), req.Email)
	return h.accepted(c, err, msgResetSent)
}

// ResetPassword redeems a reset link token.
//
// @Summary      Reset password with a link token
// @Tags         password
// @Accept       json
// @Produce      json
// @Param        body  body      resetPasswordRequest  true  "Token and new password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /auth/reset-password [post]
func (h *ResetHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.service.RedeemReset(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msgPasswordReset})
}

// ForgotPasswordOTP emails a six digit one-time code.
//
// @Summary      Request a password reset OTP
// @Tags         password
// @Accept       json
// @Produce      json
// @Param        body  body      forgotPasswordRequest  true  "Account email"
// @Success      202   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /auth/forgot-password-otp [post]
func (h *ResetHandler) ForgotPasswordOTP(c echo.Context) error {
	var req forgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	err := h.service.RequestOTP(c.Request().Context(), req.Email)
	return h.accepted(c, err, msgOTPSent)
}

// ResetPasswordOTP redeems a one-time code.
//
// @Summary      Reset password with an OTP
// @Tags         password
// @Accept       json
// @Produce      json
// @Param        body  body      resetPasswordOTPRequest  true  "Email, code and new password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /auth/reset-password-otp [post]
func (h *ResetHandler) ResetPasswordOTP(c echo.Context) error {
	var req resetPasswordOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.service.RedeemOTP(c.Request().Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msgPasswordReset})
}

func (h *ResetHandler) accepted(c echo.Context, err error, msg string) error {
	if h.concealUnknown {
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			return respond(c, err)
		}
		return c.JSON(http.StatusAccepted, messageResponse{Message: msgConcealed})
	}
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusAccepted, messageResponse{Message: msg})
}
