package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/it-helpdesk/internal/api/dto"
	"github.com/spec-kit/it-helpdesk/internal/auth"
	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/service"
)

// AuthHandler exposes sign-up, sign-in and password recovery.
type AuthHandler struct {
	auth          *service.AuthService
	secureCookies bool
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, secureCookies bool) *AuthHandler {
	return &AuthHandler{auth: authService, secureCookies: secureCookies}
}

// SignUp handles POST /auth/signup.
func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	session, err := h.auth.SignUp(c.UserContext(), service.SignUpInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FullName:        req.FullName,
		RememberMe:      req.RememberMe,
	})
	if err != nil {
		return err
	}
	h.setMarker(c, session.Persistence)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": session})
}

// SignIn handles POST /auth/signin. Without remember_me the session is tied
// to the browser-session marker cookie.
func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var req dto.SignInRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	session, err := h.auth.SignIn(c.UserContext(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		return err
	}
	h.setMarker(c, session.Persistence)
	return c.JSON(fiber.Map{"data": session})
}

// SignOut handles POST /auth/signout. Tokens are stateless, so this only
// drops the marker.
func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	c.ClearCookie(auth.SessionMarkerCookie)
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "signed_out"}})
}

// Session handles GET /auth/session.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	session, err := h.auth.CurrentSession(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": session})
}

// VerifyCode handles POST /auth/otp/verify.
func (h *AuthHandler) VerifyCode(c *fiber.Ctx) error {
	var req dto.VerifyCodeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	if err := h.auth.VerifyResetCode(c.UserContext(), req.Email, req.Code); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "verified"}})
}

// ForgotPassword handles POST /auth/password/forgot. The response is the
// same whether or not the email has an account.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.ForgotPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	if err := h.auth.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"status": "code_sent"}})
}

// ResetPassword handles POST /auth/password/reset.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	err := h.auth.ResetPassword(c.UserContext(), service.ResetPasswordInput{
		Email:           req.Email,
		Code:            req.Code,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "password_reset"}})
}

// ChangePassword handles POST /auth/password/change.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	var req dto.ChangePasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	if err := h.auth.ChangePassword(c.UserContext(), identity, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "password_changed"}})
}

func (h *AuthHandler) setMarker(c *fiber.Ctx, persistence domain.Persistence) {
	if persistence != domain.PersistenceSession {
		c.ClearCookie(auth.SessionMarkerCookie)
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:        auth.SessionMarkerCookie,
		Value:       "1",
		Path:        "/",
		HTTPOnly:    true,
		Secure:      h.secureCookies,
		SameSite:    fiber.CookieSameSiteLaxMode,
		SessionOnly: true,
	})
}
