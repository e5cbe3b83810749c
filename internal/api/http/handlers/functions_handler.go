package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/functions"
	apperrors "github.com/spec-kit/it-helpdesk/pkg/util"
)

// FunctionsHandler serves the callable functions over HTTP. Bodies and
// responses follow the function contracts, not the API envelope.
type FunctionsHandler struct {
	local  *functions.Local
	apiKey string
}

// NewFunctionsHandler constructs handler. Callers must present apiKey as a
// bearer token.
func NewFunctionsHandler(local *functions.Local, apiKey string) *FunctionsHandler {
	return &FunctionsHandler{local: local, apiKey: apiKey}
}

// RequireKey rejects calls without the functions API key.
func (h *FunctionsHandler) RequireKey(c *fiber.Ctx) error {
	token := strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
	if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.apiKey)) != 1 {
		return apperrors.NewUnauthorized("invalid function key")
	}
	return c.Next()
}

// SendNotification POST /functions/v1/send-notification-email.
func (h *FunctionsHandler) SendNotification(c *fiber.Ctx) error {
	var msg domain.NotificationMessage
	if err := c.BodyParser(&msg); err != nil {
		return c.Status(http.StatusBadRequest).JSON(functions.NotifyResponse{Error: "invalid payload"})
	}
	resp, err := h.local.SendNotification(c.UserContext(), msg)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(resp)
	}
	return c.JSON(resp)
}

// CreateUser POST /functions/v1/create-user.
func (h *FunctionsHandler) CreateUser(c *fiber.Ctx) error {
	var req functions.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(functions.CreateUserResponse{Error: "invalid payload"})
	}
	resp, err := h.local.CreateUser(c.UserContext(), req)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(resp)
	}
	return c.JSON(resp)
}
