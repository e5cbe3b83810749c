package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/it-helpdesk/internal/api/dto"
	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/export"
	"github.com/spec-kit/it-helpdesk/internal/functions"
	"github.com/spec-kit/it-helpdesk/internal/service"
	apperrors "github.com/spec-kit/it-helpdesk/pkg/util"
)

// AdminHandler serves the admin dashboard endpoints.
type AdminHandler struct {
	tickets *service.TicketService
	users   *service.UserService
	now     func() time.Time
}

// NewAdminHandler constructs handler.
func NewAdminHandler(ticketService *service.TicketService, userService *service.UserService) *AdminHandler {
	return &AdminHandler{tickets: ticketService, users: userService, now: time.Now}
}

// ListTickets GET /admin/tickets.
func (h *AdminHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}
	views, err := h.tickets.ListAll(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": views})
}

// ExportTickets GET /admin/tickets/export.csv.
func (h *AdminHandler) ExportTickets(c *fiber.Ctx) error {
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}
	views, err := h.tickets.ListAll(c.UserContext(), filter)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, export.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", export.FileName(h.now())))
	return export.WriteTickets(c.Response().BodyWriter(), views)
}

// ApplyAction POST /admin/tickets/:id/:action.
func (h *AdminHandler) ApplyAction(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	action, err := domain.ParseAction(c.Params("action"))
	if err != nil {
		return apperrors.NewNotFound("action", map[string]any{"action": c.Params("action")})
	}
	var req dto.ActionRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
		if err := dto.Validate(req); err != nil {
			return err
		}
	}
	result, err := h.tickets.Transition(c.UserContext(), identity, id, action, req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// History GET /admin/tickets/:id/history.
func (h *AdminHandler) History(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	entries, err := h.tickets.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entries})
}

// ListUsers GET /admin/users.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	users, err := h.users.ListUsers(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": users})
}

// CreateUser POST /admin/users.
func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	var req dto.CreateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	user, err := h.users.CreateUser(c.UserContext(), identity, functions.CreateUserRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": user})
}
