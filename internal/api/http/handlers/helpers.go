package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/it-helpdesk/internal/auth"
	"github.com/spec-kit/it-helpdesk/internal/domain"
	apperrors "github.com/spec-kit/it-helpdesk/pkg/util"
)

func currentPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func currentIdentity(c *fiber.Ctx) (domain.Identity, error) {
	principal, err := currentPrincipal(c)
	if err != nil {
		return domain.Identity{}, err
	}
	return principal.Identity, nil
}

// parseFilter reads q, status, priority and category.
func parseFilter(c *fiber.Ctx) (domain.TicketFilter, error) {
	var filter domain.TicketFilter
	if err := c.QueryParser(&filter); err != nil {
		return filter, apperrors.NewValidationError("invalid query", nil)
	}
	return filter, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

// ticketID reads the :id path parameter. Anything that is not a uuid cannot
// name a ticket.
func ticketID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return id, nil
}
