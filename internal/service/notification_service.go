package service

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/config"
	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/observability"
)

const (
	SubjectAdminNotification = "New IT Support Ticket Created"
	SubjectUserConfirmation  = "Your IT Support Ticket Has Been Received"
	subjectStatusUpdate      = "Your IT Support Ticket Status Updated: "
)

// NotificationQueue accepts messages for background delivery.
type NotificationQueue interface {
	Enqueue(msg domain.NotificationMessage) error
}

// NotificationService builds ticket notification messages and hands them to
// the delivery queue. It never waits for delivery.
type NotificationService struct {
	queue      NotificationQueue
	logger     *zap.Logger
	metrics    *observability.Metrics
	adminEmail string
}

// NewNotificationService creates the service.
func NewNotificationService(queue NotificationQueue, logger *zap.Logger, metrics *observability.Metrics, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		queue:      queue,
		logger:     logger,
		metrics:    metrics,
		adminEmail: cfg.AdminEmail,
	}
}

// AdminNotification is sent to the helpdesk for every new ticket.
func AdminNotification(adminEmail string, ticket domain.Ticket, submitter domain.Identity) domain.NotificationMessage {
	return domain.NotificationMessage{
		To:          adminEmail,
		Subject:     SubjectAdminNotification,
		TicketID:    ticket.ID,
		TicketTitle: ticket.Title,
		UserName:    displayName(submitter.FullName, submitter.Email),
		UserEmail:   submitter.Email,
		Type:        domain.NotificationAdminNotification,
	}
}

// UserConfirmation acknowledges a ticket to its submitter.
func UserConfirmation(ticket domain.Ticket, submitter domain.Identity) domain.NotificationMessage {
	return domain.NotificationMessage{
		To:          submitter.Email,
		Subject:     SubjectUserConfirmation,
		TicketID:    ticket.ID,
		TicketTitle: ticket.Title,
		UserName:    displayName(submitter.FullName, submitter.Email),
		Type:        domain.NotificationUserConfirmation,
	}
}

// StatusUpdate tells the owner their ticket moved to a new status.
func StatusUpdate(view domain.TicketView, ownerEmail string) domain.NotificationMessage {
	return domain.NotificationMessage{
		To:          ownerEmail,
		Subject:     subjectStatusUpdate + view.Title,
		TicketID:    view.ID,
		TicketTitle: view.Title,
		UserName:    displayName(view.OwnerName(), ownerEmail),
		Status:      view.Status,
		Type:        domain.NotificationStatusUpdate,
	}
}

// TicketSubmitted queues the admin notification and, when the submitter has
// a known email, the user confirmation.
func (n *NotificationService) TicketSubmitted(ticket domain.Ticket, submitter domain.Identity) []Warning {
	var warnings []Warning
	if w := n.enqueue(AdminNotification(n.adminEmail, ticket, submitter)); w != nil {
		warnings = append(warnings, *w)
	}
	if strings.TrimSpace(submitter.Email) != "" {
		if w := n.enqueue(UserConfirmation(ticket, submitter)); w != nil {
			warnings = append(warnings, *w)
		}
	}
	return warnings
}

// StatusChanged queues a status update for the ticket owner. Nothing is sent
// when the owner or their email is unknown.
func (n *NotificationService) StatusChanged(view domain.TicketView) *Warning {
	email, ok := view.OwnerEmail()
	if !ok {
		n.logger.Debug("status update skipped, owner email unknown", zap.String("ticket_id", view.ID))
		return nil
	}
	return n.enqueue(StatusUpdate(view, email))
}

func (n *NotificationService) enqueue(msg domain.NotificationMessage) *Warning {
	if n == nil || n.queue == nil {
		return nil
	}
	if err := n.queue.Enqueue(msg); err != nil {
		n.logger.Warn("notification not queued",
			zap.String("ticket_id", msg.TicketID),
			zap.String("type", string(msg.Type)),
			zap.Error(err))
		n.metrics.RecordSoftFailure(StageNotification)
		return &Warning{Stage: StageNotification, Target: msg.To, Message: "email notification could not be sent"}
	}
	return nil
}

func displayName(name, email string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if email != "" {
		return email
	}
	return "User"
}
