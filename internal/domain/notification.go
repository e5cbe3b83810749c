package domain

// NotificationKind selects the email template for a notification message.
type NotificationKind string

const (
	NotificationUserConfirmation  NotificationKind = "user-confirmation"
	NotificationAdminNotification NotificationKind = "admin-notification"
	NotificationStatusUpdate      NotificationKind = "status-update"
)

// NotificationMessage is the ephemeral payload handed to the notification
// function. It is never persisted or retried.
type NotificationMessage struct {
	To          string           `json:"to" validate:"required,email"`
	Subject     string           `json:"subject" validate:"required"`
	TicketID    string           `json:"ticketId" validate:"required"`
	TicketTitle string           `json:"ticketTitle"`
	UserName    string           `json:"userName"`
	UserEmail   string           `json:"userEmail,omitempty"`
	Status      TicketStatus     `json:"status,omitempty"`
	Type        NotificationKind `json:"type" validate:"required,oneof=user-confirmation admin-notification status-update"`
}
