package domain

import "time"

// TicketHistory is an immutable audit entry for one lifecycle action.
type TicketHistory struct {
	ID         string       `json:"id"`
	TicketID   string       `json:"ticket_id"`
	ActorID    string       `json:"actor_id"`
	Action     TicketAction `json:"action"`
	FromStatus TicketStatus `json:"from_status"`
	ToStatus   TicketStatus `json:"to_status"`
	AssignedTo *string      `json:"assigned_to,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}
