package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketPriority enumerates submitter-chosen urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// Departments a ticket can be filed under.
const (
	CategoryIT          = "IT"
	CategoryHRAdmin     = "HR and Admin"
	CategoryProcurement = "Procurement"
	CategoryAccounting  = "Accounting and Warehouse"
	CategoryOperations  = "Operation QHSSE and Maintenance"
)

// Categories lists the fixed department set in display order.
var Categories = []string{
	CategoryIT,
	CategoryHRAdmin,
	CategoryProcurement,
	CategoryAccounting,
	CategoryOperations,
}

// Valid reports whether the status is one of the four lifecycle states.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// Valid reports whether the priority is known.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// ValidCategory reports whether category is one of the fixed departments.
func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      TicketStatus   `json:"status"`
	Priority    TicketPriority `json:"priority"`
	Category    string         `json:"category"`
	UserID      string         `json:"user_id"`
	AssignedTo  *string        `json:"assigned_to"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// OwnerSummary is the joined owner projection used by admin listings.
type OwnerSummary struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// TicketView pairs a ticket with its owner, which may be unknown when the
// profile mirror row has not been created yet.
type TicketView struct {
	Ticket
	Owner *OwnerSummary `json:"user"`
}

// OwnerEmail returns the owner's email when the owner is known and has one.
func (v TicketView) OwnerEmail() (string, bool) {
	if v.Owner == nil || strings.TrimSpace(v.Owner.Email) == "" {
		return "", false
	}
	return v.Owner.Email, true
}

// OwnerName returns the owner's display name, or "" when unknown.
func (v TicketView) OwnerName() string {
	if v.Owner == nil {
		return ""
	}
	return v.Owner.FullName
}

// Views wraps bare tickets with unknown owners.
func Views(tickets []Ticket) []TicketView {
	out := make([]TicketView, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, TicketView{Ticket: t})
	}
	return out
}
