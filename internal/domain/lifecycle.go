package domain

import (
	"errors"
	"strings"
	"time"
)

// TicketAction is an admin-triggered lifecycle action.
type TicketAction string

const (
	ActionStart   TicketAction = "start"
	ActionAssign  TicketAction = "assign"
	ActionResolve TicketAction = "resolve"
	ActionClose   TicketAction = "close"
)

var (
	// ErrInvalidTransition is returned when the ticket is not in the action's source state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAssigneeRequired is returned by Assign without an assignee.
	ErrAssigneeRequired = errors.New("assignee required")
	// ErrUnknownAction is returned for actions outside the exposed set.
	ErrUnknownAction = errors.New("unknown ticket action")
)

type transition struct {
	from TicketStatus
	to   TicketStatus
}

// The exposed action set. Nothing leaves closed and nothing skips a state.
var actionTransitions = map[TicketAction]transition{
	ActionStart:   {from: TicketStatusOpen, to: TicketStatusInProgress},
	ActionAssign:  {from: TicketStatusOpen, to: TicketStatusInProgress},
	ActionResolve: {from: TicketStatusInProgress, to: TicketStatusResolved},
	ActionClose:   {from: TicketStatusResolved, to: TicketStatusClosed},
}

var actionOrder = []TicketAction{ActionStart, ActionAssign, ActionResolve, ActionClose}

// ParseAction maps a path segment to an action.
func ParseAction(s string) (TicketAction, error) {
	action := TicketAction(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := actionTransitions[action]; !ok {
		return "", ErrUnknownAction
	}
	return action, nil
}

// Source returns the state the ticket must be in for the action to apply.
func (a TicketAction) Source() TicketStatus {
	return actionTransitions[a].from
}

// Target returns the state the action moves the ticket into.
func (a TicketAction) Target() TicketStatus {
	return actionTransitions[a].to
}

// NotifiesOwner reports whether the action sends a status-update message.
func (a TicketAction) NotifiesOwner() bool {
	return a == ActionResolve
}

// AvailableActions lists the actions offered for a ticket in the given state.
func AvailableActions(status TicketStatus) []TicketAction {
	var actions []TicketAction
	for _, a := range actionOrder {
		if actionTransitions[a].from == status {
			actions = append(actions, a)
		}
	}
	return actions
}

// CanApply reports whether action is offered for status.
func CanApply(status TicketStatus, action TicketAction) bool {
	t, ok := actionTransitions[action]
	return ok && t.from == status
}

// ApplyAction returns the ticket as it looks after action. The input is not
// modified. updated_at is never earlier than created_at.
func ApplyAction(ticket Ticket, action TicketAction, assignee string, now time.Time) (Ticket, error) {
	t, ok := actionTransitions[action]
	if !ok {
		return ticket, ErrUnknownAction
	}
	if ticket.Status != t.from {
		return ticket, ErrInvalidTransition
	}
	next := ticket
	if action == ActionAssign {
		assignee = strings.TrimSpace(assignee)
		if assignee == "" {
			return ticket, ErrAssigneeRequired
		}
		next.AssignedTo = &assignee
	}
	next.Status = t.to
	if now.Before(ticket.CreatedAt) {
		now = ticket.CreatedAt
	}
	next.UpdatedAt = now
	return next, nil
}
