package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

// Op is the row operation a change describes.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
)

// TableTickets is the only table the dashboards watch.
const TableTickets = "support_tickets"

// Change is one row-level change on a watched table.
type Change struct {
	ID    string `json:"id"`
	Table string `json:"table"`
	Op    Op     `json:"op"`
	// Keys holds the filterable column values of the row.
	Keys      map[string]string `json:"keys"`
	Record    json.RawMessage   `json:"record"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewTicketChange builds a change for a ticket row.
func NewTicketChange(op Op, ticket domain.Ticket) (Change, error) {
	record, err := json.Marshal(ticket)
	if err != nil {
		return Change{}, fmt.Errorf("encode ticket change: %w", err)
	}
	return Change{
		ID:    uuid.NewString(),
		Table: TableTickets,
		Op:    op,
		Keys: map[string]string{
			"id":      ticket.ID,
			"user_id": ticket.UserID,
			"status":  string(ticket.Status),
		},
		Record:    record,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Ticket decodes the record of a ticket change.
func (c Change) Ticket() (domain.Ticket, error) {
	var t domain.Ticket
	if c.Table != TableTickets {
		return t, fmt.Errorf("change on %q is not a ticket change", c.Table)
	}
	if err := json.Unmarshal(c.Record, &t); err != nil {
		return t, fmt.Errorf("decode ticket change: %w", err)
	}
	return t, nil
}

// Filter selects changes for a subscriber. Empty Ops matches every op; an
// empty Column matches every row.
type Filter struct {
	Table  string
	Ops    []Op
	Column string
	Value  string
}

// Match reports whether the change passes the filter.
func (f Filter) Match(c Change) bool {
	if f.Table != "" && f.Table != c.Table {
		return false
	}
	if len(f.Ops) > 0 {
		found := false
		for _, op := range f.Ops {
			if op == c.Op {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Column == "" {
		return true
	}
	return c.Keys[f.Column] == f.Value
}

// TicketFilter watches inserts and updates on tickets, optionally scoped to
// a single owner.
func TicketFilter(ownerID string) Filter {
	f := Filter{Table: TableTickets, Ops: []Op{OpInsert, OpUpdate}}
	if ownerID != "" {
		f.Column = "user_id"
		f.Value = ownerID
	}
	return f
}
