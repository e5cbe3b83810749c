package domain

import "strings"

// FilterAll disables a status, priority or category clause.
const FilterAll = "all"

// TicketFilter is the dashboard filter. Empty and "all" clauses match everything.
type TicketFilter struct {
	Query    string `query:"q"`
	Status   string `query:"status"`
	Priority string `query:"priority"`
	Category string `query:"category"`
	// MatchOwner extends the text clause to the owner's email and name.
	MatchOwner bool `query:"-"`
}

// Match reports whether the view satisfies every clause of the filter.
func (f TicketFilter) Match(v TicketView) bool {
	return f.matchText(v) &&
		matchExact(f.Status, string(v.Status)) &&
		matchExact(f.Priority, string(v.Priority)) &&
		matchExact(f.Category, v.Category)
}

func (f TicketFilter) matchText(v TicketView) bool {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	if contains(v.Title, q) || contains(v.Description, q) {
		return true
	}
	if !f.MatchOwner || v.Owner == nil {
		return false
	}
	return contains(v.Owner.Email, q) || contains(v.Owner.FullName, q)
}

func contains(field, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(field), lowerQuery)
}

func matchExact(clause, value string) bool {
	if clause == "" || clause == FilterAll {
		return true
	}
	return clause == value
}

// Apply returns the views matching f, preserving order.
func (f TicketFilter) Apply(views []TicketView) []TicketView {
	out := make([]TicketView, 0, len(views))
	for _, v := range views {
		if f.Match(v) {
			out = append(out, v)
		}
	}
	return out
}
