package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

// Memory is an in-process backend for every repository. Missing rows are
// reported as pgx.ErrNoRows so callers handle both backends alike. Creating
// an account also writes its profile row, like the database trigger.
type Memory struct {
	mu          sync.RWMutex
	now         func() time.Time
	tickets     map[string]domain.Ticket
	attachments []domain.Attachment
	users       map[string]domain.User
	history     []domain.TicketHistory
	accounts    map[string]domain.Account
	resets      []PasswordResetCode
}

// NewMemory returns an empty in-memory backend. now defaults to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:      now,
		tickets:  make(map[string]domain.Ticket),
		users:    make(map[string]domain.User),
		accounts: make(map[string]domain.Account),
	}
}

func (m *Memory) Tickets() TicketRepository { return memoryTickets{m} }
func (m *Memory) Attachments() AttachmentRepository { return memoryAttachments{m} }
func (m *Memory) Users() UserRepository { return memoryUsers{m} }
func (m *Memory) History() TicketHistoryRepository { return memoryHistory{m} }
func (m *Memory) Accounts() AccountRepository { return memoryAccounts{m} }
func (m *Memory) PasswordResets() PasswordResetRepository { return memoryResets{m} }

func (m *Memory) stamp() time.Time {
	return m.now().UTC()
}

type memoryTickets struct{ m *Memory }

func (r memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = r.m.stamp()
	ticket.UpdatedAt = ticket.CreatedAt
	r.m.tickets[ticket.ID] = *ticket
	return nil
}

func (r memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	t, ok := r.m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (r memoryTickets) GetView(_ context.Context, id string) (*domain.TicketView, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	t, ok := r.m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	v := r.view(t)
	return &v, nil
}

// view must be called with the lock held.
func (r memoryTickets) view(t domain.Ticket) domain.TicketView {
	v := domain.TicketView{Ticket: t}
	if u, ok := r.m.users[t.UserID]; ok {
		v.Owner = &domain.OwnerSummary{Email: u.Email, FullName: u.FullName}
	}
	return v
}

func (r memoryTickets) newestFirst() []domain.Ticket {
	out := make([]domain.Ticket, 0, len(r.m.tickets))
	for _, t := range r.m.tickets {
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r memoryTickets) ListByOwner(_ context.Context, userID string) ([]domain.Ticket, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := []domain.Ticket{}
	for _, t := range r.newestFirst() {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r memoryTickets) ListWithOwners(_ context.Context) ([]domain.TicketView, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	sorted := r.newestFirst()
	out := make([]domain.TicketView, 0, len(sorted))
	for _, t := range sorted {
		out = append(out, r.view(t))
	}
	return out, nil
}

func (r memoryTickets) UpdateLifecycle(_ context.Context, u LifecycleUpdate) (*domain.Ticket, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tickets[u.TicketID]
	if !ok || t.Status != u.FromStatus {
		return nil, pgx.ErrNoRows
	}
	t.Status = u.ToStatus
	if u.AssignedTo != nil {
		t.AssignedTo = u.AssignedTo
	}
	t.UpdatedAt = u.UpdatedAt
	if t.UpdatedAt.Before(t.CreatedAt) {
		t.UpdatedAt = t.CreatedAt
	}
	r.m.tickets[t.ID] = t
	return &t, nil
}

type memoryAttachments struct{ m *Memory }

func (r memoryAttachments) Create(_ context.Context, a *domain.Attachment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.tickets[a.TicketID]; !ok {
		return pgx.ErrNoRows
	}
	a.ID = uuid.NewString()
	a.CreatedAt = r.m.stamp()
	r.m.attachments = append(r.m.attachments, *a)
	return nil
}

func (r memoryAttachments) ListByTicket(_ context.Context, ticketID string) ([]domain.Attachment, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := []domain.Attachment{}
	for _, a := range r.m.attachments {
		if a.TicketID == ticketID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memoryUsers struct{ m *Memory }

func (r memoryUsers) EnsureProfile(_ context.Context, user *domain.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if existing, ok := r.m.users[user.ID]; ok {
		*user = existing
		return nil
	}
	user.CreatedAt = r.m.stamp()
	user.UpdatedAt = user.CreatedAt
	r.m.users[user.ID] = *user
	return nil
}

func (r memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r memoryUsers) List(_ context.Context) ([]domain.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]domain.User, 0, len(r.m.users))
	for _, u := range r.m.users {
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

type memoryHistory struct{ m *Memory }

func (r memoryHistory) Create(_ context.Context, h *domain.TicketHistory) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	h.ID = uuid.NewString()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = r.m.stamp()
	}
	r.m.history = append(r.m.history, *h)
	return nil
}

func (r memoryHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := []domain.TicketHistory{}
	for _, h := range r.m.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

type memoryAccounts struct{ m *Memory }

func (r memoryAccounts) Create(_ context.Context, a *domain.Account) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	email := strings.ToLower(a.Email)
	for _, existing := range r.m.accounts {
		if strings.ToLower(existing.Email) == email {
			return domain.ErrEmailTaken
		}
	}
	a.ID = uuid.NewString()
	a.CreatedAt = r.m.stamp()
	r.m.accounts[a.ID] = *a
	if _, ok := r.m.users[a.ID]; !ok {
		r.m.users[a.ID] = domain.User{ID: a.ID, Email: a.Email, FullName: a.FullName, CreatedAt: a.CreatedAt, UpdatedAt: a.CreatedAt}
	}
	return nil
}

func (r memoryAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	a, ok := r.m.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &a, nil
}

func (r memoryAccounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	email = strings.ToLower(email)
	for _, a := range r.m.accounts {
		if strings.ToLower(a.Email) == email {
			return &a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memoryAccounts) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return r.update(id, func(a *domain.Account) { a.PasswordHash = passwordHash })
}

func (r memoryAccounts) SetRole(_ context.Context, id string, role domain.Role) error {
	return r.update(id, func(a *domain.Account) { a.Role = role })
}

func (r memoryAccounts) update(id string, fn func(*domain.Account)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(&a)
	r.m.accounts[id] = a
	return nil
}

type memoryResets struct{ m *Memory }

func (r memoryResets) Create(_ context.Context, code *PasswordResetCode) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	now := r.m.stamp()
	for i := range r.m.resets {
		if r.m.resets[i].AccountID == code.AccountID && r.m.resets[i].UsedAt == nil {
			r.m.resets[i].UsedAt = &now
		}
	}
	code.ID = uuid.NewString()
	code.Attempts = 0
	code.CreatedAt = now
	r.m.resets = append(r.m.resets, *code)
	return nil
}

func (r memoryResets) GetLatest(_ context.Context, accountID string) (*PasswordResetCode, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for i := len(r.m.resets) - 1; i >= 0; i-- {
		c := r.m.resets[i]
		if c.AccountID == accountID && c.UsedAt == nil {
			return &c, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memoryResets) RecordFailure(_ context.Context, id string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := range r.m.resets {
		if r.m.resets[i].ID == id && r.m.resets[i].UsedAt == nil {
			r.m.resets[i].Attempts++
			return r.m.resets[i].Attempts, nil
		}
	}
	return 0, pgx.ErrNoRows
}

func (r memoryResets) MarkUsed(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := range r.m.resets {
		if r.m.resets[i].ID == id && r.m.resets[i].UsedAt == nil {
			now := r.m.stamp()
			r.m.resets[i].UsedAt = &now
			return nil
		}
	}
	return pgx.ErrNoRows
}
