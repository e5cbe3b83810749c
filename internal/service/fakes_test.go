package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/functions"
	"github.com/spec-kit/it-helpdesk/internal/repository"
)

var baseTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTicketRepo struct {
	mu        sync.Mutex
	clock     *fakeClock
	tickets   map[string]domain.Ticket
	users     *fakeUserRepo
	createErr error
	// beforeUpdate runs once before the next UpdateLifecycle.
	beforeUpdate func()
}

func newFakeTicketRepo(clock *fakeClock, users *fakeUserRepo) *fakeTicketRepo {
	return &fakeTicketRepo{clock: clock, tickets: map[string]domain.Ticket{}, users: users}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = r.clock.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = *ticket
	r.clock.Advance(time.Second)
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (r *fakeTicketRepo) GetView(ctx context.Context, id string) (*domain.TicketView, error) {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := r.view(*t)
	return &view, nil
}

func (r *fakeTicketRepo) view(t domain.Ticket) domain.TicketView {
	v := domain.TicketView{Ticket: t}
	if u, ok := r.users.get(t.UserID); ok {
		v.Owner = &domain.OwnerSummary{Email: u.Email, FullName: u.FullName}
	}
	return v
}

func (r *fakeTicketRepo) sorted() []domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *fakeTicketRepo) ListByOwner(_ context.Context, userID string) ([]domain.Ticket, error) {
	out := []domain.Ticket{}
	for _, t := range r.sorted() {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) ListWithOwners(_ context.Context) ([]domain.TicketView, error) {
	out := []domain.TicketView{}
	for _, t := range r.sorted() {
		out = append(out, r.view(t))
	}
	return out, nil
}

func (r *fakeTicketRepo) UpdateLifecycle(_ context.Context, u repository.LifecycleUpdate) (*domain.Ticket, error) {
	if hook := r.beforeUpdate; hook != nil {
		r.beforeUpdate = nil
		hook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[u.TicketID]
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
	r.tickets[t.ID] = t
	return &t, nil
}

// setStatus simulates another admin changing the row.
func (r *fakeTicketRepo) setStatus(id string, status domain.TicketStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tickets[id]
	t.Status = status
	r.tickets[id] = t
}

type fakeAttachmentRepo struct {
	mu   sync.Mutex
	rows []domain.Attachment
	fail map[string]bool
}

func (r *fakeAttachmentRepo) Create(_ context.Context, a *domain.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[a.FileName] {
		return errors.New("insert failed")
	}
	a.ID = uuid.NewString()
	a.CreatedAt = baseTime
	r.rows = append(r.rows, *a)
	return nil
}

func (r *fakeAttachmentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Attachment{}
	for _, a := range r.rows {
		if a.TicketID == ticketID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
	err   error
}

func newFakeUserRepo(users ...domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]domain.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) get(id string) (domain.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	return u, ok
}

func (r *fakeUserRepo) EnsureProfile(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if existing, ok := r.users[user.ID]; ok {
		*user = existing
		return nil
	}
	user.CreatedAt = baseTime
	user.UpdatedAt = baseTime
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.get(id)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r *fakeUserRepo) List(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
	err     error
}

func (r *fakeHistoryRepo) Create(_ context.Context, h *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	h.ID = uuid.NewString()
	r.entries = append(r.entries, *h)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.TicketHistory{}
	for _, h := range r.entries {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []domain.NotificationMessage
	err  error
}

func (q *fakeQueue) Enqueue(msg domain.NotificationMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *fakeQueue) kinds() []domain.NotificationKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := []domain.NotificationKind{}
	for _, m := range q.msgs {
		out = append(out, m.Type)
	}
	return out
}

type fakeAccountRepo struct {
	mu          sync.Mutex
	accounts    map[string]*domain.Account
	passwordErr error
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[string]*domain.Account{}}
}

func (r *fakeAccountRepo) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == strings.ToLower(a.Email) {
			return domain.ErrEmailTaken
		}
	}
	a.ID = uuid.NewString()
	a.CreatedAt = baseTime
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == strings.ToLower(email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeAccountRepo) UpdatePassword(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.passwordErr != nil {
		return r.passwordErr
	}
	a, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.PasswordHash = hash
	return nil
}

func (r *fakeAccountRepo) SetRole(_ context.Context, id string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Role = role
	return nil
}

type fakeResetRepo struct {
	mu    sync.Mutex
	codes []*repository.PasswordResetCode
}

func (r *fakeResetRepo) Create(_ context.Context, c *repository.PasswordResetCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.codes {
		if existing.AccountID == c.AccountID && existing.UsedAt == nil {
			now := baseTime
			existing.UsedAt = &now
		}
	}
	c.ID = uuid.NewString()
	c.CreatedAt = baseTime
	cp := *c
	r.codes = append(r.codes, &cp)
	return nil
}

func (r *fakeResetRepo) GetLatest(_ context.Context, accountID string) (*repository.PasswordResetCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.codes) - 1; i >= 0; i-- {
		c := r.codes[i]
		if c.AccountID == accountID && c.UsedAt == nil {
			cp := *c
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeResetRepo) RecordFailure(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.ID == id && c.UsedAt == nil {
			c.Attempts++
			return c.Attempts, nil
		}
	}
	return 0, pgx.ErrNoRows
}

func (r *fakeResetRepo) MarkUsed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.ID == id && c.UsedAt == nil {
			now := baseTime
			c.UsedAt = &now
			return nil
		}
	}
	return pgx.ErrNoRows
}

type recordingCodeMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *recordingCodeMailer) SendResetCode(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	m.codes[to] = code
	return nil
}

type stubCreator struct {
	resp functions.CreateUserResponse
	err  error
	got  []functions.CreateUserRequest
}

func (c *stubCreator) CreateUser(_ context.Context, req functions.CreateUserRequest) (functions.CreateUserResponse, error) {
	c.got = append(c.got, req)
	return c.resp, c.err
}
