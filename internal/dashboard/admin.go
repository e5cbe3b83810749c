package dashboard

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/it-helpdesk/internal/client"
	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/events"
	"github.com/spec-kit/it-helpdesk/internal/export"
	"github.com/spec-kit/it-helpdesk/internal/functions"
)

// DefaultPollSpec is the admin dashboard's safety-net poll.
const DefaultPollSpec = "@every 30s"

// AdminAPI is what the admin dashboard needs from the backend.
type AdminAPI interface {
	TicketStream
	ListAllTickets(ctx context.Context) ([]domain.TicketView, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	ApplyAction(ctx context.Context, ticketID string, action domain.TicketAction, assignee string) (*client.TransitionResult, error)
	CreateUser(ctx context.Context, req functions.CreateUserRequest) (*functions.ProvisionedUser, error)
}

// Alert announces a newly submitted ticket. Presentation only.
type Alert struct {
	TicketID string
	Title    string
	Priority domain.TicketPriority
	Category string
	At       time.Time
}

// AdminOptions configures an admin dashboard.
type AdminOptions struct {
	Logger    *zap.Logger
	PollSpec  string
	OnRefresh func()
	// AlertBuffer bounds undelivered alerts. Extra alerts are dropped.
	AlertBuffer int
}

// AdminDashboard shows every ticket with its owner plus the user list.
type AdminDashboard struct {
	api       AdminAPI
	logger    *zap.Logger
	pollSpec  string
	onRefresh func()
	rec       *reconciler
	alerts    chan Alert

	mu      sync.RWMutex
	tickets []domain.TicketView
	users   []domain.User
	filter  domain.TicketFilter
	poller  *cron.Cron
	sub     events.Subscription
	closed  bool
}

// NewAdminDashboard builds an admin dashboard.
func NewAdminDashboard(api AdminAPI, opts AdminOptions) *AdminDashboard {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollSpec == "" {
		opts.PollSpec = DefaultPollSpec
	}
	if opts.AlertBuffer <= 0 {
		opts.AlertBuffer = 16
	}
	d := &AdminDashboard{
		api:       api,
		logger:    opts.Logger.With(zap.String("dashboard", "admin")),
		pollSpec:  opts.PollSpec,
		onRefresh: opts.OnRefresh,
		alerts:    make(chan Alert, opts.AlertBuffer),
		filter:    domain.TicketFilter{MatchOwner: true},
	}
	d.rec = newReconciler(d.fetch, d.logger)
	return d
}

// Start loads tickets and users, then refreshes on every table change and on
// the poll schedule. A failed subscription leaves the poll running.
func (d *AdminDashboard) Start(ctx context.Context) error {
	if err := d.fetch(ctx); err != nil {
		return err
	}

	poller := cron.New()
	if _, err := poller.AddFunc(d.pollSpec, d.rec.Trigger); err != nil {
		return fmt.Errorf("schedule dashboard poll %q: %w", d.pollSpec, err)
	}

	sub, err := d.api.SubscribeTickets(ctx, d.onChange)
	if err != nil {
		d.logger.Warn("ticket subscription failed, relying on poll", zap.Error(err))
	}

	d.mu.Lock()
	d.poller = poller
	d.sub = sub
	d.mu.Unlock()

	d.rec.start(ctx)
	poller.Start()
	return nil
}

func (d *AdminDashboard) onChange(_ context.Context, change events.Change) {
	if change.Table != events.TableTickets {
		return
	}
	if change.Op == events.OpInsert {
		d.alert(change)
	}
	d.rec.Trigger()
}

func (d *AdminDashboard) alert(change events.Change) {
	ticket, err := change.Ticket()
	if err != nil {
		d.logger.Warn("undecodable ticket change", zap.Error(err))
		return
	}
	alert := Alert{
		TicketID: ticket.ID,
		Title:    ticket.Title,
		Priority: ticket.Priority,
		Category: ticket.Category,
		At:       change.Timestamp,
	}
	select {
	case d.alerts <- alert:
	default:
		d.logger.Debug("alert dropped", zap.String("ticket_id", ticket.ID))
	}
}

// Alerts delivers new-ticket alerts. It is never closed.
func (d *AdminDashboard) Alerts() <-chan Alert {
	return d.alerts
}

func (d *AdminDashboard) fetch(ctx context.Context) error {
	var (
		tickets []domain.TicketView
		users   []domain.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tickets, err = d.api.ListAllTickets(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = d.api.ListUsers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	d.mu.Lock()
	d.tickets = tickets
	d.users = users
	d.mu.Unlock()
	if d.onRefresh != nil {
		d.onRefresh()
	}
	return nil
}

// Refresh requests a re-fetch.
func (d *AdminDashboard) Refresh() {
	d.rec.Trigger()
}

// SetFilter replaces the active filter. The text clause always covers owners.
func (d *AdminDashboard) SetFilter(filter domain.TicketFilter) {
	filter.MatchOwner = true
	d.mu.Lock()
	d.filter = filter
	d.mu.Unlock()
}

// Tickets returns every loaded ticket, newest first.
func (d *AdminDashboard) Tickets() []domain.TicketView {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.TicketView(nil), d.tickets...)
}

// Visible returns the loaded tickets that pass the active filter.
func (d *AdminDashboard) Visible() []domain.TicketView {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter.Apply(d.tickets)
}

// Users returns the loaded user list.
func (d *AdminDashboard) Users() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.User(nil), d.users...)
}

// Ticket returns a loaded ticket by id.
func (d *AdminDashboard) Ticket(id string) (domain.TicketView, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.tickets {
		if t.ID == id {
			return t, true
		}
	}
	return domain.TicketView{}, false
}

// Apply runs a lifecycle action and patches the local list without waiting
// for the next refresh. Actions not offered for a loaded ticket's status are
// refused locally.
func (d *AdminDashboard) Apply(ctx context.Context, ticketID string, action domain.TicketAction, assignee string) (*client.TransitionResult, error) {
	if current, ok := d.Ticket(ticketID); ok && !domain.CanApply(current.Status, action) {
		return nil, fmt.Errorf("%s ticket %s from %s: %w", action, ticketID, current.Status, domain.ErrInvalidTransition)
	}
	result, err := d.api.ApplyAction(ctx, ticketID, action, assignee)
	if err != nil {
		return nil, err
	}
	d.patch(ticketID, action, result.Ticket.Ticket)
	for _, w := range result.Warnings {
		d.logger.Warn("action completed with warning",
			zap.String("ticket_id", ticketID),
			zap.String("stage", w.Stage),
			zap.String("message", w.Message),
		)
	}
	return result, nil
}

func (d *AdminDashboard) patch(ticketID string, action domain.TicketAction, updated domain.Ticket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.tickets {
		if d.tickets[i].ID != ticketID {
			continue
		}
		if updated.ID == ticketID {
			d.tickets[i].Ticket = updated
			return
		}
		d.tickets[i].Status = action.Target()
		return
	}
}

// CreateUser provisions an account and schedules a refresh. The profile row
// is written asynchronously, so it may only appear on a later refresh.
func (d *AdminDashboard) CreateUser(ctx context.Context, req functions.CreateUserRequest) (*functions.ProvisionedUser, error) {
	user, err := d.api.CreateUser(ctx, req)
	if err != nil {
		return nil, err
	}
	d.rec.Trigger()
	return user, nil
}

// ExportCSV writes the currently visible tickets.
func (d *AdminDashboard) ExportCSV(w io.Writer) error {
	return export.WriteTickets(w, d.Visible())
}

// Close stops the poll and the subscription together.
func (d *AdminDashboard) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	poller, sub := d.poller, d.sub
	d.mu.Unlock()

	if poller != nil {
		<-poller.Stop().Done()
	}
	d.rec.stop()
	if sub != nil {
		return sub.Close()
	}
	return nil
}
