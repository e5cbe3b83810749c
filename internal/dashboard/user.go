package dashboard

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/events"
)

// TicketStream delivers ticket change events.
type TicketStream interface {
	SubscribeTickets(ctx context.Context, handler events.Handler) (events.Subscription, error)
}

// UserAPI is what the end-user dashboard needs from the backend.
type UserAPI interface {
	TicketStream
	EnsureProfile(ctx context.Context) (*domain.User, error)
	ListOwnTickets(ctx context.Context) ([]domain.Ticket, error)
}

// UserOptions configures an end-user dashboard.
type UserOptions struct {
	Logger *zap.Logger
	// OnRefresh runs on the reconciler goroutine after each successful fetch.
	OnRefresh func()
}

// UserDashboard shows the caller's own tickets.
type UserDashboard struct {
	api       UserAPI
	identity  domain.Identity
	logger    *zap.Logger
	onRefresh func()
	rec       *reconciler

	mu      sync.RWMutex
	tickets []domain.Ticket
	filter  domain.TicketFilter
	sub     events.Subscription
}

// NewUserDashboard builds a dashboard for identity.
func NewUserDashboard(api UserAPI, identity domain.Identity, opts UserOptions) *UserDashboard {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	d := &UserDashboard{
		api:       api,
		identity:  identity,
		logger:    opts.Logger.With(zap.String("dashboard", "user"), zap.String("user_id", identity.ID)),
		onRefresh: opts.OnRefresh,
	}
	d.rec = newReconciler(d.fetch, d.logger)
	return d
}

// Start ensures the profile row, loads the tickets and subscribes to changes
// on the caller's tickets. Only the initial fetch can fail it.
func (d *UserDashboard) Start(ctx context.Context) error {
	if _, err := d.api.EnsureProfile(ctx); err != nil {
		d.logger.Warn("ensure profile failed", zap.Error(err))
	}
	if err := d.fetch(ctx); err != nil {
		return err
	}

	scope := events.TicketFilter(d.identity.ID)
	sub, err := d.api.SubscribeTickets(ctx, func(_ context.Context, change events.Change) {
		if scope.Match(change) {
			d.rec.Trigger()
		}
	})
	if err != nil {
		d.logger.Warn("ticket subscription failed", zap.Error(err))
	} else {
		d.mu.Lock()
		d.sub = sub
		d.mu.Unlock()
	}
	d.rec.start(ctx)
	return nil
}

func (d *UserDashboard) fetch(ctx context.Context) error {
	tickets, err := d.api.ListOwnTickets(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.tickets = tickets
	d.mu.Unlock()
	if d.onRefresh != nil {
		d.onRefresh()
	}
	return nil
}

// Refresh requests a re-fetch.
func (d *UserDashboard) Refresh() {
	d.rec.Trigger()
}

// SetFilter replaces the active filter.
func (d *UserDashboard) SetFilter(filter domain.TicketFilter) {
	filter.MatchOwner = false
	d.mu.Lock()
	d.filter = filter
	d.mu.Unlock()
}

// Tickets returns every loaded ticket, newest first.
func (d *UserDashboard) Tickets() []domain.Ticket {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.Ticket(nil), d.tickets...)
}

// Visible returns the loaded tickets that pass the active filter.
func (d *UserDashboard) Visible() []domain.Ticket {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Ticket, 0, len(d.tickets))
	for _, t := range d.tickets {
		if d.filter.Match(domain.TicketView{Ticket: t}) {
			out = append(out, t)
		}
	}
	return out
}

// Close ends the subscription and the reconciler.
func (d *UserDashboard) Close() error {
	d.rec.stop()
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()
	if sub != nil {
		return sub.Close()
	}
	return nil
}
