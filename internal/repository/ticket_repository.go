package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

// LifecycleUpdate is a single-statement status change. The row is only
// written while it is still in FromStatus.
type LifecycleUpdate struct {
	TicketID   string
	FromStatus domain.TicketStatus
	ToStatus   domain.TicketStatus
	AssignedTo *string
	UpdatedAt  time.Time
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetView(ctx context.Context, id string) (*domain.TicketView, error)
	ListByOwner(ctx context.Context, userID string) ([]domain.Ticket, error)
	ListWithOwners(ctx context.Context) ([]domain.TicketView, error)
	// UpdateLifecycle returns pgx.ErrNoRows when the ticket is missing or
	// no longer in FromStatus.
	UpdateLifecycle(ctx context.Context, update LifecycleUpdate) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `t.id, t.title, t.description, t.status, t.priority, t.category,
               t.user_id, t.assigned_to, t.created_at, t.updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO support_tickets (title, description, status, priority, category, user_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.UserID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM support_tickets t WHERE t.id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) GetView(ctx context.Context, id string) (*domain.TicketView, error) {
	query := `SELECT ` + ticketColumns + `, u.email, u.full_name
        FROM support_tickets t LEFT JOIN users u ON u.id = t.user_id
        WHERE t.id=$1`
	view, err := scanView(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (r *ticketRepository) ListByOwner(ctx context.Context, userID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM support_tickets t
        WHERE t.user_id=$1 ORDER BY t.created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) ListWithOwners(ctx context.Context) ([]domain.TicketView, error) {
	query := `SELECT ` + ticketColumns + `, u.email, u.full_name
        FROM support_tickets t LEFT JOIN users u ON u.id = t.user_id
        ORDER BY t.created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketView{}
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, view)
	}
	return result, rows.Err()
}

func (r *ticketRepository) UpdateLifecycle(ctx context.Context, update LifecycleUpdate) (*domain.Ticket, error) {
	query := `
        UPDATE support_tickets t
        SET status=$3,
            assigned_to=COALESCE($4, t.assigned_to),
            updated_at=GREATEST($5, t.created_at)
        WHERE t.id=$1 AND t.status=$2
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query,
		update.TicketID,
		update.FromStatus,
		update.ToStatus,
		update.AssignedTo,
		update.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var ticket domain.Ticket
	err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Category,
		&ticket.UserID,
		&ticket.AssignedTo,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	return ticket, err
}

func scanView(row pgx.Row) (domain.TicketView, error) {
	var view domain.TicketView
	var email, fullName *string
	if err := row.Scan(
		&view.ID,
		&view.Title,
		&view.Description,
		&view.Status,
		&view.Priority,
		&view.Category,
		&view.UserID,
		&view.AssignedTo,
		&view.CreatedAt,
		&view.UpdatedAt,
		&email,
		&fullName,
	); err != nil {
		return view, err
	}
	if email != nil {
		view.Owner = &domain.OwnerSummary{Email: *email}
		if fullName != nil {
			view.Owner.FullName = *fullName
		}
	}
	return view, nil
}
