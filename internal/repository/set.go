package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Set groups every repository the services depend on.
type Set struct {
	Tickets        TicketRepository
	Attachments    AttachmentRepository
	Users          UserRepository
	History        TicketHistoryRepository
	Accounts       AccountRepository
	PasswordResets PasswordResetRepository
}

// NewPostgresSet builds the repositories over a pgx pool.
func NewPostgresSet(pool *pgxpool.Pool) Set {
	return Set{
		Tickets:        NewTicketRepository(pool),
		Attachments:    NewAttachmentRepository(pool),
		Users:          NewUserRepository(pool),
		History:        NewTicketHistoryRepository(pool),
		Accounts:       NewAccountRepository(pool),
		PasswordResets: NewPasswordResetRepository(pool),
	}
}

// Set returns the in-memory repositories.
func (m *Memory) Set() Set {
	return Set{
		Tickets:        m.Tickets(),
		Attachments:    m.Attachments(),
		Users:          m.Users(),
		History:        m.History(),
		Accounts:       m.Accounts(),
		PasswordResets: m.PasswordResets(),
	}
}
