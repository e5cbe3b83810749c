package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

type tickingClock struct{ now time.Time }

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestMemory_AccountMirrorsProfile(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(nil)

	account := &domain.Account{Email: "amal@example.com", FullName: "Amal Rashid", Role: domain.RoleUser}
	require.NoError(t, mem.Accounts().Create(ctx, account))
	require.NotEmpty(t, account.ID)

	user, err := mem.Users().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Amal Rashid", user.FullName)

	err = mem.Accounts().Create(ctx, &domain.Account{Email: "AMAL@example.com"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	profile := &domain.User{ID: account.ID, Email: "other@example.com", FullName: "Other"}
	require.NoError(t, mem.Users().EnsureProfile(ctx, profile))
	assert.Equal(t, "Amal Rashid", profile.FullName, "existing row wins")

	require.NoError(t, mem.Accounts().SetRole(ctx, account.ID, domain.RoleAdmin))
	got, err := mem.Accounts().GetByEmail(ctx, "Amal@Example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)

	_, err = mem.Accounts().GetByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemory_TicketsNewestFirstWithOwners(t *testing.T) {
	ctx := context.Background()
	clock := &tickingClock{now: time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)}
	mem := NewMemory(clock.Now)

	owner := &domain.Account{Email: "amal@example.com", FullName: "Amal Rashid"}
	require.NoError(t, mem.Accounts().Create(ctx, owner))

	first := &domain.Ticket{Title: "first", Status: domain.TicketStatusOpen, UserID: owner.ID}
	second := &domain.Ticket{Title: "second", Status: domain.TicketStatusOpen, UserID: owner.ID}
	stray := &domain.Ticket{Title: "stray", Status: domain.TicketStatusOpen, UserID: "someone-else"}
	for _, ticket := range []*domain.Ticket{first, second, stray} {
		require.NoError(t, mem.Tickets().Create(ctx, ticket))
	}

	own, err := mem.Tickets().ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Equal(t, "second", own[0].Title)

	views, err := mem.Tickets().ListWithOwners(ctx)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "stray", views[0].Title)
	assert.Nil(t, views[0].Owner)
	assert.Equal(t, "Amal Rashid", views[1].OwnerName())
}

func TestMemory_UpdateLifecycleCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(nil)
	ticket := &domain.Ticket{Title: "VPN", Status: domain.TicketStatusOpen, UserID: "u-1"}
	require.NoError(t, mem.Tickets().Create(ctx, ticket))

	assignee := "admin-1"
	updated, err := mem.Tickets().UpdateLifecycle(ctx, LifecycleUpdate{
		TicketID:   ticket.ID,
		FromStatus: domain.TicketStatusOpen,
		ToStatus:   domain.TicketStatusInProgress,
		AssignedTo: &assignee,
		UpdatedAt:  time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	assert.Equal(t, "admin-1", *updated.AssignedTo)

	_, err = mem.Tickets().UpdateLifecycle(ctx, LifecycleUpdate{
		TicketID:   ticket.ID,
		FromStatus: domain.TicketStatusOpen,
		ToStatus:   domain.TicketStatusClosed,
	})
	assert.ErrorIs(t, err, pgx.ErrNoRows, "stale from-status loses")

	_, err = mem.Tickets().UpdateLifecycle(ctx, LifecycleUpdate{TicketID: "missing"})
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemory_ResetCodesAreSingleUse(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(nil)
	resets := mem.PasswordResets()

	older := &PasswordResetCode{AccountID: "a-1", Code: "111111", ExpiresAt: time.Now().Add(time.Hour)}
	other := &PasswordResetCode{AccountID: "a-2", Code: "222222", ExpiresAt: time.Now().Add(time.Hour)}
	newer := &PasswordResetCode{AccountID: "a-1", Code: "333333", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, resets.Create(ctx, older))
	require.NoError(t, resets.Create(ctx, other))
	require.NoError(t, resets.Create(ctx, newer))

	latest, err := resets.GetLatest(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
	assert.Equal(t, "333333", latest.Code)
	assert.ErrorIs(t, resets.MarkUsed(ctx, older.ID), pgx.ErrNoRows, "issuing a new code retires the older one")

	untouched, err := resets.GetLatest(ctx, "a-2")
	require.NoError(t, err)
	assert.Equal(t, other.ID, untouched.ID)

	require.NoError(t, resets.MarkUsed(ctx, latest.ID))
	assert.ErrorIs(t, resets.MarkUsed(ctx, latest.ID), pgx.ErrNoRows)

	_, err = resets.GetLatest(ctx, "a-1")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemory_ResetCodeAttempts(t *testing.T) {
	ctx := context.Background()
	resets := NewMemory(nil).PasswordResets()

	code := &PasswordResetCode{AccountID: "a-1", Code: "123456", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, resets.Create(ctx, code))

	for i := 1; i <= MaxResetAttempts; i++ {
		attempts, err := resets.RecordFailure(ctx, code.ID)
		require.NoError(t, err)
		assert.Equal(t, i, attempts)
	}
	latest, err := resets.GetLatest(ctx, "a-1")
	require.NoError(t, err)
	assert.False(t, latest.Usable(time.Now()), "too many wrong guesses lock the code")

	require.NoError(t, resets.MarkUsed(ctx, code.ID))
	_, err = resets.RecordFailure(ctx, code.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemory_AttachmentsAndHistory(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(nil)
	ticket := &domain.Ticket{Title: "Printer", Status: domain.TicketStatusOpen, UserID: "u-1"}
	require.NoError(t, mem.Tickets().Create(ctx, ticket))

	assert.ErrorIs(t, mem.Attachments().Create(ctx, &domain.Attachment{TicketID: "missing"}), pgx.ErrNoRows)
	require.NoError(t, mem.Attachments().Create(ctx, &domain.Attachment{TicketID: ticket.ID, FileName: "log.txt"}))
	files, err := mem.Attachments().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "log.txt", files[0].FileName)

	require.NoError(t, mem.History().Create(ctx, &domain.TicketHistory{TicketID: ticket.ID, Action: domain.ActionStart}))
	entries, err := mem.History().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].CreatedAt.IsZero())
}
