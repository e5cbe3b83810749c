package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

func ticketChange(t *testing.T, op Op, id, owner string) Change {
	t.Helper()
	change, err := NewTicketChange(op, domain.Ticket{ID: id, UserID: owner, Status: domain.TicketStatusOpen})
	require.NoError(t, err)
	return change
}

func TestFilterMatch(t *testing.T) {
	insert := ticketChange(t, OpInsert, "t-1", "u-1")

	assert.True(t, TicketFilter("").Match(insert))
	assert.True(t, TicketFilter("u-1").Match(insert))
	assert.False(t, TicketFilter("u-2").Match(insert))
	assert.False(t, Filter{Table: "other"}.Match(insert))
	assert.False(t, Filter{Table: TableTickets, Ops: []Op{OpUpdate}}.Match(insert))
}

func TestChangeTicketRoundTrip(t *testing.T) {
	change := ticketChange(t, OpUpdate, "t-9", "u-3")
	ticket, err := change.Ticket()
	require.NoError(t, err)
	assert.Equal(t, "t-9", ticket.ID)
	assert.Equal(t, "u-3", ticket.UserID)

	_, err = Change{Table: "accounts"}.Ticket()
	assert.Error(t, err)
}

func TestMemoryFeed_ScopedDelivery(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()

	var mu sync.Mutex
	var adminSeen, userSeen []string
	_, err := feed.Subscribe(ctx, TicketFilter(""), func(_ context.Context, c Change) {
		mu.Lock()
		adminSeen = append(adminSeen, c.Keys["id"])
		mu.Unlock()
	})
	require.NoError(t, err)
	userSub, err := feed.Subscribe(ctx, TicketFilter("u-1"), func(_ context.Context, c Change) {
		mu.Lock()
		userSeen = append(userSeen, c.Keys["id"])
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, ticketChange(t, OpInsert, "t-1", "u-1")))
	require.NoError(t, feed.Publish(ctx, ticketChange(t, OpInsert, "t-2", "u-2")))
	require.NoError(t, userSub.Close())
	require.NoError(t, feed.Publish(ctx, ticketChange(t, OpUpdate, "t-3", "u-1")))

	assert.Equal(t, []string{"t-1", "t-2", "t-3"}, adminSeen)
	assert.Equal(t, []string{"t-1"}, userSeen)
}

func TestMemoryFeed_ContextCancelUnsubscribes(t *testing.T) {
	feed := NewMemoryFeed()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := feed.Subscribe(ctx, TicketFilter(""), func(context.Context, Change) {})
	require.NoError(t, err)
	assert.Equal(t, 1, feed.Len())

	cancel()
	assert.Eventually(t, func() bool { return feed.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryFeed_Closed(t *testing.T) {
	feed := NewMemoryFeed()
	require.NoError(t, feed.Close())

	_, err := feed.Subscribe(context.Background(), TicketFilter(""), func(context.Context, Change) {})
	assert.ErrorIs(t, err, ErrFeedClosed)
	assert.ErrorIs(t, feed.Publish(context.Background(), Change{}), ErrFeedClosed)
}
