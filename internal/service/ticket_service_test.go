package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/config"
	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/events"
	"github.com/spec-kit/it-helpdesk/internal/observability"
	"github.com/spec-kit/it-helpdesk/internal/storage"
	apperrors "github.com/spec-kit/it-helpdesk/pkg/util"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)

type ticketFixture struct {
	svc         *TicketService
	clock       *fakeClock
	tickets     *fakeTicketRepo
	attachments *fakeAttachmentRepo
	users       *fakeUserRepo
	history     *fakeHistoryRepo
	store       *storage.MemoryStore
	feed        *events.MemoryFeed
	queue       *fakeQueue
	metrics     *observability.Metrics
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()
	clock := &fakeClock{now: baseTime}
	users := newFakeUserRepo(
		domain.User{ID: "u-1", Email: "amal@example.com", FullName: "Amal Rashid"},
		domain.User{ID: "admin-1", Email: "it@example.com", FullName: "IT Support"},
	)
	f := &ticketFixture{
		clock:       clock,
		tickets:     newFakeTicketRepo(clock, users),
		attachments: &fakeAttachmentRepo{},
		users:       users,
		history:     &fakeHistoryRepo{},
		store:       storage.NewMemoryStore(storage.DefaultBucket, "http://files.local"),
		feed:        events.NewMemoryFeed(),
		queue:       &fakeQueue{},
		metrics:     observability.NewMetrics(),
	}
	notifications := NewNotificationService(f.queue, zap.NewNop(), f.metrics, config.NotificationConfig{AdminEmail: "it-support@example.com"})
	f.svc = NewTicketService(TicketDependencies{
		TicketRepo:     f.tickets,
		AttachmentRepo: f.attachments,
		UserRepo:       f.users,
		HistoryRepo:    f.history,
		Store:          f.store,
		Feed:           f.feed,
		Notifications:  notifications,
		Metrics:        f.metrics,
		MaxUploadBytes: 1 << 10,
		Clock:          clock.Now,
	})
	return f
}

var submitter = domain.Identity{ID: "u-1", Email: "amal@example.com", FullName: "Amal Rashid", Role: domain.RoleUser}
var admin = domain.Identity{ID: "admin-1", Email: "it@example.com", FullName: "IT Support", Role: domain.RoleAdmin}

func upload(name string, data []byte) AttachmentUpload {
	return AttachmentUpload{
		FileName: name,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func validInput() SubmitInput {
	return SubmitInput{Title: "VPN issue", Description: "tunnel drops", Category: domain.CategoryIT, Priority: "critical"}
}

func TestSubmitTicket_StartsOpenAndNotifies(t *testing.T) {
	f := newTicketFixture(t)
	var changes []events.Change
	_, err := f.feed.Subscribe(context.Background(), events.TicketFilter(""), func(_ context.Context, c events.Change) {
		changes = append(changes, c)
	})
	require.NoError(t, err)

	res, err := f.svc.SubmitTicket(context.Background(), submitter, validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusOpen, res.Ticket.Status)
	assert.Equal(t, domain.TicketPriorityCritical, res.Ticket.Priority)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []domain.NotificationKind{domain.NotificationAdminNotification, domain.NotificationUserConfirmation}, f.queue.kinds())
	assert.Equal(t, "it-support@example.com", f.queue.msgs[0].To)
	assert.Equal(t, SubjectAdminNotification, f.queue.msgs[0].Subject)
	assert.Equal(t, "amal@example.com", f.queue.msgs[1].To)

	require.Len(t, changes, 1)
	assert.Equal(t, events.OpInsert, changes[0].Op)
}

func TestSubmitTicket_NoConfirmationWithoutEmail(t *testing.T) {
	f := newTicketFixture(t)
	anonymous := domain.Identity{ID: "u-2"}

	_, err := f.svc.SubmitTicket(context.Background(), anonymous, validInput())
	require.NoError(t, err)

	assert.Equal(t, []domain.NotificationKind{domain.NotificationAdminNotification}, f.queue.kinds())
	assert.Equal(t, "User", f.queue.msgs[0].UserName)
}

func TestSubmitTicket_Validation(t *testing.T) {
	f := newTicketFixture(t)
	cases := map[string]SubmitInput{
		"missing title":    {Description: "d", Category: domain.CategoryIT, Priority: "low"},
		"blank desc":       {Title: "t", Description: "   ", Category: domain.CategoryIT, Priority: "low"},
		"unknown priority": {Title: "t", Description: "d", Category: domain.CategoryIT, Priority: "urgent"},
		"unknown category": {Title: "t", Description: "d", Category: "Marketing", Priority: "low"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.SubmitTicket(context.Background(), submitter, input)
			var domainErr *apperrors.DomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
		})
	}
	assert.Empty(t, f.tickets.tickets, "nothing is written on validation failure")
	assert.Empty(t, f.queue.msgs)
}

func TestSubmitTicket_InsertFailureIsFatal(t *testing.T) {
	f := newTicketFixture(t)
	f.tickets.createErr = errors.New("connection refused")

	input := validInput()
	input.Attachments = []AttachmentUpload{upload("shot.png", pngBytes)}
	_, err := f.svc.SubmitTicket(context.Background(), submitter, input)

	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, 500, domainErr.HTTPStatus)
	assert.Empty(t, f.store.Keys(), "no uploads after a failed insert")
	assert.Empty(t, f.queue.msgs)
}

func TestSubmitTicket_AttachmentFailuresAreSoft(t *testing.T) {
	f := newTicketFixture(t)
	f.attachments.fail = map[string]bool{"broken.png": true}

	input := validInput()
	input.Attachments = []AttachmentUpload{
		upload("screen.png", pngBytes),
		upload("notes.txt", []byte("plain text is not an image")),
		upload("huge.png", append(pngBytes, bytes.Repeat([]byte{1}, 2<<10)...)),
		upload("broken.png", pngBytes),
		{FileName: "gone.png", Size: 10, Open: func() (io.ReadCloser, error) { return nil, errors.New("disk gone") }},
	}
	res, err := f.svc.SubmitTicket(context.Background(), submitter, input)
	require.NoError(t, err)

	stored, err := f.tickets.GetByID(context.Background(), res.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)

	require.Len(t, res.Attachments, 1)
	assert.Equal(t, "screen.png", res.Attachments[0].FileName)
	assert.Equal(t, "image/png", res.Attachments[0].FileType)
	assert.Equal(t, storage.AttachmentKey(res.Ticket.ID, "screen.png", ".png"), res.Attachments[0].FilePath)

	targets := map[string]string{}
	for _, w := range res.Warnings {
		assert.Equal(t, StageAttachment, w.Stage)
		targets[w.Target] = w.Message
	}
	assert.Equal(t, map[string]string{
		"notes.txt":  "only image files can be attached",
		"huge.png":   "file exceeds the upload size limit",
		"broken.png": "attachment could not be uploaded",
		"gone.png":   "attachment could not be uploaded",
	}, targets)
	assert.Equal(t, int64(4), f.metrics.Snapshot().SoftFailures[StageAttachment])
	assert.Len(t, f.queue.msgs, 2, "notifications still go out")
}

func TestSubmitTicket_QueueFailureIsSoft(t *testing.T) {
	f := newTicketFixture(t)
	f.queue.err = errors.New("queue full")

	res, err := f.svc.SubmitTicket(context.Background(), submitter, validInput())
	require.NoError(t, err)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, StageNotification, res.Warnings[0].Stage)
}

func submitOne(t *testing.T, f *ticketFixture) domain.Ticket {
	t.Helper()
	res, err := f.svc.SubmitTicket(context.Background(), submitter, validInput())
	require.NoError(t, err)
	f.queue.msgs = nil
	return res.Ticket
}

func TestTransition_FullLifecycle(t *testing.T) {
	f := newTicketFixture(t)
	ticket := submitOne(t, f)
	ctx := context.Background()

	for _, action := range []domain.TicketAction{domain.ActionStart, domain.ActionResolve, domain.ActionClose} {
		f.clock.Advance(time.Minute)
		res, err := f.svc.Transition(ctx, admin, ticket.ID, action, "")
		require.NoError(t, err, action)
		assert.Equal(t, action.Target(), res.Ticket.Status)
		assert.False(t, res.Ticket.UpdatedAt.Before(res.Ticket.CreatedAt))
		assert.Empty(t, res.Warnings)
	}

	require.Len(t, f.queue.msgs, 1, "only resolve notifies")
	msg := f.queue.msgs[0]
	assert.Equal(t, domain.NotificationStatusUpdate, msg.Type)
	assert.Equal(t, "amal@example.com", msg.To)
	assert.Equal(t, "Your IT Support Ticket Status Updated: VPN issue", msg.Subject)
	assert.Equal(t, domain.TicketStatusResolved, msg.Status)

	history, err := f.svc.History(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.TicketStatusResolved, history[2].FromStatus)
	assert.Equal(t, domain.TicketStatusClosed, history[2].ToStatus)

	_, err = f.svc.Transition(ctx, admin, ticket.ID, domain.ActionStart, "")
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "CONFLICT", domainErr.Code, "closed is terminal")
}

func TestTransition_AssignSetsStatusAndAssigneeTogether(t *testing.T) {
	f := newTicketFixture(t)
	ticket := submitOne(t, f)

	var seen []domain.Ticket
	_, err := f.feed.Subscribe(context.Background(), events.TicketFilter(""), func(_ context.Context, c events.Change) {
		tk, err := c.Ticket()
		require.NoError(t, err)
		seen = append(seen, tk)
	})
	require.NoError(t, err)

	res, err := f.svc.Transition(context.Background(), admin, ticket.ID, domain.ActionAssign, "admin-1")
	require.NoError(t, err)
	require.NotNil(t, res.Ticket.AssignedTo)
	assert.Equal(t, "admin-1", *res.Ticket.AssignedTo)
	assert.Equal(t, domain.TicketStatusInProgress, res.Ticket.Status)

	require.Len(t, seen, 1, "a single visible update")
	assert.Equal(t, domain.TicketStatusInProgress, seen[0].Status)
	require.NotNil(t, seen[0].AssignedTo)

	ticket2 := submitOne(t, f)
	_, err = f.svc.Transition(context.Background(), admin, ticket2.ID, domain.ActionAssign, "nobody")
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
}

func TestTransition_ConcurrentAdminLoses(t *testing.T) {
	f := newTicketFixture(t)
	ticket := submitOne(t, f)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, admin, ticket.ID, domain.ActionStart, "")
	require.NoError(t, err)

	// Another admin resolves the ticket between our read and our write.
	f.tickets.beforeUpdate = func() { f.tickets.setStatus(ticket.ID, domain.TicketStatusResolved) }
	_, err = f.svc.Transition(ctx, admin, ticket.ID, domain.ActionResolve, "")
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, 409, domainErr.HTTPStatus)
	assert.Empty(t, f.queue.msgs, "the losing resolve sends nothing")
}

func TestTransition_RequiresAdminAndExistingTicket(t *testing.T) {
	f := newTicketFixture(t)
	ticket := submitOne(t, f)

	_, err := f.svc.Transition(context.Background(), submitter, ticket.ID, domain.ActionStart, "")
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "FORBIDDEN", domainErr.Code)

	_, err = f.svc.Transition(context.Background(), admin, "missing", domain.ActionStart, "")
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestTransition_HistoryFailureIsSoft(t *testing.T) {
	f := newTicketFixture(t)
	ticket := submitOne(t, f)
	f.history.err = errors.New("history table locked")

	res, err := f.svc.Transition(context.Background(), admin, ticket.ID, domain.ActionStart, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, res.Ticket.Status)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, StageHistory, res.Warnings[0].Stage)
}

func TestTransition_ResolveWithoutOwnerEmailSkipsNotification(t *testing.T) {
	f := newTicketFixture(t)
	res, err := f.svc.SubmitTicket(context.Background(), domain.Identity{ID: "ghost"}, validInput())
	require.NoError(t, err)
	f.queue.msgs = nil

	_, err = f.svc.Transition(context.Background(), admin, res.Ticket.ID, domain.ActionStart, "")
	require.NoError(t, err)
	_, err = f.svc.Transition(context.Background(), admin, res.Ticket.ID, domain.ActionResolve, "")
	require.NoError(t, err)
	assert.Empty(t, f.queue.msgs)
}

func TestListOwnAndAll(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	first := submitOne(t, f)
	input := validInput()
	input.Title = "Printer jam"
	input.Priority = "low"
	_, err := f.svc.SubmitTicket(ctx, submitter, input)
	require.NoError(t, err)
	_, err = f.svc.SubmitTicket(ctx, domain.Identity{ID: "admin-1", Email: "it@example.com"}, validInput())
	require.NoError(t, err)

	own, err := f.svc.ListOwn(ctx, submitter, domain.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Equal(t, "Printer jam", own[0].Title, "newest first")
	assert.Equal(t, first.ID, own[1].ID)

	own, err = f.svc.ListOwn(ctx, submitter, domain.TicketFilter{Query: "amal"})
	require.NoError(t, err)
	assert.Empty(t, own, "user dashboard text search ignores owner fields")

	all, err := f.svc.ListAll(ctx, domain.TicketFilter{Query: "amal"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	all, err = f.svc.ListAll(ctx, domain.TicketFilter{Priority: domain.FilterAll})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestEnsureProfile(t *testing.T) {
	f := newTicketFixture(t)
	identity := domain.Identity{ID: "u-9", Email: "new@example.com", FullName: "New Person"}

	user, err := f.svc.EnsureProfile(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)

	again, err := f.svc.EnsureProfile(context.Background(), domain.Identity{ID: "u-9", Email: "changed@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", again.Email, "existing rows are left alone")
}

func TestAttachments_VisibleToOwnerAndAdmin(t *testing.T) {
	f := newTicketFixture(t)
	input := validInput()
	input.Attachments = []AttachmentUpload{upload("screen.png", pngBytes)}
	res, err := f.svc.SubmitTicket(context.Background(), submitter, input)
	require.NoError(t, err)

	list, err := f.svc.Attachments(context.Background(), submitter, res.Ticket.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Contains(t, list[0].URL, "/storage/v1/object/public/ticket-attachments/attachments/")

	_, err = f.svc.Attachments(context.Background(), admin, res.Ticket.ID)
	require.NoError(t, err)

	_, err = f.svc.Attachments(context.Background(), domain.Identity{ID: "other"}, res.Ticket.ID)
	assert.Error(t, err)
}
