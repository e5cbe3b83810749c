package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/events"
	"github.com/spec-kit/it-helpdesk/internal/observability"
	"github.com/spec-kit/it-helpdesk/internal/repository"
	"github.com/spec-kit/it-helpdesk/internal/storage"
	apperrors "github.com/spec-kit/it-helpdesk/pkg/util"
)

// Soft failure stages.
const (
	StageAttachment   = "attachment"
	StageNotification = "notification"
	StageHistory      = "history"
	StageRealtime     = "realtime"
	StageProfile      = "profile"
)

const maxParallelUploads = 4

// Warning is a soft failure: it is reported to the caller but the primary
// operation stands.
type Warning struct {
	Stage   string `json:"stage"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message"`
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets       repository.TicketRepository
	attachments   repository.AttachmentRepository
	users         repository.UserRepository
	history       repository.TicketHistoryRepository
	store         storage.ObjectStore
	feed          events.Feed
	notifications *NotificationService
	logger        *zap.Logger
	metrics       *observability.Metrics
	maxUpload     int64
	now           func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	AttachmentRepo repository.AttachmentRepository
	UserRepo       repository.UserRepository
	HistoryRepo    repository.TicketHistoryRepository
	Store          storage.ObjectStore
	Feed           events.Feed
	Notifications  *NotificationService
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	MaxUploadBytes int64
	Clock          func() time.Time
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 10 << 20
	}
	return &TicketService{
		tickets:       deps.TicketRepo,
		attachments:   deps.AttachmentRepo,
		users:         deps.UserRepo,
		history:       deps.HistoryRepo,
		store:         deps.Store,
		feed:          deps.Feed,
		notifications: deps.Notifications,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		maxUpload:     deps.MaxUploadBytes,
		now:           deps.Clock,
	}
}

// AttachmentUpload is one file of a submission. Open is called once.
type AttachmentUpload struct {
	FileName string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// SubmitInput is the ticket submission form.
type SubmitInput struct {
	Title       string
	Description string
	Category    string
	Priority    string
	Attachments []AttachmentUpload
}

// SubmitResult is the created ticket and any soft failures.
type SubmitResult struct {
	Ticket      domain.Ticket       `json:"ticket"`
	Attachments []domain.Attachment `json:"attachments"`
	Warnings    []Warning           `json:"warnings"`
}

// TransitionResult is the updated ticket and any soft failures.
type TransitionResult struct {
	Ticket   domain.TicketView `json:"ticket"`
	Warnings []Warning         `json:"warnings"`
}

// SubmitTicket creates an open ticket for submitter. Only the ticket insert
// can fail the call; attachment and notification failures become warnings.
func (s *TicketService) SubmitTicket(ctx context.Context, submitter domain.Identity, input SubmitInput) (*SubmitResult, error) {
	ticket, err := newTicket(submitter, input)
	if err != nil {
		return nil, err
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.logger.Error("ticket insert failed", zap.String("user_id", submitter.ID), zap.Error(err))
		return nil, &apperrors.DomainError{
			Code:       "TICKET_CREATE_FAILED",
			Message:    "failed to submit ticket, please try again",
			HTTPStatus: http.StatusInternalServerError,
			Err:        fmt.Errorf("create ticket: %w", err),
		}
	}

	result := &SubmitResult{Ticket: *ticket, Attachments: []domain.Attachment{}, Warnings: []Warning{}}
	if len(input.Attachments) > 0 {
		attachments, warnings := s.storeAttachments(ctx, *ticket, submitter.ID, input.Attachments)
		result.Attachments = attachments
		result.Warnings = append(result.Warnings, warnings...)
	}

	result.Warnings = append(result.Warnings, s.notifications.TicketSubmitted(*ticket, submitter)...)
	if w := s.publish(ctx, events.OpInsert, *ticket); w != nil {
		result.Warnings = append(result.Warnings, *w)
	}
	return result, nil
}

func newTicket(submitter domain.Identity, input SubmitInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	category := strings.TrimSpace(input.Category)
	priority := domain.TicketPriority(strings.ToLower(strings.TrimSpace(input.Priority)))

	missing := []string{}
	for _, field := range []struct{ name, value string }{
		{"title", title},
		{"description", description},
		{"category", category},
		{"priority", string(priority)},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("please fill in all required fields", map[string]any{"missing": missing})
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}
	if !domain.ValidCategory(category) {
		return nil, apperrors.NewValidationError("invalid category", map[string]any{"category": input.Category, "allowed": domain.Categories})
	}
	if submitter.ID == "" {
		return nil, apperrors.NewUnauthorized("sign in to submit a ticket")
	}
	return &domain.Ticket{
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		Category:    category,
		UserID:      submitter.ID,
	}, nil
}

// storeAttachments uploads each file in its own failure boundary. A failed
// file never cancels its siblings.
func (s *TicketService) storeAttachments(ctx context.Context, ticket domain.Ticket, uploaderID string, uploads []AttachmentUpload) ([]domain.Attachment, []Warning) {
	stored := make([]*domain.Attachment, len(uploads))
	failures := make([]*Warning, len(uploads))

	var g errgroup.Group
	g.SetLimit(maxParallelUploads)
	for i, upload := range uploads {
		g.Go(func() error {
			attachment, err := s.storeAttachment(ctx, ticket, uploaderID, upload)
			if err != nil {
				s.logger.Warn("attachment failed",
					zap.String("ticket_id", ticket.ID),
					zap.String("file_name", upload.FileName),
					zap.Error(err))
				s.metrics.RecordSoftFailure(StageAttachment)
				failures[i] = &Warning{Stage: StageAttachment, Target: upload.FileName, Message: attachmentMessage(err)}
				return nil
			}
			stored[i] = attachment
			return nil
		})
	}
	_ = g.Wait()

	attachments := []domain.Attachment{}
	warnings := []Warning{}
	for i := range uploads {
		if stored[i] != nil {
			attachments = append(attachments, *stored[i])
		}
		if failures[i] != nil {
			warnings = append(warnings, *failures[i])
		}
	}
	return attachments, warnings
}

var (
	errNotImage     = errors.New("only image files can be attached")
	errTooLarge     = errors.New("file exceeds the upload size limit")
	errEmptyFile    = errors.New("file is empty")
	errNoAttachment = errors.New("attachment storage unavailable")
)

func attachmentMessage(err error) string {
	for _, known := range []error{errNotImage, errTooLarge, errEmptyFile} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	switch {
	case errors.Is(err, storage.ErrObjectExists):
		return "a file with this name was already attached"
	default:
		return "attachment could not be uploaded"
	}
}

func (s *TicketService) storeAttachment(ctx context.Context, ticket domain.Ticket, uploaderID string, upload AttachmentUpload) (*domain.Attachment, error) {
	if s.store == nil {
		return nil, errNoAttachment
	}
	if upload.Size > s.maxUpload {
		return nil, errTooLarge
	}
	rc, err := upload.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxUpload {
		return nil, errTooLarge
	}
	if len(data) == 0 {
		return nil, errEmptyFile
	}

	mtype := mimetype.Detect(data)
	if !isImage(mtype) {
		return nil, fmt.Errorf("%w: detected %s", errNotImage, mtype.String())
	}

	key := storage.AttachmentKey(ticket.ID, upload.FileName, mtype.Extension())
	if err := s.store.Upload(ctx, key, bytes.NewReader(data), mtype.String()); err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	attachment := &domain.Attachment{
		TicketID: ticket.ID,
		UserID:   uploaderID,
		FileName: upload.FileName,
		FilePath: key,
		FileType: mtype.String(),
		FileSize: int64(len(data)),
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		return nil, fmt.Errorf("record attachment: %w", err)
	}
	return attachment, nil
}

func isImage(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}

// Transition applies an admin lifecycle action. The update only lands while
// the ticket is still in the action's source state; a concurrent change
// yields a conflict.
func (s *TicketService) Transition(ctx context.Context, actor domain.Identity, ticketID string, action domain.TicketAction, assignee string) (*TransitionResult, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin role required")
	}
	current, err := s.tickets.GetView(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, err
	}

	next, err := domain.ApplyAction(current.Ticket, action, assignee, s.now())
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return nil, apperrors.NewConflict("action not available for the ticket's status", map[string]any{
			"status":    current.Status,
			"action":    action,
			"available": domain.AvailableActions(current.Status),
		})
	case errors.Is(err, domain.ErrAssigneeRequired):
		return nil, apperrors.NewValidationError("assignee_id required", nil)
	case errors.Is(err, domain.ErrUnknownAction):
		return nil, apperrors.NewValidationError("unknown action", map[string]any{"action": action})
	case err != nil:
		return nil, err
	}

	update := repository.LifecycleUpdate{
		TicketID:   current.ID,
		FromStatus: current.Status,
		ToStatus:   next.Status,
		UpdatedAt:  next.UpdatedAt,
	}
	if action == domain.ActionAssign {
		if _, err := s.users.GetByID(ctx, *next.AssignedTo); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewValidationError("assignee not found", map[string]any{"assignee_id": *next.AssignedTo})
			}
			return nil, err
		}
		update.AssignedTo = next.AssignedTo
	}

	updated, err := s.tickets.UpdateLifecycle(ctx, update)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewConflict("ticket was changed by someone else, refresh and retry", map[string]any{"expected_status": current.Status})
		}
		return nil, err
	}

	result := &TransitionResult{
		Ticket:   domain.TicketView{Ticket: *updated, Owner: current.Owner},
		Warnings: []Warning{},
	}
	if w := s.recordHistory(ctx, actor, action, current.Status, *updated); w != nil {
		result.Warnings = append(result.Warnings, *w)
	}
	if action.NotifiesOwner() {
		if w := s.notifications.StatusChanged(result.Ticket); w != nil {
			result.Warnings = append(result.Warnings, *w)
		}
	}
	if w := s.publish(ctx, events.OpUpdate, *updated); w != nil {
		result.Warnings = append(result.Warnings, *w)
	}
	return result, nil
}

func (s *TicketService) recordHistory(ctx context.Context, actor domain.Identity, action domain.TicketAction, from domain.TicketStatus, ticket domain.Ticket) *Warning {
	if s.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:   ticket.ID,
		ActorID:    actor.ID,
		Action:     action,
		FromStatus: from,
		ToStatus:   ticket.Status,
	}
	if action == domain.ActionAssign {
		entry.AssignedTo = ticket.AssignedTo
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("history write failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		s.metrics.RecordSoftFailure(StageHistory)
		return &Warning{Stage: StageHistory, Message: "audit entry could not be recorded"}
	}
	return nil
}

func (s *TicketService) publish(ctx context.Context, op events.Op, ticket domain.Ticket) *Warning {
	if s.feed == nil {
		return nil
	}
	change, err := events.NewTicketChange(op, ticket)
	if err == nil {
		err = s.feed.Publish(ctx, change)
	}
	if err != nil {
		s.logger.Warn("change publish failed", zap.String("ticket_id", ticket.ID), zap.String("op", string(op)), zap.Error(err))
		s.metrics.RecordSoftFailure(StageRealtime)
		return &Warning{Stage: StageRealtime, Message: "live update could not be broadcast"}
	}
	return nil
}

// EnsureProfile creates the caller's profile mirror row if it is missing.
func (s *TicketService) EnsureProfile(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	user := &domain.User{ID: identity.ID, Email: identity.Email, FullName: identity.FullName}
	if err := s.users.EnsureProfile(ctx, user); err != nil {
		s.metrics.RecordSoftFailure(StageProfile)
		return nil, err
	}
	return user, nil
}

// ListOwn returns the caller's tickets, newest first, narrowed by filter.
func (s *TicketService) ListOwn(ctx context.Context, identity domain.Identity, filter domain.TicketFilter) ([]domain.TicketView, error) {
	tickets, err := s.tickets.ListByOwner(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	owner := &domain.OwnerSummary{Email: identity.Email, FullName: identity.FullName}
	views := make([]domain.TicketView, 0, len(tickets))
	for _, t := range tickets {
		views = append(views, domain.TicketView{Ticket: t, Owner: owner})
	}
	filter.MatchOwner = false
	return filter.Apply(views), nil
}

// ListAll returns every ticket with its owner, newest first. The text clause
// also matches owner email and name.
func (s *TicketService) ListAll(ctx context.Context, filter domain.TicketFilter) ([]domain.TicketView, error) {
	views, err := s.tickets.ListWithOwners(ctx)
	if err != nil {
		return nil, err
	}
	filter.MatchOwner = true
	return filter.Apply(views), nil
}

// Attachment is an attachment row with its public URL.
type Attachment struct {
	domain.Attachment
	URL string `json:"url"`
}

// Attachments lists a ticket's attachments for its owner or an admin.
func (s *TicketService) Attachments(ctx context.Context, actor domain.Identity, ticketID string) ([]Attachment, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, err
	}
	if ticket.UserID != actor.ID && !actor.IsAdmin() {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	rows, err := s.attachments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	out := make([]Attachment, 0, len(rows))
	for _, row := range rows {
		a := Attachment{Attachment: row}
		if s.store != nil {
			a.URL = s.store.PublicURL(row.FilePath)
		}
		out = append(out, a)
	}
	return out, nil
}

// History returns the lifecycle audit trail of a ticket.
func (s *TicketService) History(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, err
	}
	return s.history.ListByTicket(ctx, ticketID)
}
