package functions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

// Local runs the functions in-process. The HTTP function endpoints are
// served by the same implementation.
type Local struct {
	mailer      Mailer
	provisioner Provisioner
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewLocal wires the function implementations.
func NewLocal(mailer Mailer, provisioner Provisioner, logger *zap.Logger) *Local {
	return &Local{
		mailer:      mailer,
		provisioner: provisioner,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}
}

func (l *Local) SendNotification(ctx context.Context, msg domain.NotificationMessage) (NotifyResponse, error) {
	fail := func(message string) (NotifyResponse, error) {
		return NotifyResponse{Success: false, Error: message}, &Error{Function: "send-notification-email", Message: message}
	}
	if err := l.validate.StructCtx(ctx, msg); err != nil {
		return fail(describeValidation(err))
	}
	html, err := RenderHTML(msg)
	if err != nil {
		return fail("Failed to send email notification")
	}
	if err := l.mailer.Deliver(ctx, msg, html); err != nil {
		l.logger.Error("email delivery failed",
			zap.String("to", msg.To),
			zap.String("ticket_id", msg.TicketID),
			zap.Error(err),
		)
		return fail("Failed to send email notification")
	}
	return NotifyResponse{Success: true, Message: fmt.Sprintf("Email notification sent to %s", msg.To)}, nil
}

func (l *Local) CreateUser(ctx context.Context, req CreateUserRequest) (CreateUserResponse, error) {
	fail := func(message string) (CreateUserResponse, error) {
		return CreateUserResponse{Success: false, Error: message}, &Error{Function: "create-user", Message: message}
	}
	if err := l.validate.StructCtx(ctx, req); err != nil {
		return fail(describeValidation(err))
	}
	user, err := l.provisioner.Provision(ctx, req)
	if err != nil {
		l.logger.Warn("create user failed", zap.String("email", req.Email), zap.Error(err))
		if errors.Is(err, domain.ErrEmailTaken) {
			return fail(domain.ErrEmailTaken.Error())
		}
		return fail(providerMessage(err))
	}
	return CreateUserResponse{Success: true, Data: &user}, nil
}

// providerMessage keeps only the message text of a provider error.
func providerMessage(err error) string {
	var fnErr *Error
	if errors.As(err, &fnErr) {
		return fnErr.Message
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if msg == "" {
		return "Failed to create user"
	}
	return msg
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			parts = append(parts, fmt.Sprintf("%s must be a valid email address", fe.Field()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(parts, "; ")
}
