package functions

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

// Mailer delivers a rendered notification.
type Mailer interface {
	Deliver(ctx context.Context, msg domain.NotificationMessage, html string) error
}

var emailTemplates = template.Must(template.New("emails").Parse(`
{{define "admin-notification"}}<h2>New Support Ticket Submitted</h2>
<p>A new support ticket has been submitted and requires your attention.</p>
<p><strong>Ticket ID:</strong> {{.TicketID}}</p>
<p><strong>Title:</strong> {{.TicketTitle}}</p>
<p><strong>Submitted by:</strong> {{.UserName}}{{if .UserEmail}} ({{.UserEmail}}){{end}}</p>
<p>Please log in to the admin dashboard to review and assign this ticket.</p>{{end}}
{{define "user-confirmation"}}<h2>Support Ticket Received</h2>
<p>Dear {{.UserName}},</p>
<p>Thank you for submitting your support ticket. Our IT team has received your request and will start working on it shortly.</p>
<p><strong>Ticket ID:</strong> {{.TicketID}}</p>
<p><strong>Title:</strong> {{.TicketTitle}}</p>
<p>We'll notify you when there are updates to your ticket.</p>{{end}}
{{define "status-update"}}<h2>Support Ticket Updated</h2>
<p>Dear {{.UserName}},</p>
<p>The status of your support ticket <strong>{{.TicketTitle}}</strong> is now <strong>{{.Status}}</strong>.</p>
<p><strong>Ticket ID:</strong> {{.TicketID}}</p>{{end}}
`))

// RenderHTML renders the body for msg's kind.
func RenderHTML(msg domain.NotificationMessage) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, string(msg.Type), msg); err != nil {
		return "", fmt.Errorf("render %s email: %w", msg.Type, err)
	}
	return buf.String(), nil
}

// LogMailer only logs the message.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a log-only mailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Deliver(_ context.Context, msg domain.NotificationMessage, html string) error {
	m.logger.Info("email notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("ticket_id", msg.TicketID),
		zap.String("type", string(msg.Type)),
		zap.Int("body_bytes", len(html)),
	)
	return nil
}

// SendGridMailer delivers through the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendGridMailer creates a mailer sending from fromAddress.
func NewSendGridMailer(apiKey, fromAddress string) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("IT Support", fromAddress),
	}
}

func (m *SendGridMailer) Deliver(ctx context.Context, msg domain.NotificationMessage, html string) error {
	to := mail.NewEmail(msg.UserName, msg.To)
	plain := fmt.Sprintf("%s\n\nTicket %s: %s", msg.Subject, msg.TicketID, msg.TicketTitle)
	email := mail.NewSingleEmail(m.from, msg.Subject, to, plain, html)

	resp, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// CodeMailer delivers one-time password reset codes.
type CodeMailer interface {
	SendResetCode(ctx context.Context, to, code string) error
}

const resetCodeSubject = "Your IT Support password reset code"

func (m *LogMailer) SendResetCode(_ context.Context, to, code string) error {
	m.logger.Info("password reset code issued", zap.String("to", to))
	m.logger.Debug("password reset code", zap.String("to", to), zap.String("code", code))
	return nil
}

func (m *SendGridMailer) SendResetCode(ctx context.Context, to, code string) error {
	plain := fmt.Sprintf("Your verification code is %s. It expires shortly; ignore this email if you did not ask to reset your password.", code)
	html := fmt.Sprintf("<p>Your verification code is <strong>%s</strong>.</p><p>If you did not ask to reset your password, ignore this email.</p>", template.HTMLEscapeString(code))
	email := mail.NewSingleEmail(m.from, resetCodeSubject, mail.NewEmail("", to), plain, html)

	resp, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
