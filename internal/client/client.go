// Package client is the HTTP client the dashboards and the CLI use to reach
// the helpdesk API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/functions"
)

// SessionMarkerCookie mirrors the server's browser-session marker cookie.
const SessionMarkerCookie = "session_active"

// Credentials supplies the bearer token and whether the session marker is
// present. It is consulted on every request.
type Credentials interface {
	Credentials() (token string, marker bool)
}

// APIError is a non-2xx response in the API error envelope.
type APIError struct {
	Status  int            `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// Client talks to the helpdesk API.
type Client struct {
	http   *resty.Client
	stream *resty.Client
	logger *zap.Logger
	creds  Credentials
}

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

// New builds a client for baseURL.
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Client{logger: opts.Logger}
	c.http = c.newResty(baseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	// Event streams stay open, so they get no overall timeout.
	c.stream = c.newResty(baseURL)
	return c
}

func (c *Client) newResty(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			c.authorize(r)
			return nil
		})
}

// UseCredentials sets the credential source. Calls made before this are anonymous.
func (c *Client) UseCredentials(creds Credentials) {
	c.creds = creds
}

func (c *Client) authorize(r *resty.Request) {
	if c.creds == nil {
		return
	}
	token, marker := c.creds.Credentials()
	if token != "" {
		r.SetAuthToken(token)
	}
	if marker {
		r.SetCookie(&http.Cookie{Name: SessionMarkerCookie, Value: "1"})
	}
}

func decodeError(resp *resty.Response) error {
	var body errorEnvelope
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.Error == nil {
		return &APIError{Status: resp.StatusCode(), Code: "HTTP_ERROR", Message: strings.TrimSpace(resp.Status())}
	}
	body.Error.Status = resp.StatusCode()
	return body.Error
}

func do[T any](ctx context.Context, req *resty.Request, method, path string) (T, error) {
	var out envelope[T]
	resp, err := req.SetContext(ctx).SetResult(&out).Execute(method, path)
	if err != nil {
		return out.Data, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return out.Data, decodeError(resp)
	}
	return out.Data, nil
}

// SignUpRequest is the registration form.
type SignUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FullName        string `json:"full_name"`
	RememberMe      bool   `json:"remember_me"`
}

func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*domain.Session, error) {
	return do[*domain.Session](ctx, c.http.R().SetBody(req), http.MethodPost, "/auth/signup")
}

// SignIn satisfies session.Authenticator.
func (c *Client) SignIn(ctx context.Context, email, password string, rememberMe bool) (*domain.Session, error) {
	body := map[string]any{"email": email, "password": password, "remember_me": rememberMe}
	return do[*domain.Session](ctx, c.http.R().SetBody(body), http.MethodPost, "/auth/signin")
}

func (c *Client) SignOut(ctx context.Context) error {
	_, err := do[map[string]any](ctx, c.http.R(), http.MethodPost, "/auth/signout")
	return err
}

// Session returns the server's view of the current session.
func (c *Client) Session(ctx context.Context) (*domain.Session, error) {
	return do[*domain.Session](ctx, c.http.R(), http.MethodGet, "/auth/session")
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := do[map[string]any](ctx, c.http.R().SetBody(map[string]string{"email": email}), http.MethodPost, "/auth/password/forgot")
	return err
}

func (c *Client) ResetPassword(ctx context.Context, email, code, password, confirm string) error {
	body := map[string]string{"email": email, "code": code, "password": password, "confirm_password": confirm}
	_, err := do[map[string]any](ctx, c.http.R().SetBody(body), http.MethodPost, "/auth/password/reset")
	return err
}

// EnsureProfile creates the caller's profile mirror row if missing.
func (c *Client) EnsureProfile(ctx context.Context) (*domain.User, error) {
	return do[*domain.User](ctx, c.http.R(), http.MethodPost, "/tickets/profile")
}

// ListOwnTickets returns the caller's tickets, newest first, unfiltered.
func (c *Client) ListOwnTickets(ctx context.Context) ([]domain.Ticket, error) {
	views, err := do[[]domain.TicketView](ctx, c.http.R(), http.MethodGet, "/tickets")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Ticket, 0, len(views))
	for _, v := range views {
		out = append(out, v.Ticket)
	}
	return out, nil
}

// Attachment is a stored attachment with its public URL.
type Attachment struct {
	domain.Attachment
	URL string `json:"url"`
}

func (c *Client) Attachments(ctx context.Context, ticketID string) ([]Attachment, error) {
	return do[[]Attachment](ctx, c.http.R().SetPathParam("id", ticketID), http.MethodGet, "/tickets/{id}/attachments")
}

// Warning is a soft failure reported next to a successful result.
type Warning struct {
	Stage   string `json:"stage"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message"`
}

// Submission is a new ticket. Files are read when the request is sent.
type Submission struct {
	Title       string
	Description string
	Category    string
	Priority    domain.TicketPriority
	Files       []File
}

// File is one attachment of a submission.
type File struct {
	Name   string
	Reader io.Reader
}

// SubmitResult is the created ticket plus soft failures.
type SubmitResult struct {
	Ticket      domain.Ticket       `json:"ticket"`
	Attachments []domain.Attachment `json:"attachments"`
	Warnings    []Warning           `json:"warnings"`
}

func (c *Client) SubmitTicket(ctx context.Context, s Submission) (*SubmitResult, error) {
	req := c.http.R().SetMultipartFormData(map[string]string{
		"title":       s.Title,
		"description": s.Description,
		"category":    s.Category,
		"priority":    string(s.Priority),
	})
	for _, f := range s.Files {
		req.SetFileReader("attachments", f.Name, f.Reader)
	}
	return do[*SubmitResult](ctx, req, http.MethodPost, "/tickets")
}

// ListAllTickets returns every ticket with its owner, newest first, unfiltered.
func (c *Client) ListAllTickets(ctx context.Context) ([]domain.TicketView, error) {
	return do[[]domain.TicketView](ctx, c.http.R(), http.MethodGet, "/admin/tickets")
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	return do[[]domain.User](ctx, c.http.R(), http.MethodGet, "/admin/users")
}

// TransitionResult is the updated ticket plus soft failures.
type TransitionResult struct {
	Ticket   domain.TicketView `json:"ticket"`
	Warnings []Warning         `json:"warnings"`
}

// ApplyAction runs a lifecycle action. assignee is only sent for assign.
func (c *Client) ApplyAction(ctx context.Context, ticketID string, action domain.TicketAction, assignee string) (*TransitionResult, error) {
	req := c.http.R().SetPathParams(map[string]string{"id": ticketID, "action": string(action)})
	if action == domain.ActionAssign {
		req.SetBody(map[string]string{"assignee_id": assignee})
	}
	return do[*TransitionResult](ctx, req, http.MethodPost, "/admin/tickets/{id}/{action}")
}

func (c *Client) History(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	return do[[]domain.TicketHistory](ctx, c.http.R().SetPathParam("id", ticketID), http.MethodGet, "/admin/tickets/{id}/history")
}

// CreateUser provisions an account. Provider messages come back verbatim in
// the returned *APIError.
func (c *Client) CreateUser(ctx context.Context, req functions.CreateUserRequest) (*functions.ProvisionedUser, error) {
	return do[*functions.ProvisionedUser](ctx, c.http.R().SetBody(req), http.MethodPost, "/admin/users")
}

// ExportCSV streams the server-side export of the filtered ticket list.
func (c *Client) ExportCSV(ctx context.Context, filter domain.TicketFilter, w io.Writer) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(filterParams(filter)).
		SetHeader("Accept", "text/csv").
		Get("/admin/tickets/export.csv")
	if err != nil {
		return fmt.Errorf("export tickets: %w", err)
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	_, err = w.Write(resp.Body())
	return err
}

func filterParams(f domain.TicketFilter) map[string]string {
	params := map[string]string{}
	for k, v := range map[string]string{"q": f.Query, "status": f.Status, "priority": f.Priority, "category": f.Category} {
		if v != "" {
			params[k] = v
		}
	}
	return params
}
