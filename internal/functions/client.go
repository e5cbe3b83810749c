package functions

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

// Client invokes the functions over HTTP.
type Client struct {
	http *resty.Client
}

// NewClient targets a functions host. apiKey is sent as a bearer token when set.
func NewClient(baseURL, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Client{http: c}
}

func (c *Client) SendNotification(ctx context.Context, msg domain.NotificationMessage) (NotifyResponse, error) {
	var out NotifyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(msg).
		SetResult(&out).
		SetError(&out).
		Post(NotificationPath)
	if err != nil {
		return NotifyResponse{}, fmt.Errorf("call send-notification-email: %w", err)
	}
	if resp.IsError() || !out.Success {
		return out, &Error{Function: "send-notification-email", Status: resp.StatusCode(), Message: orDefault(out.Error, "Failed to send email notification")}
	}
	return out, nil
}

func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (CreateUserResponse, error) {
	var out CreateUserResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post(CreateUserPath)
	if err != nil {
		return CreateUserResponse{}, fmt.Errorf("call create-user: %w", err)
	}
	if resp.IsError() || !out.Success {
		return out, &Error{Function: "create-user", Status: resp.StatusCode(), Message: orDefault(out.Error, "Failed to create user")}
	}
	return out, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
