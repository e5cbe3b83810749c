// Package functions implements the two callable functions of the helpdesk
// (send-notification-email and create-user) and the clients that invoke them.
package functions

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

const (
	NotificationPath = "/functions/v1/send-notification-email"
	CreateUserPath   = "/functions/v1/create-user"
)

// NotifyResponse is the send-notification-email response body.
type NotifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateUserRequest is the create-user request body.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"fullName" validate:"required"`
}

// ProvisionedUser is the account returned by the identity provider.
type ProvisionedUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUserResponse is the create-user response body.
type CreateUserResponse struct {
	Success bool             `json:"success"`
	Data    *ProvisionedUser `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Notifier dispatches a notification message. No retry, no delivery receipt.
type Notifier interface {
	SendNotification(ctx context.Context, msg domain.NotificationMessage) (NotifyResponse, error)
}

// UserCreator provisions an identity provider account.
type UserCreator interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (CreateUserResponse, error)
}

// Invoker calls both functions, in-process or over HTTP.
type Invoker interface {
	Notifier
	UserCreator
}

// Error is a failed function call. Message is safe to show to users.
type Error struct {
	Function string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s failed (%d): %s", e.Function, e.Status, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Function, e.Message)
}
