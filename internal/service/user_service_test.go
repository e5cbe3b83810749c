package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/functions"
)

func TestUserService_ListUsersRequiresAdmin(t *testing.T) {
	svc := NewUserService(UserDependencies{UserRepo: newFakeUserRepo(domain.User{ID: "u-1"}), Creator: &stubCreator{}})

	_, err := svc.ListUsers(context.Background(), submitter)
	assert.Equal(t, "FORBIDDEN", errCode(t, err))

	users, err := svc.ListUsers(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestUserService_CreateUser(t *testing.T) {
	creator := &stubCreator{resp: functions.CreateUserResponse{Success: true, Data: &functions.ProvisionedUser{ID: "new-1", Email: "new@example.com"}}}
	svc := NewUserService(UserDependencies{UserRepo: newFakeUserRepo(), Creator: creator})

	user, err := svc.CreateUser(context.Background(), admin, functions.CreateUserRequest{Email: " new@example.com ", Password: "pw", FullName: " New "})
	require.NoError(t, err)
	assert.Equal(t, "new-1", user.ID)
	assert.Equal(t, "new@example.com", creator.got[0].Email)
	assert.Equal(t, "New", creator.got[0].FullName)

	_, err = svc.CreateUser(context.Background(), submitter, functions.CreateUserRequest{})
	assert.Equal(t, "FORBIDDEN", errCode(t, err))
	assert.Len(t, creator.got, 1, "non-admins never reach the function")
}

func TestUserService_CreateUserSurfacesProviderMessage(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    string
		message string
	}{
		{"weak password", &functions.Error{Function: "create-user", Status: 400, Message: "Password should be at least 6 characters"}, "VALIDATION_FAILED", "Password should be at least 6 characters"},
		{"email taken", &functions.Error{Function: "create-user", Status: 400, Message: domain.ErrEmailTaken.Error()}, "CONFLICT", domain.ErrEmailTaken.Error()},
		{"provider down", &functions.Error{Function: "create-user", Status: 503, Message: "service unavailable"}, "UPSTREAM_FAILED", "service unavailable"},
		{"transport", errors.New("dial tcp: refused"), "UPSTREAM_FAILED", "Failed to create user"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewUserService(UserDependencies{UserRepo: newFakeUserRepo(), Creator: &stubCreator{err: tc.err}})
			_, err := svc.CreateUser(context.Background(), admin, functions.CreateUserRequest{Email: "x@example.com", Password: "p", FullName: "X"})
			assert.Equal(t, tc.code, errCode(t, err))
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestStatusUpdateMessage(t *testing.T) {
	view := domain.TicketView{
		Ticket: domain.Ticket{ID: "t-1", Title: "VPN issue", Status: domain.TicketStatusResolved},
		Owner:  &domain.OwnerSummary{Email: "amal@example.com"},
	}
	msg := StatusUpdate(view, "amal@example.com")
	assert.Equal(t, "Your IT Support Ticket Status Updated: VPN issue", msg.Subject)
	assert.Equal(t, "amal@example.com", msg.UserName, "falls back to the email when the name is unknown")
	assert.Equal(t, domain.TicketStatusResolved, msg.Status)
}
