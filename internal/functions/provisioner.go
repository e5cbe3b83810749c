package functions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/spec-kit/it-helpdesk/internal/auth"
	"github.com/spec-kit/it-helpdesk/internal/domain"
)

// Provisioner creates identity provider accounts.
type Provisioner interface {
	Provision(ctx context.Context, req CreateUserRequest) (ProvisionedUser, error)
}

// AccountCreator inserts accounts. The profile mirror is written by a
// database trigger, not by the caller.
type AccountCreator interface {
	Create(ctx context.Context, account *domain.Account) error
}

// AccountProvisioner writes accounts to the local accounts table.
type AccountProvisioner struct {
	accounts   AccountCreator
	bcryptCost int
}

// NewAccountProvisioner creates a provisioner over the accounts table.
func NewAccountProvisioner(accounts AccountCreator, bcryptCost int) *AccountProvisioner {
	return &AccountProvisioner{accounts: accounts, bcryptCost: bcryptCost}
}

func (p *AccountProvisioner) Provision(ctx context.Context, req CreateUserRequest) (ProvisionedUser, error) {
	hash, err := auth.HashPassword(req.Password, p.bcryptCost)
	if err != nil {
		return ProvisionedUser{}, fmt.Errorf("hash password: %w", err)
	}
	account := &domain.Account{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         domain.RoleUser,
	}
	if err := p.accounts.Create(ctx, account); err != nil {
		return ProvisionedUser{}, err
	}
	return ProvisionedUser{
		ID:        account.ID,
		Email:     account.Email,
		FullName:  account.FullName,
		CreatedAt: account.CreatedAt,
	}, nil
}

// AdminAPIProvisioner calls an identity provider's admin REST API with a
// service-role key.
type AdminAPIProvisioner struct {
	client *resty.Client
}

// NewAdminAPIProvisioner targets the provider at baseURL.
func NewAdminAPIProvisioner(baseURL, serviceRoleKey string) *AdminAPIProvisioner {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(serviceRoleKey).
		SetHeader("apikey", serviceRoleKey).
		SetHeader("Content-Type", "application/json")
	return &AdminAPIProvisioner{client: client}
}

type adminCreateUserBody struct {
	Email        string            `json:"email"`
	Password     string            `json:"password"`
	EmailConfirm bool              `json:"email_confirm"`
	UserMetadata map[string]string `json:"user_metadata"`
}

type adminUser struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	CreatedAt    time.Time         `json:"created_at"`
	UserMetadata map[string]string `json:"user_metadata"`
}

type adminError struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

func (e adminError) text() string {
	for _, s := range []string{e.Message, e.Msg, e.ErrorDescription} {
		if s != "" {
			return s
		}
	}
	return "Failed to create user"
}

func (p *AdminAPIProvisioner) Provision(ctx context.Context, req CreateUserRequest) (ProvisionedUser, error) {
	var created adminUser
	var failure adminError
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(adminCreateUserBody{
			Email:        req.Email,
			Password:     req.Password,
			EmailConfirm: true,
			UserMetadata: map[string]string{"full_name": req.FullName},
		}).
		SetResult(&created).
		SetError(&failure).
		Post("/auth/v1/admin/users")
	if err != nil {
		return ProvisionedUser{}, fmt.Errorf("admin create user: %w", err)
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusUnprocessableEntity && failure.text() == "Failed to create user" {
			return ProvisionedUser{}, domain.ErrEmailTaken
		}
		return ProvisionedUser{}, errors.New(failure.text())
	}
	return ProvisionedUser{
		ID:        created.ID,
		Email:     created.Email,
		FullName:  created.UserMetadata["full_name"],
		CreatedAt: created.CreatedAt,
	}, nil
}
