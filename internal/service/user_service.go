package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/functions"
	"github.com/spec-kit/it-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/it-helpdesk/pkg/util"
)

// UserService manages profile mirrors and admin user provisioning.
type UserService struct {
	users   repository.UserRepository
	creator functions.UserCreator
	logger  *zap.Logger
}

// UserDependencies bundles collaborators for the user service.
type UserDependencies struct {
	UserRepo repository.UserRepository
	Creator  functions.UserCreator
	Logger   *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(deps UserDependencies) *UserService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &UserService{users: deps.UserRepo, creator: deps.Creator, logger: deps.Logger}
}

func requireAdmin(actor domain.Identity) error {
	if !actor.IsAdmin() {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// ListUsers returns all profile mirror rows, newest first.
func (s *UserService) ListUsers(ctx context.Context, actor domain.Identity) ([]domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

// CreateUser passes the request to the provisioning function. The mirror row
// is written by a trigger and may not be visible to an immediate ListUsers.
// Failures carry the provider's message unchanged.
func (s *UserService) CreateUser(ctx context.Context, actor domain.Identity, req functions.CreateUserRequest) (*functions.ProvisionedUser, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)

	resp, err := s.creator.CreateUser(ctx, req)
	if err == nil && (!resp.Success || resp.Data == nil) {
		err = &functions.Error{Function: "create-user", Message: orMessage(resp.Error, "Failed to create user")}
	}
	if err != nil {
		s.logger.Warn("user provisioning failed", zap.String("email", req.Email), zap.Error(err))
		var fnErr *functions.Error
		if !errors.As(err, &fnErr) {
			return nil, apperrors.NewUpstreamError("Failed to create user", err)
		}
		if fnErr.Message == domain.ErrEmailTaken.Error() {
			return nil, apperrors.NewConflict(fnErr.Message, nil)
		}
		if fnErr.Status < 500 {
			return nil, apperrors.NewValidationError(fnErr.Message, nil)
		}
		return nil, apperrors.NewUpstreamError(fnErr.Message, err)
	}

	s.logger.Info("user provisioned", zap.String("user_id", resp.Data.ID))
	return resp.Data, nil
}

func orMessage(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
