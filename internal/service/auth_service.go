package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/auth"
	"github.com/spec-kit/it-helpdesk/internal/config"
	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/functions"
	"github.com/spec-kit/it-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/it-helpdesk/pkg/util"
)

const (
	msgInvalidCredentials = "Invalid login credentials"
	msgInvalidCode        = "invalid or expired verification code"
)

// AuthService coordinates sign-up, sign-in and password recovery.
type AuthService struct {
	accounts   repository.AccountRepository
	resets     repository.PasswordResetRepository
	codes      functions.CodeMailer
	tokenMgr   *auth.TokenManager
	logger     *zap.Logger
	bcryptCost int
	resetTTL   time.Duration
	now        func() time.Time
	newCode    func() (string, error)
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	AccountRepo       repository.AccountRepository
	PasswordResetRepo repository.PasswordResetRepository
	CodeMailer        functions.CodeMailer
	Logger            *zap.Logger
	Clock             func() time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AuthService{
		accounts:   deps.AccountRepo,
		resets:     deps.PasswordResetRepo,
		codes:      deps.CodeMailer,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		logger:     deps.Logger,
		bcryptCost: cfg.Auth.BcryptCost,
		resetTTL:   cfg.Auth.ResetCodeTTL(),
		now:        deps.Clock,
		newCode:    auth.GenerateOTP,
	}
}

// SignUpInput is the registration form.
type SignUpInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
	RememberMe      bool
}

// SignUp creates an end-user account and signs it in. The profile mirror is
// written by the account trigger.
func (s *AuthService) SignUp(ctx context.Context, input SignUpInput) (*domain.Session, error) {
	email := normalizeEmail(input.Email)
	fullName := strings.TrimSpace(input.FullName)
	if email == "" || fullName == "" || input.Password == "" {
		return nil, apperrors.NewValidationError("please fill in all required fields", nil)
	}
	if err := passwordRules(input.Password, input.ConfirmPassword); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	account := &domain.Account{Email: email, PasswordHash: hash, FullName: fullName, Role: domain.RoleUser}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, apperrors.NewConflict(err.Error(), nil)
		}
		return nil, err
	}
	s.logger.Info("account registered", zap.String("account_id", account.ID))
	return s.issue(account, domain.PersistenceFor(input.RememberMe))
}

// SignIn checks credentials and issues a token. rememberMe=false yields a
// session-only token that needs the session marker.
func (s *AuthService) SignIn(ctx context.Context, email, password string, rememberMe bool) (*domain.Session, error) {
	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized(msgInvalidCredentials)
		}
		return nil, err
	}
	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized(msgInvalidCredentials)
	}
	return s.issue(account, domain.PersistenceFor(rememberMe))
}

// CurrentSession reloads the account behind a principal.
func (s *AuthService) CurrentSession(ctx context.Context, principal *auth.Principal) (*domain.Session, error) {
	account, err := s.accounts.GetByID(ctx, principal.Identity.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("account not found")
		}
		return nil, err
	}
	return &domain.Session{
		ExpiresAt:   time.Unix(principal.ExpiresAt, 0).UTC(),
		Persistence: principal.Persistence,
		Identity:    identityOf(account),
	}, nil
}

func (s *AuthService) issue(account *domain.Account, persistence domain.Persistence) (*domain.Session, error) {
	identity := identityOf(account)
	token, exp, err := s.tokenMgr.GenerateToken(identity, persistence)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &domain.Session{Token: token, ExpiresAt: exp, Persistence: persistence, Identity: identity}, nil
}

// ForgotPassword emails a six digit reset code when the account exists.
// Unknown addresses are not reported to the caller.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperrors.NewValidationError("email required", nil)
	}
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Info("password reset for unknown email")
			return nil
		}
		return err
	}

	code, err := s.newCode()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	record := &repository.PasswordResetCode{
		AccountID: account.ID,
		Code:      code,
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, record); err != nil {
		return err
	}
	if s.codes == nil {
		return nil
	}
	if err := s.codes.SendResetCode(ctx, account.Email, code); err != nil {
		s.logger.Warn("reset code delivery failed", zap.String("account_id", account.ID), zap.Error(err))
		return apperrors.NewUpstreamError("Failed to send verification code", err)
	}
	return nil
}

// VerifyResetCode checks a code without consuming it.
func (s *AuthService) VerifyResetCode(ctx context.Context, email, code string) error {
	_, _, err := s.lookupCode(ctx, email, code)
	return err
}

// ResetPasswordInput completes password recovery.
type ResetPasswordInput struct {
	Email           string
	Code            string
	Password        string
	ConfirmPassword string
}

// ResetPassword redeems a code and sets the new password. Each code works once.
func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	if err := passwordRules(input.Password, input.ConfirmPassword); err != nil {
		return err
	}
	account, record, err := s.lookupCode(ctx, input.Email, input.Code)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		return err
	}
	// The password is already changed; ErrNoRows means a concurrent reset won.
	if err := s.resets.MarkUsed(ctx, record.ID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Error("reset code not retired", zap.String("account_id", account.ID), zap.Error(err))
	}
	s.logger.Info("password reset", zap.String("account_id", account.ID))
	return nil
}

func (s *AuthService) lookupCode(ctx context.Context, email, code string) (*domain.Account, *repository.PasswordResetCode, error) {
	normalized, err := auth.NormalizeOTP(code)
	if err != nil {
		return nil, nil, apperrors.NewValidationError(err.Error(), nil)
	}
	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewValidationError(msgInvalidCode, nil)
		}
		return nil, nil, err
	}
	record, err := s.resets.GetLatest(ctx, account.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewValidationError(msgInvalidCode, nil)
		}
		return nil, nil, err
	}
	if !record.Usable(s.now()) {
		return nil, nil, apperrors.NewValidationError(msgInvalidCode, nil)
	}
	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(normalized)) != 1 {
		s.countFailure(ctx, record)
		return nil, nil, apperrors.NewValidationError(msgInvalidCode, nil)
	}
	return account, record, nil
}

// countFailure charges a wrong guess to the live code. Once the code runs out
// of attempts only a fresh one from ForgotPassword works.
func (s *AuthService) countFailure(ctx context.Context, record *repository.PasswordResetCode) {
	attempts, err := s.resets.RecordFailure(ctx, record.ID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("reset attempt not recorded", zap.String("account_id", record.AccountID), zap.Error(err))
		}
		return
	}
	if attempts >= repository.MaxResetAttempts {
		s.logger.Warn("reset code locked", zap.String("account_id", record.AccountID), zap.Int("attempts", attempts))
	}
}

// ChangePassword verifies the current password before replacing it.
func (s *AuthService) ChangePassword(ctx context.Context, identity domain.Identity, currentPassword, newPassword, confirmPassword string) error {
	if err := passwordRules(newPassword, confirmPassword); err != nil {
		return err
	}
	account, err := s.accounts.GetByID(ctx, identity.ID)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(account.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("current password is incorrect")
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return s.accounts.UpdatePassword(ctx, account.ID, hash)
}

// BootstrapAdmin makes sure the configured administrator exists and holds the
// admin role. An existing account keeps its password.
func (s *AuthService) BootstrapAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	account, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if account.Role == domain.RoleAdmin {
			return nil
		}
		if err := s.accounts.SetRole(ctx, account.ID, domain.RoleAdmin); err != nil {
			return err
		}
		s.logger.Info("promoted account to admin", zap.String("account_id", account.ID))
		return nil
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	admin := &domain.Account{Email: email, PasswordHash: hash, FullName: "IT Support", Role: domain.RoleAdmin}
	if err := s.accounts.Create(ctx, admin); err != nil {
		return err
	}
	s.logger.Info("admin account created", zap.String("account_id", admin.ID))
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func passwordRules(password, confirmation string) error {
	switch err := auth.CheckNewPassword(password, confirmation); {
	case errors.Is(err, auth.ErrPasswordMismatch):
		return apperrors.NewValidationError("Passwords do not match", nil)
	case errors.Is(err, auth.ErrWeakPassword):
		return apperrors.NewValidationError("Password is too weak", map[string]any{
			"strength": auth.PasswordStrength(password),
			"label":    auth.StrengthLabel(auth.PasswordStrength(password)),
			"minimum":  auth.MinPasswordStrength,
		})
	default:
		return err
	}
}

func identityOf(account *domain.Account) domain.Identity {
	return domain.Identity{ID: account.ID, Email: account.Email, FullName: account.FullName, Role: account.Role}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
