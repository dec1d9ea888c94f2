package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tyemirov/bookly/internal/mailer"
	"go.uber.org/zap"
)

var (
	errMissingActionSigner = errors.New("auth.accounts.missing_action_signer")
	errMissingMailer       = errors.New("auth.accounts.missing_mail_dispatcher")
)

// SignupRequest carries the fields accepted at signup.
type SignupRequest struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
	Password  string
}

// AccountDependencies are the collaborators of an AccountService.
type AccountDependencies struct {
	Users   UserStore
	Actions *ActionTokenSigner
	Mail    mailer.Dispatcher
	Logger  *zap.Logger
	Metrics MetricsRecorder
}

// AccountService handles signup, email verification, and password reset.
type AccountService struct {
	publicBaseURL string
	users         UserStore
	actions       *ActionTokenSigner
	mail          mailer.Dispatcher
	logger        *zap.Logger
	metrics       MetricsRecorder
}

// NewAccountService validates dependencies and applies defaults.
func NewAccountService(configuration ServerConfig, dependencies AccountDependencies) (*AccountService, error) {
	switch {
	case dependencies.Users == nil:
		return nil, errMissingUserStore
	case dependencies.Actions == nil:
		return nil, errMissingActionSigner
	case dependencies.Mail == nil:
		return nil, errMissingMailer
	}
	service := &AccountService{
		publicBaseURL: strings.TrimRight(configuration.PublicBaseURL, "/"),
		users:         dependencies.Users,
		actions:       dependencies.Actions,
		mail:          dependencies.Mail,
		logger:        dependencies.Logger,
		metrics:       dependencies.Metrics,
	}
	if service.logger == nil {
		service.logger = zap.NewNop()
	}
	if service.metrics == nil {
		service.metrics = noopMetrics{}
	}
	return service, nil
}

// Signup creates an unverified user and queues the verification email.
func (service *AccountService) Signup(ctx context.Context, request SignupRequest) (UserRecord, error) {
	email := normalizeEmail(request.Email)
	exists, existsErr := service.users.UserExists(ctx, email)
	if existsErr != nil {
		return UserRecord{}, fmt.Errorf("auth.signup.exists: %w", existsErr)
	}
	if exists {
		return UserRecord{}, ErrUserAlreadyExists
	}
	passwordHash, hashErr := HashPassword(request.Password)
	if hashErr != nil {
		return UserRecord{}, hashErr
	}
	user, createErr := service.users.CreateUser(ctx, NewUser{
		Username:     strings.TrimSpace(request.Username),
		Email:        email,
		FirstName:    strings.TrimSpace(request.FirstName),
		LastName:     strings.TrimSpace(request.LastName),
		PasswordHash: passwordHash,
	})
	if createErr != nil {
		if errors.Is(createErr, ErrUserAlreadyExists) {
			return UserRecord{}, ErrUserAlreadyExists
		}
		return UserRecord{}, fmt.Errorf("auth.signup.create: %w", createErr)
	}
	service.metrics.Increment(metricAuthSignupSuccess)
	service.sendVerification(ctx, email)
	return user, nil
}

// ResendVerification queues a fresh verification email.
func (service *AccountService) ResendVerification(ctx context.Context, email string) {
	service.sendVerification(ctx, normalizeEmail(email))
}

// VerifyEmail marks the user named by token as verified.
func (service *AccountService) VerifyEmail(ctx context.Context, token string) error {
	payload, parseErr := service.actions.Parse(ActionEmailVerification, token)
	if parseErr != nil {
		return parseErr
	}
	if err := service.users.MarkVerified(ctx, payload.Email); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("auth.verify.update: %w", err)
	}
	return nil
}

// RequestPasswordReset hashes newPassword into a signed link emailed to email.
func (service *AccountService) RequestPasswordReset(ctx context.Context, email string, newPassword string, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	passwordHash, hashErr := HashPassword(newPassword)
	if hashErr != nil {
		return hashErr
	}
	normalized := normalizeEmail(email)
	token, signErr := service.actions.Sign(ActionPasswordReset, ActionPayload{Email: normalized, PasswordHash: passwordHash})
	if signErr != nil {
		return signErr
	}
	message, renderErr := mailer.PasswordResetMessage(normalized, service.link("/auth/password-reset-confirm/", token))
	if renderErr != nil {
		return renderErr
	}
	service.dispatch(ctx, message)
	return nil
}

// ConfirmPasswordReset applies the password hash carried by token.
func (service *AccountService) ConfirmPasswordReset(ctx context.Context, token string) error {
	payload, parseErr := service.actions.Parse(ActionPasswordReset, token)
	if parseErr != nil {
		return parseErr
	}
	if payload.PasswordHash == "" {
		return fmt.Errorf("auth.password_reset.payload: %w", ErrActionTokenInvalid)
	}
	if err := service.users.UpdatePasswordHash(ctx, payload.Email, payload.PasswordHash); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("auth.password_reset.update: %w", err)
	}
	return nil
}

func (service *AccountService) sendVerification(ctx context.Context, email string) {
	token, signErr := service.actions.Sign(ActionEmailVerification, ActionPayload{Email: email})
	if signErr != nil {
		service.logger.Error("verification token signing failed",
			zap.String("code", "auth.verify.sign_failed"),
			zap.Error(signErr))
		return
	}
	message, renderErr := mailer.VerificationMessage(email, service.link("/auth/verify/", token))
	if renderErr != nil {
		service.logger.Error("verification email render failed",
			zap.String("code", "auth.verify.render_failed"),
			zap.Error(renderErr))
		return
	}
	service.dispatch(ctx, message)
}

// dispatch is fire-and-forget: a broker outage never fails the request.
func (service *AccountService) dispatch(ctx context.Context, message mailer.Message) {
	if err := service.mail.Dispatch(ctx, message); err != nil {
		service.logger.Warn("email dispatch failed",
			zap.String("code", "auth.mail.dispatch_failed"),
			zap.String("subject", message.Subject),
			zap.Error(err))
	}
}

func (service *AccountService) link(path string, token string) string {
	return service.publicBaseURL + path + token
}
