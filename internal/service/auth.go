package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/glowskin/internal/auth"
	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/repository"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
)

// PasswordResetMailer delivers the password reset link.
type PasswordResetMailer interface {
	SendPasswordReset(ctx context.Context, user *domain.User, resetURL string) error
}

// AuthService implements registration, login and password management.
type AuthService struct {
	users       repository.UserRepository
	resets      repository.ResetTokenStore
	hasher      *auth.Hasher
	tokens      *auth.JWTManager
	mailer      PasswordResetMailer
	resetTTL    time.Duration
	frontendURL string
	logger      *slog.Logger
	now         func() time.Time
}

// NewAuthService creates a new auth service. Reset links point at
// frontendURL + "/reset-password".
func NewAuthService(
	users repository.UserRepository,
	resets repository.ResetTokenStore,
	hasher *auth.Hasher,
	tokens *auth.JWTManager,
	mailer PasswordResetMailer,
	resetTTL time.Duration,
	frontendURL string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:       users,
		resets:      resets,
		hasher:      hasher,
		tokens:      tokens,
		mailer:      mailer,
		resetTTL:    resetTTL,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
		now:         utcNow,
	}
}

// RegisterInput holds the parameters for creating an account.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone" validate:"omitempty,in_phone"`
}

// LoginInput holds login credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Register creates a customer account and signs a token for it.
func (s *AuthService) Register(ctx context.Context, input *RegisterInput) (*AuthResult, error) {
	if len(input.Password) < domain.MinPasswordLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", domain.MinPasswordLength))
	}
	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(input.Name),
		Email:        domain.NormalizeEmail(input.Email),
		Phone:        input.Phone,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		Addresses:    []domain.Address{},
		Wishlist:     []string{},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
	)
	return s.issue(user)
}

// Login checks credentials and signs a token.
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(input.Email))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, fmt.Errorf("get user for login: %w", err)
	}
	if !s.hasher.Compare(user.PasswordHash, input.Password) {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	if !user.IsActive {
		return nil, apperrors.Forbidden("account is disabled")
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
	)
	return s.issue(user)
}

// Me returns the account of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	if !user.IsActive {
		return nil, apperrors.Forbidden("account is disabled")
	}
	return user, nil
}

// ForgotPassword mails a reset link when an active account uses email. It
// reports success either way so callers cannot probe for accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, apperrors.ErrNotFound) {
		s.logger.InfoContext(ctx, "password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get user for reset: %w", err)
	}
	if !user.IsActive {
		return nil
	}

	token, hash, err := auth.NewResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.resets.Save(ctx, hash, user.ID, s.resetTTL); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := s.frontendURL + "/reset-password?token=" + url.QueryEscape(token)
	if err := s.mailer.SendPasswordReset(ctx, user, link); err != nil {
		s.logger.ErrorContext(ctx, "failed to send password reset email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("user_id", user.ID),
	)
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" {
		return apperrors.InvalidInput("reset token is required")
	}
	if len(password) < domain.MinPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", domain.MinPasswordLength))
	}

	userID, err := s.resets.Consume(ctx, auth.HashResetToken(token))
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset completed",
		slog.String("user_id", userID),
	)
	return nil
}

// ChangePassword replaces the password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < domain.MinPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", domain.MinPasswordLength))
	}
	if current == next {
		return apperrors.InvalidInput("new password must differ from the current password")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user for password change: %w", err)
	}
	if !s.hasher.Compare(user.PasswordHash, current) {
		return apperrors.InvalidInput("current password is incorrect")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("user_id", userID),
	)
	return nil
}

// EnsureAdmin creates the bootstrap admin account, or promotes the existing
// account with that email. An empty email does nothing.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" {
		return nil
	}
	email = domain.NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if user.IsAdmin() && user.IsActive {
			return nil
		}
		user.Role = domain.RoleAdmin
		user.IsActive = true
		user.UpdatedAt = s.now()
		if err := s.users.Update(ctx, user); err != nil {
			return fmt.Errorf("promote admin: %w", err)
		}
		s.logger.InfoContext(ctx, "bootstrap admin promoted", slog.String("user_id", user.ID))
		return nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return fmt.Errorf("get bootstrap admin: %w", err)
	}

	if len(password) < domain.MinPasswordLength {
		return apperrors.InvalidInput("admin password is too short")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	now := s.now()
	admin := &domain.User{
		ID:           uuid.New().String(),
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Addresses:    []domain.Address{},
		Wishlist:     []string{},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	s.logger.InfoContext(ctx, "bootstrap admin created", slog.String("user_id", admin.ID))
	return nil
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
