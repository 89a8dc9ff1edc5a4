// Package identity implements the credential store and account management.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opshield/incident-sentry/internal/domain"
	"github.com/opshield/incident-sentry/internal/pkg/ctxlog"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// Authenticator issues bearer tokens for authenticated users.
type Authenticator interface {
	IssueToken(userID string) (string, error)
}

// Service implements credential store business logic.
type Service struct {
	repo Repository
	auth Authenticator
}

// NewService creates a new identity service.
func NewService(repo Repository, auth Authenticator) *Service {
	return &Service{repo: repo, auth: auth}
}

// RegisterInput holds data for creating an account.
type RegisterInput struct {
	Username   string
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Department string
	Role       domain.Role
}

// Register creates a new account. The password is stored as a salted
// one-way hash; the role defaults to viewer when unspecified.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, string, error) {
	role := input.Role
	if role == "" {
		role = domain.RoleViewer
	}
	if !role.IsValid() {
		return nil, "", ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     strings.TrimSpace(input.Username),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: string(hash),
		Role:         role,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Department:   strings.TrimSpace(input.Department),
		IsActive:     true,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}

	ctxlog.FromContext(ctx).Info("user registered", "user_id", user.ID, "email", user.Email)

	return user, token, nil
}

// Login verifies credentials and returns the user with a fresh token.
// Updates the last-login timestamp as a side effect.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, "", ErrAccountDisabled
	}

	now := time.Now()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, "", fmt.Errorf("update last login: %w", err)
	}
	user.LastLogin = &now

	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}

	ctxlog.FromContext(ctx).Info("user logged in", "user_id", user.ID)

	return user, token, nil
}

// GetUserByID returns the user with the given id.
func (s *Service) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ProfileInput holds the self-mutable profile fields.
type ProfileInput struct {
	FirstName  string
	LastName   string
	Department string
}

// UpdateProfile updates the caller's own profile fields.
func (s *Service) UpdateProfile(ctx context.Context, id string, input ProfileInput) (*domain.User, error) {
	return s.repo.UpdateProfile(ctx, id, input.FirstName, input.LastName, input.Department)
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, id, string(hash), time.Now()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	ctxlog.FromContext(ctx).Info("password changed", "user_id", id)
	return nil
}

// ListUsers returns a page of users plus the total count.
func (s *Service) ListUsers(ctx context.Context, filter UserFilter) ([]*domain.User, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	if filter.Role != nil && !filter.Role.IsValid() {
		return nil, 0, ErrInvalidRole
	}
	return s.repo.ListUsers(ctx, filter)
}

// AdminUpdateUser updates role, active flag and department of the target user.
func (s *Service) AdminUpdateUser(ctx context.Context, id string, patch AdminPatch) (*domain.User, error) {
	if patch.Role != nil && !patch.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	user, err := s.repo.AdminUpdateUser(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("user updated by admin", "user_id", id)
	return user, nil
}
