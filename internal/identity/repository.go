package identity

import (
	"context"
	"time"

	"github.com/opshield/incident-sentry/internal/domain"
)

// Repository defines the interface for user storage.
type Repository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id, firstName, lastName, department string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	AdminUpdateUser(ctx context.Context, id string, patch AdminPatch) (*domain.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]*domain.User, int, error)
}

// UserFilter holds filter and pagination options for listing users.
type UserFilter struct {
	Role     *domain.Role
	IsActive *bool
	Page     int
	Limit    int
}

// AdminPatch holds the admin-mutable fields of a user.
// Nil fields are left unchanged.
type AdminPatch struct {
	Role       *domain.Role
	IsActive   *bool
	Department *string
}
