package identity

import (
	"context"
	"testing"
	"time"

	"github.com/opshield/incident-sentry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	users         map[string]*domain.User
	createUserErr error
	lastLoginSet  *time.Time
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[string]*domain.User)}
}

func (m *mockRepository) CreateUser(_ context.Context, user *domain.User) error {
	if m.createUserErr != nil {
		return m.createUserErr
	}
	if _, exists := m.users[user.Email]; exists {
		return ErrUserExists
	}
	user.ID = "user-" + user.Username
	m.users[user.Email] = user
	return nil
}

func (m *mockRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) UpdateProfile(_ context.Context, id, firstName, lastName, department string) (*domain.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			u.FirstName = firstName
			u.LastName = lastName
			u.Department = department
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) UpdatePassword(_ context.Context, id, passwordHash string, changedAt time.Time) error {
	for _, u := range m.users {
		if u.ID == id {
			u.PasswordHash = passwordHash
			u.PasswordChangedAt = &changedAt
			return nil
		}
	}
	return ErrUserNotFound
}

func (m *mockRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.lastLoginSet = &at
	return nil
}

func (m *mockRepository) AdminUpdateUser(_ context.Context, id string, patch AdminPatch) (*domain.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			if patch.Role != nil {
				u.Role = *patch.Role
			}
			if patch.IsActive != nil {
				u.IsActive = *patch.IsActive
			}
			if patch.Department != nil {
				u.Department = *patch.Department
			}
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) ListUsers(_ context.Context, _ UserFilter) ([]*domain.User, int, error) {
	out := []*domain.User{}
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

// mockAuthenticator implements Authenticator for testing.
type mockAuthenticator struct {
	issued []string
}

func (m *mockAuthenticator) IssueToken(userID string) (string, error) {
	m.issued = append(m.issued, userID)
	return "token-" + userID, nil
}

func TestRegister_DefaultsToViewerRole(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{})

	user, token, err := service.Register(context.Background(), RegisterInput{
		Username:  "alice",
		Email:     "Alice@Example.com",
		Password:  "secret123",
		FirstName: "Alice",
		LastName:  "Nguyen",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RoleViewer, user.Role)
	assert.Equal(t, "alice@example.com", user.Email, "email should be normalized")
	assert.True(t, user.IsActive)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, "secret123", user.PasswordHash)
}

func TestRegister_RejectsUnknownRole(t *testing.T) {
	service := NewService(newMockRepository(), &mockAuthenticator{})

	_, _, err := service.Register(context.Background(), RegisterInput{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "secret123",
		Role:     "superuser",
	})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{})

	_, _, err := service.Register(context.Background(), RegisterInput{
		Username: "carol", Email: "carol@example.com", Password: "secret123",
	})
	require.NoError(t, err)

	_, _, err = service.Register(context.Background(), RegisterInput{
		Username: "carol2", Email: "carol@example.com", Password: "secret123",
	})
	assert.ErrorIs(t, err, ErrUserExists)

	// First registration remains intact
	first, err := repo.GetUserByEmail(context.Background(), "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, "carol", first.Username)
}

func TestLogin_WrongPassword(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{})

	_, _, err := service.Register(context.Background(), RegisterInput{
		Username: "dave", Email: "dave@example.com", Password: "correct-horse",
	})
	require.NoError(t, err)

	_, _, err = service.Login(context.Background(), "dave@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnknownEmailSameError(t *testing.T) {
	service := NewService(newMockRepository(), &mockAuthenticator{})

	// Unknown email and wrong password must be indistinguishable
	_, _, err := service.Login(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_DisabledAccount(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{})

	user, _, err := service.Register(context.Background(), RegisterInput{
		Username: "eve", Email: "eve@example.com", Password: "secret123",
	})
	require.NoError(t, err)
	user.IsActive = false

	_, _, err = service.Login(context.Background(), "eve@example.com", "secret123")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestLogin_UpdatesLastLogin(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{})

	_, _, err := service.Register(context.Background(), RegisterInput{
		Username: "frank", Email: "frank@example.com", Password: "secret123",
	})
	require.NoError(t, err)

	user, token, err := service.Login(context.Background(), "frank@example.com", "secret123")
	require.NoError(t, err)

	assert.NotEmpty(t, token)
	require.NotNil(t, repo.lastLoginSet)
	require.NotNil(t, user.LastLogin)
}

func TestChangePassword(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{})

	user, _, err := service.Register(context.Background(), RegisterInput{
		Username: "grace", Email: "grace@example.com", Password: "old-secret",
	})
	require.NoError(t, err)

	err = service.ChangePassword(context.Background(), user.ID, "wrong", "new-secret")
	assert.ErrorIs(t, err, ErrWrongPassword)

	err = service.ChangePassword(context.Background(), user.ID, "old-secret", "new-secret")
	require.NoError(t, err)

	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("new-secret")))
	assert.NotNil(t, user.PasswordChangedAt)
}

func TestListUsers_NormalizesPagination(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{})

	_, _, err := service.ListUsers(context.Background(), UserFilter{Page: -3, Limit: 0})
	require.NoError(t, err)

	badRole := domain.Role("root")
	_, _, err = service.ListUsers(context.Background(), UserFilter{Role: &badRole})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestAdminUpdateUser(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &mockAuthenticator{})

	user, _, err := service.Register(context.Background(), RegisterInput{
		Username: "heidi", Email: "heidi@example.com", Password: "secret123",
	})
	require.NoError(t, err)

	analyst := domain.RoleAnalyst
	inactive := false
	updated, err := service.AdminUpdateUser(context.Background(), user.ID, AdminPatch{
		Role:     &analyst,
		IsActive: &inactive,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RoleAnalyst, updated.Role)
	assert.False(t, updated.IsActive)

	badRole := domain.Role("root")
	_, err = service.AdminUpdateUser(context.Background(), user.ID, AdminPatch{Role: &badRole})
	assert.ErrorIs(t, err, ErrInvalidRole)
}
