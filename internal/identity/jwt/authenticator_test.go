package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/opshield/incident-sentry/internal/domain"
	"github.com/opshield/incident-sentry/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUserLookup struct {
	users map[string]*domain.User
}

func (m *mockUserLookup) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}

func newLookup(users ...*domain.User) *mockUserLookup {
	m := &mockUserLookup{users: map[string]*domain.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func TestIssueAndVerifyToken(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "a@example.com", IsActive: true}
	auth := NewAuthenticator(Config{SecretKey: "test-secret"}, newLookup(user))

	token, err := auth.IssueToken("u1")
	require.NoError(t, err)

	resolved, err := auth.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", resolved.ID)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	user := &domain.User{ID: "u1", IsActive: true}
	issuer := NewAuthenticator(Config{SecretKey: "secret-a"}, newLookup(user))
	verifier := NewAuthenticator(Config{SecretKey: "secret-b"}, newLookup(user))

	token, err := issuer.IssueToken("u1")
	require.NoError(t, err)

	_, err = verifier.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestVerifyToken_Expired(t *testing.T) {
	user := &domain.User{ID: "u1", IsActive: true}
	auth := NewAuthenticator(Config{SecretKey: "test-secret", TokenDuration: -time.Minute}, newLookup(user))

	token, err := auth.IssueToken("u1")
	require.NoError(t, err)

	_, err = auth.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestVerifyToken_DeletedUser(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret"}, newLookup())

	token, err := auth.IssueToken("gone")
	require.NoError(t, err)

	_, err = auth.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestVerifyToken_DeactivatedUser(t *testing.T) {
	user := &domain.User{ID: "u1", IsActive: false}
	auth := NewAuthenticator(Config{SecretKey: "test-secret"}, newLookup(user))

	token, err := auth.IssueToken("u1")
	require.NoError(t, err)

	_, err = auth.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestVerifyToken_Garbage(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret"}, newLookup())

	_, err := auth.VerifyToken(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}
