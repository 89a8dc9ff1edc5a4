// Package jwt provides the signed bearer token service.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opshield/incident-sentry/internal/domain"
	"github.com/opshield/incident-sentry/internal/identity"
)

// Config holds token service configuration.
type Config struct {
	SecretKey     string
	TokenDuration time.Duration
}

// UserLookup resolves a user id to the stored account.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// Authenticator issues and verifies signed time-limited bearer tokens.
// Verification includes a store lookup: a token for a deleted or
// deactivated user is rejected even with a valid signature.
type Authenticator struct {
	config Config
	users  UserLookup
}

// NewAuthenticator creates a new JWT authenticator.
func NewAuthenticator(config Config, users UserLookup) *Authenticator {
	if config.TokenDuration == 0 {
		config.TokenDuration = 30 * 24 * time.Hour
	}
	return &Authenticator{config: config, users: users}
}

type claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// IssueToken returns a signed token binding the user id with an expiry.
func (a *Authenticator) IssueToken(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenDuration)),
		},
	})

	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates the signature and expiry, then resolves the user.
func (a *Authenticator) VerifyToken(ctx context.Context, tokenString string) (*domain.User, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.SecretKey), nil
	})
	if err != nil {
		return nil, identity.ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.UserID == "" {
		return nil, identity.ErrInvalidToken
	}

	user, err := a.users.GetUserByID(ctx, c.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, identity.ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup token user: %w", err)
	}

	if !user.IsActive {
		return nil, identity.ErrInvalidToken
	}

	return user, nil
}
