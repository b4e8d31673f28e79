package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/codequery-ai/codequery/internal/domain"
	"github.com/codequery-ai/codequery/internal/port"
)

const minPasswordLength = 8

// AuthService registers and authenticates users. Passwords are stored as
// bcrypt hashes only.
type AuthService struct {
	users port.UserStore
}

func NewAuthService(users port.UserStore) *AuthService {
	return &AuthService{users: users}
}

// Register creates a new user. Email must look like an address and the
// password must meet the minimum length.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email address")
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.users.CreateUser(ctx, email, string(hash))
}

// Login verifies the credentials and returns the user. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, port.ErrUserNotFound) {
		return nil, port.ErrInvalidCredential
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) != nil {
		return nil, port.ErrInvalidCredential
	}
	return user, nil
}
