package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequery-ai/codequery/internal/domain"
	"github.com/codequery-ai/codequery/internal/port"
)

type fakeUserStore struct {
	mu      sync.Mutex
	byEmail map[string]*domain.User
	nextID  int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: make(map[string]*domain.User)}
}

func (s *fakeUserStore) CreateUser(_ context.Context, email, hashedPassword string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return nil, port.ErrEmailTaken
	}
	s.nextID++
	u := &domain.User{ID: string(rune('0' + s.nextID)), Email: email, HashedPassword: hashedPassword}
	s.byEmail[email] = u
	return u, nil
}

func (s *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil, port.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeUserStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, port.ErrUserNotFound
}

func TestRegisterAndLogin(t *testing.T) {
	auth := NewAuthService(newFakeUserStore())

	user, err := auth.Register(context.Background(), "Dev@Example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", user.Email, "email is normalized")
	assert.NotEqual(t, "correct-horse", user.HashedPassword, "password is never stored in clear")

	logged, err := auth.Login(context.Background(), "dev@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
}

func TestRegister_Validation(t *testing.T) {
	auth := NewAuthService(newFakeUserStore())

	_, err := auth.Register(context.Background(), "not-an-email", "long-enough-pw")
	assert.Error(t, err)

	_, err = auth.Register(context.Background(), "dev@example.com", "short")
	assert.Error(t, err)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	auth := NewAuthService(newFakeUserStore())

	_, err := auth.Register(context.Background(), "dev@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = auth.Register(context.Background(), "dev@example.com", "other-password")
	assert.ErrorIs(t, err, port.ErrEmailTaken)
}

func TestLogin_BadCredentials(t *testing.T) {
	auth := NewAuthService(newFakeUserStore())
	_, err := auth.Register(context.Background(), "dev@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = auth.Login(context.Background(), "dev@example.com", "wrong-password")
	assert.ErrorIs(t, err, port.ErrInvalidCredential)

	_, err = auth.Login(context.Background(), "unknown@example.com", "correct-horse")
	assert.ErrorIs(t, err, port.ErrInvalidCredential, "unknown email and wrong password are indistinguishable")
}
