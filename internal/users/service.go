package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByUsername loads a user by login name.
func (s *Service) FindByUsername(ctx context.Context, username string) (*User, error) {
	u, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IsActiveUser reports whether id resolves to an active account.
func (s *Service) IsActiveUser(ctx context.Context, id int64) (bool, error) {
	u, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsActive, nil
}

// EnsureAdmin creates a superuser named username when none exists yet.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("users: bootstrap admin requires username and password")
	}
	existing, err := s.repo.FindByUsername(ctx, username)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}
	created, err := s.repo.CreateUser(ctx, User{Username: username, PasswordHash: string(hash), IsSuperuser: true, IsActive: true})
	if err != nil {
		return nil, err
	}
	s.logger.Info("bootstrap admin created", slog.Int64("user_id", created.ID), slog.String("username", created.Username))
	return &created, nil
}
