package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
)

// UserStore is the slice of users.Service that authentication needs.
type UserStore interface {
	Get(ctx context.Context, id int64) (*users.User, error)
	FindByUsername(ctx context.Context, username string) (*users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	users     UserStore
	tokens    *TokenIssuer
	validator *validator.Validate
}

// NewService constructs a new Service.
func NewService(store UserStore, tokens *TokenIssuer) *Service {
	return &Service{users: store, tokens: tokens, validator: validator.New()}
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*users.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return LoginResponse{}, fmt.Errorf("%w: username and password are required", shared.ErrValidation)
	}
	user, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return LoginResponse{}, err
	}
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt, User: user}, nil
}

// Resolve maps a bearer token to an active user.
func (s *Service) Resolve(ctx context.Context, token string) (*users.User, error) {
	id, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Get(ctx, id)
	if err != nil || !user.IsActive {
		return nil, ErrInvalidToken
	}
	return user, nil
}
