package auth

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/users"
)

type tokenClaims struct {
	jwtlib.RegisteredClaims
	Username  string `json:"username"`
	SuperUser bool   `json:"su,omitempty"`
}

// LoginRequest is the credential payload of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        *users.User `json:"user"`
}
