package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
)

const tokenIssuer = "odyssey-pos"

var ErrInvalidToken = fmt.Errorf("auth: invalid or expired token: %w", shared.ErrUnauthorized)

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer. ttl <= 0 falls back to eight hours.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("auth: token secret required")
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for u.
func (t *TokenIssuer) Issue(u *users.User) (string, time.Time, error) {
	now := t.now().UTC()
	expiresAt := now.Add(t.ttl)
	claims := tokenClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Username:  u.Username,
		SuperUser: u.IsSuperuser,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies raw and returns the user id in its subject.
func (t *TokenIssuer) Parse(raw string) (int64, error) {
	claims := &tokenClaims{}
	token, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return t.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
