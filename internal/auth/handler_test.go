package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

type stubUsers struct {
	byID map[int64]*users.User
}

func (s *stubUsers) Get(_ context.Context, id int64) (*users.User, error) {
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, users.ErrNotFound
}

func (s *stubUsers) FindByUsername(_ context.Context, username string) (*users.User, error) {
	for _, u := range s.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, users.ErrNotFound
}

func newRouter(t *testing.T, store *stubUsers) http.Handler {
	t.Helper()
	issuer, err := auth.NewTokenIssuer("secret", time.Hour)
	require.NoError(t, err)
	handler := auth.NewHandler(nil, auth.NewService(store, issuer))
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}

func seedUser(t *testing.T, active bool) *stubUsers {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &stubUsers{byID: map[int64]*users.User{
		7: {ID: 7, Username: "kasir", PasswordHash: string(hashed), IsActive: active},
	}}
}

func login(t *testing.T, router http.Handler, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"username":"` + username + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestLoginIssuesTokenAccepted(t *testing.T) {
	router := newRouter(t, seedUser(t, true))

	res := login(t, router, "kasir", "correctpass")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	assert.Equal(t, "Bearer", payload.TokenType)
	require.NotEmpty(t, payload.AccessToken)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+payload.AccessToken)
	me := httptest.NewRecorder()
	router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"username":"kasir"`)
	assert.NotContains(t, me.Body.String(), "password")
}

func TestLoginInvalidCredentials(t *testing.T) {
	router := newRouter(t, seedUser(t, true))

	res := login(t, router, "kasir", "wrongpass")
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = login(t, router, "nobody", "correctpass")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	router := newRouter(t, seedUser(t, false))

	res := login(t, router, "kasir", "correctpass")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginValidatesPayload(t *testing.T) {
	router := newRouter(t, seedUser(t, true))

	res := login(t, router, "", "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestMeRequiresBearerToken(t *testing.T) {
	router := newRouter(t, seedUser(t, true))

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		assert.Equal(t, http.StatusUnauthorized, res.Code, "header %q", header)
	}
}

func TestTokenRejectedAfterDeactivation(t *testing.T) {
	store := seedUser(t, true)
	issuer, err := auth.NewTokenIssuer("secret", time.Hour)
	require.NoError(t, err)
	svc := auth.NewService(store, issuer)

	token, _, err := issuer.Issue(store.byID[7])
	require.NoError(t, err)
	user, err := svc.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)

	store.byID[7].IsActive = false
	_, err = svc.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenSignedWithOtherSecretRejected(t *testing.T) {
	store := seedUser(t, true)
	other, err := auth.NewTokenIssuer("other", time.Hour)
	require.NoError(t, err)
	token, _, err := other.Issue(store.byID[7])
	require.NoError(t, err)

	issuer, err := auth.NewTokenIssuer("secret", time.Hour)
	require.NoError(t, err)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
