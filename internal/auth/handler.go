package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.With(h.service.RequireUser).Get("/me", h.handleMe)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Warn("login failed", slog.String("username", req.Username))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("login success", slog.Int64("user_id", resp.User.ID))
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, access.PrincipalFromContext(r.Context()))
}
