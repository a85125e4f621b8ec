package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harbor-wms/harbor-wms/internal/platform/httpx"
	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.handleSession)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		if h.logger != nil {
			h.logger.Error("session missing during login")
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "session unavailable")
		return
	}
	sess.SetUserID(user.ID)
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if sess.ID != "" {
		if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			if h.logger != nil {
				h.logger.Warn("register session", slog.Any("error", err))
			}
		}
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
		"csrf_token": csrfToken,
		"expires_at": expiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			if h.logger != nil {
				h.logger.Warn("remove session", slog.Any("error", err))
			}
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.UserID() == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "not signed in")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": sess.UserID()})
}

// HandleLoginForTest exposes the login handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
