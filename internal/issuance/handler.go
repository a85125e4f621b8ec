package issuance

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harbor-wms/harbor-wms/internal/platform/httpx"
	"github.com/harbor-wms/harbor-wms/internal/rbac"
	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// Handler manages issuance endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers issuance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermIssuancesView, shared.PermIssuancesCreate))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermIssuancesCreate))
		r.Post("/", h.create)
	})
}

type itemRequest struct {
	RequestLineID int64 `json:"request_line_id" validate:"required"`
	Qty           int64 `json:"qty" validate:"required,gt=0"`
}

type createIssuanceRequest struct {
	RequestID      int64         `json:"request_id" validate:"required"`
	IssuedTo       int64         `json:"issued_to"`
	Notes          string        `json:"notes"`
	IdempotencyKey string        `json:"idempotency_key"`
	Items          []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	requestID, _ := strconv.ParseInt(r.URL.Query().Get("request_id"), 10, 64)
	issuedBy, _ := strconv.ParseInt(r.URL.Query().Get("issued_by"), 10, 64)
	issuances, total, err := h.service.List(r.Context(), limit, offset, ListFilters{RequestID: requestID, IssuedBy: issuedBy})
	if err != nil {
		h.logger.Error("list issuances", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"issuances": issuances, "total": total, "limit": limit, "offset": offset})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	iss, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"issuance": iss, "lines": lines})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createIssuanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{RequestID: req.RequestID, IssuedTo: req.IssuedTo, Notes: req.Notes, IdempotencyKey: req.IdempotencyKey}
	for _, item := range req.Items {
		input.Items = append(input.Items, ItemInput{RequestLineID: item.RequestLineID, Qty: item.Qty})
	}
	created, err := h.service.Create(r.Context(), currentUser(r), input)
	if err != nil {
		h.logger.Error("create issuance", slog.Any("error", err), slog.Int64("request_id", req.RequestID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func currentUser(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	return sess.UserID()
}
