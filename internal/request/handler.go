package request

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harbor-wms/harbor-wms/internal/platform/httpx"
	"github.com/harbor-wms/harbor-wms/internal/rbac"
	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// Handler manages item request endpoints.
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

// MountRoutes registers request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRequestsView, shared.PermRequestsEdit, shared.PermRequestsApprove))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRequestsEdit, shared.PermRequestsApprove))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
		r.Post("/{id}/cancel", h.cancel)
		r.Delete("/{id}", h.delete)
	})
}

type lineRequest struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Qty       int64  `json:"qty" validate:"required,gt=0"`
	SiteID    int64  `json:"site_id"`
	Notes     string `json:"notes"`
}

type createRequest struct {
	DepartmentID int64         `json:"department_id"`
	SiteID       int64         `json:"site_id"`
	Priority     string        `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	RequiredBy   time.Time     `json:"required_by"`
	Notes        string        `json:"notes"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	departmentID, _ := strconv.ParseInt(r.URL.Query().Get("department_id"), 10, 64)
	requestedBy, _ := strconv.ParseInt(r.URL.Query().Get("requested_by"), 10, 64)
	filters := ListFilters{
		Status:       Status(r.URL.Query().Get("status")),
		DepartmentID: departmentID,
		RequestedBy:  requestedBy,
	}
	requests, total, err := h.service.List(r.Context(), limit, offset, filters)
	if err != nil {
		h.logger.Error("list requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": requests, "total": total, "limit": limit, "offset": offset})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	req, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"request": req, "lines": lines})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), currentUser(r), toInput(req))
	if err != nil {
		h.logger.Error("create request", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Update(r.Context(), currentUser(r), id, toInput(req)); err != nil {
		h.logger.Error("update request", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Approve(r.Context(), currentUser(r), id); err != nil {
		h.logger.Error("approve request", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Reject(r.Context(), currentUser(r), id, req.Reason); err != nil {
		h.logger.Error("reject request", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Cancel(r.Context(), currentUser(r), id); err != nil {
		h.logger.Error("cancel request", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Delete(r.Context(), currentUser(r), id); err != nil {
		h.logger.Error("delete request", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toInput(req createRequest) CreateInput {
	input := CreateInput{
		DepartmentID: req.DepartmentID,
		SiteID:       req.SiteID,
		Priority:     Priority(req.Priority),
		RequiredBy:   req.RequiredBy,
		Notes:        req.Notes,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: line.ProductID, Qty: line.Qty, SiteID: line.SiteID, Notes: line.Notes})
	}
	return input
}

func currentUser(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	return sess.UserID()
}
