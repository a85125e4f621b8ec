package transfer

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

// Handler manages stock transfer endpoints.
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

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermTransfersView, shared.PermTransfersEdit))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermTransfersEdit))
		r.Post("/", h.create)
		r.Post("/{id}/complete", h.complete)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type createTransferRequest struct {
	ProductID      int64  `json:"product_id" validate:"required"`
	FromLocationID int64  `json:"from_location_id" validate:"required"`
	ToLocationID   int64  `json:"to_location_id" validate:"required"`
	Qty            int64  `json:"qty" validate:"required,gt=0"`
	Notes          string `json:"notes"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	filters := ListFilters{
		Status:     Status(r.URL.Query().Get("status")),
		ProductID:  productID,
		LocationID: locationID,
	}
	transfers, total, err := h.service.List(r.Context(), limit, offset, filters)
	if err != nil {
		h.logger.Error("list transfers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers, "total": total, "limit": limit, "offset": offset})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), currentUser(r), CreateInput{
		ProductID:      req.ProductID,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Qty:            req.Qty,
		Notes:          req.Notes,
	})
	if err != nil {
		h.logger.Error("create transfer", slog.Any("error", err), slog.Int64("product_id", req.ProductID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Complete(r.Context(), currentUser(r), id); err != nil {
		h.logger.Error("complete transfer", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Cancel(r.Context(), currentUser(r), id); err != nil {
		h.logger.Error("cancel transfer", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func currentUser(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	return sess.UserID()
}
