package procurement

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

// Handler manages quotation, purchase order and receiving endpoints.
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

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotations", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermProcurementView, shared.PermProcurementEdit))
			r.Get("/", h.listQuotations)
			r.Get("/{id}", h.getQuotation)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermProcurementEdit))
			r.Post("/", h.createQuotation)
			r.Put("/{id}", h.updateQuotation)
			r.Post("/{id}/status", h.changeQuotationStatus)
			r.Post("/{id}/convert", h.convertQuotation)
			r.Delete("/{id}", h.deleteQuotation)
		})
	})
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermProcurementView, shared.PermProcurementEdit))
			r.Get("/", h.listPOs)
			r.Get("/{id}", h.getPO)
			r.Get("/{id}/receivings", h.listReceivings)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermProcurementEdit))
			r.Post("/", h.createPO)
			r.Put("/{id}", h.updatePO)
			r.Post("/{id}/status", h.changePOStatus)
			r.Delete("/{id}", h.deletePO)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermReceivingEdit))
			r.Post("/{id}/receive", h.receive)
		})
	})
	r.Route("/receivings", func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProcurementView, shared.PermReceivingEdit))
		r.Get("/{id}", h.getReceiving)
	})
}

type quotationItemRequest struct {
	ProductID    int64   `json:"product_id" validate:"required"`
	Qty          int64   `json:"qty" validate:"required,gt=0"`
	UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
	VendorSKU    string  `json:"vendor_sku"`
	LeadTimeDays int64   `json:"lead_time_days"`
	Note         string  `json:"note"`
}

type quotationRequest struct {
	VendorID      int64                  `json:"vendor_id" validate:"required"`
	CurrencyID    int64                  `json:"currency_id"`
	ValidUntil    time.Time              `json:"valid_until"`
	QuotationDate time.Time              `json:"quotation_date"`
	Note          string                 `json:"note"`
	Items         []quotationItemRequest `json:"items" validate:"required,min=1,dive"`
}

type poItemRequest struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Qty       int64   `json:"qty" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type poRequest struct {
	VendorID         int64           `json:"vendor_id"`
	SupplierName     string          `json:"supplier_name"`
	CurrencyID       int64           `json:"currency_id"`
	ExpectedDelivery time.Time       `json:"expected_delivery"`
	Note             string          `json:"note"`
	Items            []poItemRequest `json:"items" validate:"required,min=1,dive"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type receiveItemRequest struct {
	POItemID      int64  `json:"po_item_id" validate:"required"`
	Qty           int64  `json:"qty" validate:"required,gt=0"`
	ConditionNote string `json:"condition_note"`
}

type receiveRequest struct {
	Note           string               `json:"note"`
	IdempotencyKey string               `json:"idempotency_key"`
	Items          []receiveItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) listQuotations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	vendorID, _ := strconv.ParseInt(r.URL.Query().Get("vendor_id"), 10, 64)
	filters := QuotationFilters{Status: QuotationStatus(r.URL.Query().Get("status")), VendorID: vendorID}
	quotations, total, err := h.service.ListQuotations(r.Context(), limit, offset, filters)
	if err != nil {
		h.logger.Error("list quotations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quotations": quotations, "total": total, "limit": limit, "offset": offset})
}

func (h *Handler) getQuotation(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	q, items, err := h.service.GetQuotation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quotation": q, "items": items, "total": QuotationTotal(items)})
}

func (h *Handler) createQuotation(w http.ResponseWriter, r *http.Request) {
	var req quotationRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.service.CreateQuotation(r.Context(), currentUser(r), toQuotationInput(req))
	if err != nil {
		h.logger.Error("create quotation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateQuotation(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req quotationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.UpdateQuotation(r.Context(), currentUser(r), id, toQuotationInput(req)); err != nil {
		h.logger.Error("update quotation", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) changeQuotationStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ChangeQuotationStatus(r.Context(), currentUser(r), id, QuotationStatus(req.Status)); err != nil {
		h.logger.Error("change quotation status", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) convertQuotation(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	po, err := h.service.ConvertToPO(r.Context(), currentUser(r), id)
	if err != nil {
		h.logger.Error("convert quotation", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) deleteQuotation(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.DeleteQuotation(r.Context(), currentUser(r), id); err != nil {
		h.logger.Error("delete quotation", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	vendorID, _ := strconv.ParseInt(r.URL.Query().Get("vendor_id"), 10, 64)
	filters := POFilters{Status: POStatus(r.URL.Query().Get("status")), VendorID: vendorID}
	orders, total, err := h.service.ListPOs(r.Context(), limit, offset, filters)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_orders": orders, "total": total, "limit": limit, "offset": offset})
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	po, items, err := h.service.GetPO(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_order": po, "items": items})
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req poRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.service.CreatePO(r.Context(), currentUser(r), toPOInput(req))
	if err != nil {
		h.logger.Error("create purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updatePO(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req poRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.UpdatePO(r.Context(), currentUser(r), id, toPOInput(req)); err != nil {
		h.logger.Error("update purchase order", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) changePOStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ChangePOStatus(r.Context(), currentUser(r), id, POStatus(req.Status)); err != nil {
		h.logger.Error("change purchase order status", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deletePO(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.DeletePO(r.Context(), currentUser(r), id); err != nil {
		h.logger.Error("delete purchase order", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := ReceiveInput{Note: req.Note, IdempotencyKey: req.IdempotencyKey}
	for _, item := range req.Items {
		input.Items = append(input.Items, ReceiveItemInput{POItemID: item.POItemID, Qty: item.Qty, ConditionNote: item.ConditionNote})
	}
	rec, err := h.service.Receive(r.Context(), currentUser(r), id, input)
	if err != nil {
		h.logger.Error("receive purchase order", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) listReceivings(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	receivings, err := h.service.ListReceivings(r.Context(), id)
	if err != nil {
		h.logger.Error("list receivings", slog.Any("error", err), slog.Int64("po_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receivings": receivings})
}

func (h *Handler) getReceiving(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	rec, items, err := h.service.GetReceiving(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receiving": rec, "items": items})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func toQuotationInput(req quotationRequest) QuotationInput {
	input := QuotationInput{
		VendorID:      req.VendorID,
		CurrencyID:    req.CurrencyID,
		ValidUntil:    req.ValidUntil,
		QuotationDate: req.QuotationDate,
		Note:          req.Note,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, QuotationItemInput{
			ProductID:    item.ProductID,
			Qty:          item.Qty,
			UnitPrice:    item.UnitPrice,
			VendorSKU:    item.VendorSKU,
			LeadTimeDays: item.LeadTimeDays,
			Note:         item.Note,
		})
	}
	return input
}

func toPOInput(req poRequest) POInput {
	input := POInput{
		VendorID:         req.VendorID,
		SupplierName:     req.SupplierName,
		CurrencyID:       req.CurrencyID,
		ExpectedDelivery: req.ExpectedDelivery,
		Note:             req.Note,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, POItemInput{ProductID: item.ProductID, Qty: item.Qty, UnitPrice: item.UnitPrice})
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
