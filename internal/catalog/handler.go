package catalog

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

// Handler manages catalog endpoints.
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

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermCatalogView, shared.PermCatalogEdit))
		r.Get("/products", h.listProducts)
		r.Get("/products/low-stock", h.listLowStock)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/vendors", h.listVendors)
		r.Get("/vendors/{id}", h.getVendor)
		r.Get("/vendors/{id}/products", h.listVendorProducts)
		r.Get("/locations", h.listLocations)
		r.Get("/uoms", h.listUOMs)
		r.Get("/currencies", h.listCurrencies)
		r.Get("/departments", h.listDepartments)
		r.Get("/sites", h.listSites)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermCatalogEdit))
		r.Post("/products", h.createProduct)
		r.Put("/products/{id}", h.updateProduct)
		r.Post("/vendors", h.createVendor)
		r.Put("/vendors/{id}", h.updateVendor)
		r.Put("/vendors/{id}/products", h.setVendorProduct)
	})
}

type productRequest struct {
	SKU          string  `json:"sku"`
	Name         string  `json:"name" validate:"required"`
	Description  string  `json:"description"`
	Quantity     int64   `json:"quantity" validate:"gte=0"`
	ReorderLevel int64   `json:"reorder_level" validate:"gte=0"`
	UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
	LocationID   int64   `json:"location_id"`
	UOMID        int64   `json:"uom_id"`
	IsActive     bool    `json:"is_active"`
}

type vendorRequest struct {
	Name          string `json:"name" validate:"required"`
	ContactPerson string `json:"contact_person"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	PaymentTerms  string `json:"payment_terms"`
	CurrencyID    int64  `json:"currency_id"`
	IsActive      bool   `json:"is_active"`
}

type vendorProductRequest struct {
	ProductID    int64   `json:"product_id" validate:"required"`
	VendorSKU    string  `json:"vendor_sku"`
	UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
	CurrencyID   int64   `json:"currency_id"`
	MinOrderQty  int64   `json:"min_order_qty" validate:"gte=0"`
	LeadTimeDays int     `json:"lead_time_days" validate:"gte=0"`
	IsActive     bool    `json:"is_active"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	filters := ListFilters{
		Search:     r.URL.Query().Get("search"),
		LocationID: locationID,
		SortBy:     r.URL.Query().Get("sort"),
		SortDir:    r.URL.Query().Get("dir"),
	}
	if raw := r.URL.Query().Get("is_active"); raw != "" {
		active := raw == "true"
		filters.IsActive = &active
	}
	products, total, err := h.service.ListProducts(r.Context(), limit, offset, filters)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products, "total": total, "limit": limit, "offset": offset})
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListLowStock(r.Context())
	if err != nil {
		h.logger.Error("list low stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.CreateProduct(r.Context(), currentUser(r), ProductInput{
		SKU:          req.SKU,
		Name:         req.Name,
		Description:  req.Description,
		Quantity:     req.Quantity,
		ReorderLevel: req.ReorderLevel,
		UnitPrice:    req.UnitPrice,
		LocationID:   req.LocationID,
		UOMID:        req.UOMID,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.logger.Error("create product", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), currentUser(r), id, ProductInput{
		Name:         req.Name,
		Description:  req.Description,
		ReorderLevel: req.ReorderLevel,
		UnitPrice:    req.UnitPrice,
		LocationID:   req.LocationID,
		UOMID:        req.UOMID,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.logger.Error("update product", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) listVendors(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	vendors, err := h.service.ListVendors(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("list vendors", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vendors": vendors})
}

func (h *Handler) getVendor(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	vendor, err := h.service.GetVendor(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) createVendor(w http.ResponseWriter, r *http.Request) {
	var req vendorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	vendor, err := h.service.CreateVendor(r.Context(), currentUser(r), VendorInput{
		Name:          req.Name,
		ContactPerson: req.ContactPerson,
		Email:         req.Email,
		Phone:         req.Phone,
		Address:       req.Address,
		PaymentTerms:  req.PaymentTerms,
		CurrencyID:    req.CurrencyID,
		IsActive:      req.IsActive,
	})
	if err != nil {
		h.logger.Error("create vendor", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, vendor)
}

func (h *Handler) updateVendor(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req vendorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	vendor, err := h.service.UpdateVendor(r.Context(), currentUser(r), id, VendorInput{
		Name:          req.Name,
		ContactPerson: req.ContactPerson,
		Email:         req.Email,
		Phone:         req.Phone,
		Address:       req.Address,
		PaymentTerms:  req.PaymentTerms,
		CurrencyID:    req.CurrencyID,
		IsActive:      req.IsActive,
	})
	if err != nil {
		h.logger.Error("update vendor", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) listVendorProducts(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	items, err := h.service.ListVendorProducts(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) setVendorProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req vendorProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.SetVendorProduct(r.Context(), currentUser(r), VendorProduct{
		VendorID:     id,
		ProductID:    req.ProductID,
		VendorSKU:    req.VendorSKU,
		UnitPrice:    req.UnitPrice,
		CurrencyID:   req.CurrencyID,
		MinOrderQty:  req.MinOrderQty,
		LeadTimeDays: req.LeadTimeDays,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.logger.Error("set vendor product", slog.Any("error", err), slog.Int64("vendor_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.service.ListLocations(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (h *Handler) listUOMs(w http.ResponseWriter, r *http.Request) {
	uoms, err := h.service.ListUOMs(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"uoms": uoms})
}

func (h *Handler) listCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := h.service.ListCurrencies(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"currencies": currencies})
}

func (h *Handler) listDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.service.ListDepartments(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"departments": departments})
}

func (h *Handler) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.service.ListSites(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func currentUser(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	return sess.UserID()
}
