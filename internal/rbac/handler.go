package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harbor-wms/harbor-wms/internal/platform/httpx"
)

// Handler manages role and permission administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers role administration routes. Only superusers pass
// the roles.manage gate unless the permission is granted explicitly.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("roles.manage"))
		r.Get("/roles", h.listRoles)
		r.Post("/roles", h.createRole)
		r.Put("/roles/{id}", h.updateRole)
		r.Delete("/roles/{id}", h.deleteRole)
		r.Put("/roles/{id}/permissions", h.setRolePermissions)
		r.Get("/permissions", h.listPermissions)
		r.Post("/users/{id}/roles", h.assignRole)
		r.Delete("/users/{id}/roles/{roleID}", h.removeRole)
	})
}

type roleRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type rolePermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids"`
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Description)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req rolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), id, req.PermissionIDs); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignRole(r.Context(), id, req.RoleID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	roleID, _ := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err := h.service.RemoveRole(r.Context(), id, roleID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("rbac admin", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "unexpected error")
	}
}
