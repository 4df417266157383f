package permission

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatewarden/gatewarden/internal/origin"
	"github.com/gatewarden/gatewarden/internal/platform/httpx"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Handler exposes the permission admin API.
type Handler struct {
	logger   *slog.Logger
	manager  *Manager
	gate     Gate
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, manager *Manager, gate Gate) *Handler {
	return &Handler{
		logger:   logger,
		manager:  manager,
		gate:     gate,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(PermManagePermissions, WithGlobal(),
			WithDescription("Manage registered permissions")))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Delete("/{id}", h.delete)
		r.Get("/{id}/roles", h.roles)
	})
}

type createRequest struct {
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description" validate:"max=512"`
	Global      bool   `json:"global"`
	Area        string `json:"area" validate:"max=64"`
	Controller  string `json:"controller" validate:"max=64"`
	Action      string `json:"action" validate:"max=64"`
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Origin      int64  `json:"origin"`
	Global      bool   `json:"global"`
	Area        string `json:"area,omitempty"`
	Controller  string `json:"controller,omitempty"`
	Action      string `json:"action,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	perms, err := h.manager.List(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, len(perms))
	for i, perm := range perms {
		out[i] = toResponse(&perm)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	route := origin.Route{Area: req.Area, Controller: req.Controller, Action: req.Action}
	params := CreateParams{
		Name:        req.Name,
		Origin:      origin.EncodeRoute(route),
		Description: req.Description,
		Global:      req.Global,
	}
	if !route.IsZero() {
		params.Route = &route
	}

	perm, err := h.manager.Create(r.Context(), params)
	if err != nil {
		h.logger.Error("create permission", slog.String("name", req.Name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(perm))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.permissionID(w, r)
	if !ok {
		return
	}
	perm, err := h.manager.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(perm))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.permissionID(w, r)
	if !ok {
		return
	}
	if err := h.manager.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) roles(w http.ResponseWriter, r *http.Request) {
	id, ok := h.permissionID(w, r)
	if !ok {
		return
	}
	perm, err := h.manager.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	names, err := h.manager.PermissionRoles(r.Context(), perm)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"roles": names})
}

func (h *Handler) permissionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.ErrInvalidArgument)
		return 0, false
	}
	return id, true
}

func toResponse(perm *Permission) permissionResponse {
	return permissionResponse{
		ID:          perm.ID,
		Name:        perm.Name,
		Description: perm.Description,
		Origin:      perm.Origin,
		Global:      perm.Global,
		Area:        perm.AreaName,
		Controller:  perm.ControllerName,
		Action:      perm.ActionName,
	}
}
