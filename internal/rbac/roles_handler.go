package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/notarium/notarium/internal/platform/httpx"
	"github.com/notarium/notarium/internal/shared"
)

// RolesHandler exposes the role policy.
type RolesHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewRolesHandler builds RolesHandler instance.
func NewRolesHandler(logger *slog.Logger, service *Service, rbac Middleware) *RolesHandler {
	return &RolesHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *RolesHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermChartAdmin))
		r.Get("/rbac/roles", h.listRoles)
	})
	r.Get("/rbac/me", h.me)
}

func (h *RolesHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *RolesHandler) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrUnauthenticated.Error())
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), actor)
	if err != nil {
		perms = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":          actor.ID,
		"role":        actor.Role,
		"permissions": perms,
	})
}
