// internal/app/features/cascades/routes.go
package cascades

import (
	"github.com/dalemusser/centerhub/internal/app/system/auth"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the cascade routes (typically under "/cascades").
// Global admins only.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(models.KindGlobalAdmin))
	r.Get("/{id}", h.ServeGet)
	r.Post("/{id}/resume", h.HandleResume)
	return r
}
