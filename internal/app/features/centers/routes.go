// internal/app/features/centers/routes.go
package centers

import (
	"github.com/dalemusser/centerhub/internal/app/system/auth"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the center routes (typically under "/centers").
// Per-center permissions are decided by the access policy in the engine;
// the role gates here only keep students out.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Get("/by-code/{code}", h.ServeByCode)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireRole(models.KindGlobalAdmin, models.KindCenterAdmin))

		pr.Get("/{id}", h.ServeGet)
		pr.Patch("/{id}", h.HandleUpdate)
		pr.Post("/{id}/pin", h.HandleTogglePin)
		pr.Post("/{id}/code", h.HandleRotateCode)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireRole(models.KindGlobalAdmin))

		pr.Get("/", h.ServeList)
		pr.Get("/page", h.ServePage)
		pr.Post("/", h.HandleCreate)
		pr.Delete("/{id}", h.HandleDelete)
	})

	return r
}
