// internal/app/features/classes/routes.go
package classes

import (
	"github.com/dalemusser/centerhub/internal/app/system/auth"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the class routes (typically under "/classes"). Every path
// starts with the owning center's id.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Get("/{centerID}", h.ServeList)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireRole(models.KindGlobalAdmin, models.KindCenterAdmin))

		pr.Post("/{centerID}", h.HandleAdd)
		pr.Post("/{centerID}/{classID}/pin", h.HandleTogglePin)
		pr.Post("/{centerID}/{classID}/chat", h.HandleToggleChat)
		pr.Put("/{centerID}/{classID}/image", h.HandleSetImage)
		pr.Delete("/{centerID}/{classID}", h.HandleRemove)
	})

	return r
}
