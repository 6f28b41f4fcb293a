// internal/app/features/members/routes.go
package members

import (
	"github.com/dalemusser/centerhub/internal/app/system/auth"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the membership routes (typically under "/members").
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	// Self-service. Joining and leaving are authorized by the engine: a user
	// may act on themselves, a global admin on anyone.
	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Get("/me", h.ServeMe)
		pr.Post("/{userID}/center", h.HandleJoinCenter)
		pr.Post("/{userID}/kick", h.HandleKick)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireRole(models.KindGlobalAdmin, models.KindCenterAdmin, models.KindClassAdmin))

		pr.Get("/", h.ServeList)
		pr.Get("/{userID}", h.ServeGet)
		pr.Post("/{userID}/class", h.HandleMoveClass)
		pr.Put("/{userID}/role", h.HandleChangeRole)
		pr.Post("/{userID}/ban", h.HandleBan)
		pr.Post("/{userID}/unban", h.HandleUnban)
	})

	return r
}
