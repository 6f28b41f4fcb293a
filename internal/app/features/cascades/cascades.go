// internal/app/features/cascades/cascades.go
package cascades

import (
	"context"
	"net/http"

	"github.com/dalemusser/centerhub/internal/app/system/respond"
	"github.com/dalemusser/centerhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Route: GET /cascades/{id}
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	rec, err := h.Coordinator.Cascade(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, rec)
}

// HandleResume runs an unfinished cascade now instead of waiting for the
// background resumer, then answers with the cursor as it was left.
//
// Route: POST /cascades/{id}/resume
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Cascade())
	defer cancel()

	if err := h.Coordinator.Resume(ctx, id); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	rec, err := h.Coordinator.Cascade(ctx, id)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	h.Log.Info("cascade resumed on request", zap.String("cascade_id", id), zap.String("status", rec.Status))
	respond.JSON(w, http.StatusOK, rec)
}
