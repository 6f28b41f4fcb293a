// internal/app/features/centers/centers.go
package centers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/auth"
	"github.com/dalemusser/centerhub/internal/app/system/ratelimit"
	"github.com/dalemusser/centerhub/internal/app/system/respond"
	"github.com/dalemusser/centerhub/internal/app/system/timeouts"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ServeList returns every center, pinned first.
//
// Route: GET /centers
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	list, err := h.Registry.List(ctx)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, list)
}

// ServePage returns one page of centers in name order. The before/after
// cursors come from the prev_cursor/next_cursor of an earlier page.
//
// Route: GET /centers/page?before=...&after=...&size=...
func (h *Handler) ServePage(w http.ResponseWriter, r *http.Request) {
	size, _ := strconv.Atoi(query.Get(r, "size"))

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	page, err := h.Registry.ListPage(ctx, query.Get(r, "before"), query.Get(r, "after"), size)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, page)
}

// Route: POST /centers
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	center, err := h.Registry.CreateCenter(ctx, auth.Actor(r), req.Name)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, center)
}

// Route: GET /centers/{id}
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ObjectID(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	actor := auth.Actor(r)
	if actor.Role.Kind != models.KindGlobalAdmin && !actor.BelongsTo(id) {
		respond.Error(w, h.Log, apperr.Denied("view_center"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	center, err := h.Registry.Get(ctx, id)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, center)
}

// ServeByCode resolves an access code to the center's public fields, so a
// signed-in user can confirm which center they are about to join. Lookups
// count against the same budget as joins.
//
// Route: GET /centers/by-code/{code}
func (h *Handler) ServeByCode(w http.ResponseWriter, r *http.Request) {
	if h.Lookups != nil {
		actor := auth.Actor(r)
		if reason := h.Lookups.Check(r, actor.ID.Hex()); reason != "" {
			h.Log.Warn("access code lookup throttled",
				zap.String("actor_id", actor.ID.Hex()),
				zap.String("ip", ratelimit.ClientIP(r)))
			respond.JSON(w, http.StatusTooManyRequests, respond.ErrorBody{Error: reason})
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	center, err := h.Registry.GetByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"id":        center.ID,
		"name":      center.Name,
		"image_url": center.ImageURL,
	})
}

// HandleUpdate renames the center and/or sets its image.
//
// Route: PATCH /centers/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ObjectID(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	var req updateRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	actor := auth.Actor(r)
	if req.Name != nil {
		if err := h.Registry.RenameCenter(ctx, actor, id, *req.Name); err != nil {
			respond.Error(w, h.Log, err)
			return
		}
	}
	if req.ImageURL != nil {
		if err := h.Registry.SetImageURL(ctx, actor, id, *req.ImageURL); err != nil {
			respond.Error(w, h.Log, err)
			return
		}
	}

	center, err := h.Registry.Get(ctx, id)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, center)
}

// Route: POST /centers/{id}/pin
func (h *Handler) HandleTogglePin(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ObjectID(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	pinned, err := h.Registry.TogglePinned(ctx, auth.Actor(r), id)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, pinResponse{Pinned: pinned})
}

// HandleRotateCode issues a new access code and propagates it to every
// member. A cascade that stopped part way answers 500 with its cascade_id;
// the resumer finishes it.
//
// Route: POST /centers/{id}/code
func (h *Handler) HandleRotateCode(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ObjectID(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Cascade(), h.Log, "rotate access code")
	defer cancel()

	code, err := h.Registry.RotateAccessCode(ctx, auth.Actor(r), id)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, codeResponse{Code: code})
}

// Route: DELETE /centers/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ObjectID(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Cascade(), h.Log, "delete center")
	defer cancel()

	err = h.Registry.DeleteCenter(ctx, auth.Actor(r), id)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		respond.Error(w, h.Log, err)
		return
	}
	respond.NoContent(w)
}
