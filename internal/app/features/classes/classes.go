// internal/app/features/classes/classes.go
package classes

import (
	"context"
	"net/http"

	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/auth"
	"github.com/dalemusser/centerhub/internal/app/system/respond"
	"github.com/dalemusser/centerhub/internal/app/system/timeouts"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func ids(r *http.Request) (centerID, classID primitive.ObjectID, err error) {
	if centerID, err = respond.ObjectID(r, "centerID"); err != nil {
		return
	}
	classID, err = respond.ObjectID(r, "classID")
	return
}

// ServeList returns the classes of a center. Members see their own
// center's list; global admins see any.
//
// Route: GET /classes/{centerID}
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	centerID, err := respond.ObjectID(r, "centerID")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	actor := auth.Actor(r)
	if actor.Role.Kind != models.KindGlobalAdmin && !actor.BelongsTo(centerID) {
		respond.Error(w, h.Log, apperr.Denied("view_classes"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.Catalog.List(ctx, centerID)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, list)
}

// HandleAdd adds a class. {"course":"4eso","letter":"B"} takes the standard
// path; {"name":...} accepts either kind.
//
// Route: POST /classes/{centerID}
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	centerID, err := respond.ObjectID(r, "centerID")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	var req addRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	actor := auth.Actor(r)
	var cd models.ClassDefinition
	if req.Course != "" {
		cd, err = h.Catalog.AddStandardClass(ctx, actor, centerID, req.Course, req.Letter)
	} else {
		cd, err = h.Catalog.AddClass(ctx, actor, centerID, req.Name)
	}
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, cd)
}

// Route: POST /classes/{centerID}/{classID}/pin
func (h *Handler) HandleTogglePin(w http.ResponseWriter, r *http.Request) {
	centerID, classID, err := ids(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	pinned, err := h.Catalog.TogglePinned(ctx, auth.Actor(r), centerID, classID)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"is_pinned": pinned})
}

// Route: POST /classes/{centerID}/{classID}/chat
func (h *Handler) HandleToggleChat(w http.ResponseWriter, r *http.Request) {
	centerID, classID, err := ids(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	enabled, err := h.Catalog.ToggleChatEnabled(ctx, auth.Actor(r), centerID, classID)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"chat_enabled": enabled})
}

// Route: PUT /classes/{centerID}/{classID}/image
func (h *Handler) HandleSetImage(w http.ResponseWriter, r *http.Request) {
	centerID, classID, err := ids(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	var req imageRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := h.Catalog.SetClassImage(ctx, auth.Actor(r), centerID, classID, req.ImageURL); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.NoContent(w)
}

// HandleRemove deletes the class and moves its members to default/default.
//
// Route: DELETE /classes/{centerID}/{classID}
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	centerID, classID, err := ids(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Cascade(), h.Log, "remove class")
	defer cancel()

	if err := h.Catalog.RemoveClass(ctx, auth.Actor(r), centerID, classID); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.NoContent(w)
}
