// internal/app/features/members/members.go
package members

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/auth"
	"github.com/dalemusser/centerhub/internal/app/system/ratelimit"
	"github.com/dalemusser/centerhub/internal/app/system/respond"
	"github.com/dalemusser/centerhub/internal/app/system/timeouts"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// canView reports whether actor may read the members of centerID.
func canView(actor models.User, centerID primitive.ObjectID) bool {
	return actor.Role.Kind == models.KindGlobalAdmin || actor.BelongsTo(centerID)
}

// Route: GET /members/me
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, auth.Actor(r))
}

// ServeList returns the members of a center, optionally narrowed to one class.
//
// Route: GET /members?center_id=...&course=...&class_name=...
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	centerID, err := primitive.ObjectIDFromHex(q.Get("center_id"))
	if err != nil {
		respond.Error(w, h.Log, apperr.Invalid("center_id", apperr.ReasonMalformed))
		return
	}
	if !canView(auth.Actor(r), centerID) {
		respond.Error(w, h.Log, apperr.Denied("view_members"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	var list []models.User
	course, class := strings.TrimSpace(q.Get("course")), strings.TrimSpace(q.Get("class_name"))
	if course != "" || class != "" {
		list, err = h.Directory.FindByClass(ctx, centerID, course, class)
	} else {
		list, err = h.Directory.FindByOrganization(ctx, centerID)
	}
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if list == nil {
		list = []models.User{}
	}
	respond.JSON(w, http.StatusOK, list)
}

// Route: GET /members/{userID}
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ObjectID(r, "userID")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Directory.Get(ctx, id)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	actor := auth.Actor(r)
	if actor.Role.Kind != models.KindGlobalAdmin && (u.OrganizationID == nil || !actor.BelongsTo(*u.OrganizationID)) {
		respond.Error(w, h.Log, apperr.NotFound("user", id.Hex()))
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

// mutate runs op for the user in the URL and answers with the user's
// state afterwards.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor models.User, id primitive.ObjectID) error) {
	id, err := respond.ObjectID(r, "userID")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	if err := op(ctx, auth.Actor(r), id); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	u, err := h.Directory.Get(ctx, id)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

// HandleJoinCenter moves the user into the center owning the code. Every
// attempt counts against the acting user's access code budget; attempts
// beyond it answer 429.
//
// Route: POST /members/{userID}/center
func (h *Handler) HandleJoinCenter(w http.ResponseWriter, r *http.Request) {
	if h.throttled(w, r) {
		return
	}
	var req joinRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, actor models.User, id primitive.ObjectID) error {
		return h.Coordinator.MoveUserToCenter(ctx, actor, id, req.Code)
	})
}

// throttled records an access code attempt by the actor and answers 429
// when the budget is spent.
func (h *Handler) throttled(w http.ResponseWriter, r *http.Request) bool {
	if h.Joins == nil {
		return false
	}
	actor := auth.Actor(r)
	reason := h.Joins.Check(r, actor.ID.Hex())
	if reason == "" {
		return false
	}
	h.Log.Warn("access code attempt throttled",
		zap.String("actor_id", actor.ID.Hex()),
		zap.String("ip", ratelimit.ClientIP(r)))
	respond.JSON(w, http.StatusTooManyRequests, respond.ErrorBody{Error: reason})
	return true
}

// HandleKick removes the user from their center. Acting on yourself leaves.
//
// Route: POST /members/{userID}/kick
func (h *Handler) HandleKick(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Coordinator.KickFromCenter)
}

// HandleMoveClass places the user in a class of their center. An empty
// course resolves the class by name.
//
// Route: POST /members/{userID}/class
func (h *Handler) HandleMoveClass(w http.ResponseWriter, r *http.Request) {
	var req moveClassRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	centerID, err := primitive.ObjectIDFromHex(req.CenterID)
	if err != nil {
		respond.Error(w, h.Log, apperr.Invalid("center_id", apperr.ReasonMalformed))
		return
	}
	h.mutate(w, r, func(ctx context.Context, actor models.User, id primitive.ObjectID) error {
		return h.Coordinator.MoveUserToClass(ctx, actor, id, centerID, req.Course, req.ClassName)
	})
}

// Route: PUT /members/{userID}/role
func (h *Handler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	role, err := models.ParseRoleStrict(req.Role)
	if err != nil {
		respond.Error(w, h.Log, apperr.Invalid("role", apperr.ReasonMalformed))
		return
	}
	h.mutate(w, r, func(ctx context.Context, actor models.User, id primitive.ObjectID) error {
		return h.Coordinator.ChangeRole(ctx, actor, id, role)
	})
}

// Route: POST /members/{userID}/ban
func (h *Handler) HandleBan(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Coordinator.BanUser)
}

// Route: POST /members/{userID}/unban
func (h *Handler) HandleUnban(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Coordinator.UnbanUser)
}
