package coordinator

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/centerhub/internal/app/policy/accesspolicy"
	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/app/system/accesscode"
	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/classname"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MoveUserToClass places a member of centerID in one of its classes.
// course and className are the pair members store ("4eso", "B"); an empty
// course looks className up as a full class name ("4eso-B", "Robotics").
// A class admin of another class is demoted to student.
func (c *Coordinator) MoveUserToClass(ctx context.Context, actor models.User, userID, centerID primitive.ObjectID, course, className string) error {
	return c.retry(ctx, "move_user_to_class", func(ctx context.Context) error {
		u, err := c.loadUser(ctx, userID)
		if err != nil {
			return err
		}
		center, err := c.loadCenter(ctx, centerID)
		if err != nil {
			return err
		}
		if !accesspolicy.Authorize(actor, accesspolicy.MoveUser, accesspolicy.Target{CenterID: centerID, User: &u}) {
			return apperr.Denied(accesspolicy.MoveUser.String())
		}
		if !u.BelongsTo(centerID) {
			return apperr.Invalid("user", apperr.ReasonNotMember)
		}
		cd, ok := findClass(center, course, className)
		if !ok {
			return apperr.Invalid("class", apperr.ReasonAbsent)
		}

		mc, mn := classname.MemberKey(cd)
		p := docstore.UserPatch{Course: &mc, ClassName: &mn}
		if u.Role.Kind == models.KindClassAdmin && !u.Role.IsClassAdminOf(cd.Name) {
			student := models.Student()
			p.Role = &student
		}
		return c.commit(ctx, docstore.Batch{
			Users:  []docstore.UserWrite{{UserID: u.ID, ExpectVersion: u.Version, Patch: p}},
			Center: guard(center),
		})
	})
}

// MoveUserToCenter joins the user to the center holding code. The user
// lands in the default class as a student whatever role they held before.
// An unknown or malformed code is a NotFoundError.
func (c *Coordinator) MoveUserToCenter(ctx context.Context, actor models.User, userID primitive.ObjectID, code string) error {
	code = accesscode.Normalize(code)
	if !accesscode.Valid(code) {
		return apperr.NotFound("center", code)
	}
	return c.retry(ctx, "move_user_to_center", func(ctx context.Context) error {
		u, err := c.loadUser(ctx, userID)
		if err != nil {
			return err
		}
		// Authorized before the lookup so a denied caller learns nothing
		// about whether the code exists.
		if !accesspolicy.Authorize(actor, accesspolicy.JoinCenter, accesspolicy.Target{User: &u}) {
			return apperr.Denied(accesspolicy.JoinCenter.String())
		}
		center, err := c.centers.GetByCode(ctx, code)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return apperr.NotFound("center", code)
		}
		if err != nil {
			return err
		}

		student := models.Student()
		org := center.ID
		centerCode := center.Code
		def := models.SentinelDefault
		p := docstore.UserPatch{
			Role:           &student,
			OrganizationID: &org,
			Center:         &centerCode,
			Course:         &def,
			ClassName:      &def,
		}
		return c.commit(ctx, docstore.Batch{
			Users:  []docstore.UserWrite{{UserID: u.ID, ExpectVersion: u.Version, Patch: p}},
			Center: guard(center),
		})
	})
}

// ChangeRole sets the user's role after the actor is authorized for the
// transition. A class admin role must name an existing class of the user's
// center and is stored with that class's canonical name.
func (c *Coordinator) ChangeRole(ctx context.Context, actor models.User, userID primitive.ObjectID, role models.Role) error {
	if role.Kind == models.KindClassAdmin && strings.TrimSpace(role.ClassName) == "" {
		return apperr.Invalid("role", apperr.ReasonMalformed)
	}
	return c.retry(ctx, "change_role", func(ctx context.Context) error {
		u, err := c.loadUser(ctx, userID)
		if err != nil {
			return err
		}
		target := accesspolicy.Target{User: &u, NewRole: &role}
		if u.OrganizationID != nil {
			target.CenterID = *u.OrganizationID
		}
		if !accesspolicy.Authorize(actor, accesspolicy.ChangeRole, target) {
			return apperr.Denied(accesspolicy.ChangeRole.String())
		}

		next := role
		var cw *docstore.CenterWrite
		switch role.Kind {
		case models.KindClassAdmin:
			if u.OrganizationID == nil {
				return apperr.Invalid("organization_id", apperr.ReasonRequired)
			}
			center, err := c.loadCenter(ctx, *u.OrganizationID)
			if err != nil {
				return err
			}
			cd, ok := center.ClassByName(role.ClassName)
			if !ok {
				return apperr.Invalid("class", apperr.ReasonAbsent)
			}
			next = models.ClassAdmin(cd.Name)
			// Conflicts with a concurrent delete of the class.
			cw = guard(center)
		case models.KindCenterAdmin:
			if u.OrganizationID == nil {
				return apperr.Invalid("organization_id", apperr.ReasonRequired)
			}
		}

		return c.commit(ctx, docstore.Batch{
			Users:  []docstore.UserWrite{{UserID: u.ID, ExpectVersion: u.Version, Patch: docstore.UserPatch{Role: &next}}},
			Center: cw,
		})
	})
}

// KickFromCenter detaches the user from their center. Users leaving on
// their own are authorized as LeaveCenter.
func (c *Coordinator) KickFromCenter(ctx context.Context, actor models.User, userID primitive.ObjectID) error {
	return c.retry(ctx, "kick_from_center", func(ctx context.Context) error {
		u, err := c.loadUser(ctx, userID)
		if err != nil {
			return err
		}
		action := accesspolicy.KickUser
		if u.ID == actor.ID {
			action = accesspolicy.LeaveCenter
		}
		target := accesspolicy.Target{User: &u}
		if u.OrganizationID != nil {
			target.CenterID = *u.OrganizationID
		}
		if !accesspolicy.Authorize(actor, action, target) {
			return apperr.Denied(action.String())
		}
		return c.commit(ctx, docstore.Batch{
			Users: []docstore.UserWrite{{UserID: u.ID, ExpectVersion: u.Version, Patch: kickPatch()}},
		})
	})
}

func (c *Coordinator) BanUser(ctx context.Context, actor models.User, userID primitive.ObjectID) error {
	return c.setBanned(ctx, actor, userID, true)
}

func (c *Coordinator) UnbanUser(ctx context.Context, actor models.User, userID primitive.ObjectID) error {
	return c.setBanned(ctx, actor, userID, false)
}

func (c *Coordinator) setBanned(ctx context.Context, actor models.User, userID primitive.ObjectID, banned bool) error {
	return c.retry(ctx, "set_banned", func(ctx context.Context) error {
		u, err := c.loadUser(ctx, userID)
		if err != nil {
			return err
		}
		target := accesspolicy.Target{User: &u}
		if u.OrganizationID != nil {
			target.CenterID = *u.OrganizationID
		}
		if !accesspolicy.Authorize(actor, accesspolicy.BanUser, target) {
			return apperr.Denied(accesspolicy.BanUser.String())
		}
		return c.commit(ctx, docstore.Batch{
			Users: []docstore.UserWrite{{UserID: u.ID, ExpectVersion: u.Version, Patch: docstore.UserPatch{Banned: &banned}}},
		})
	})
}
