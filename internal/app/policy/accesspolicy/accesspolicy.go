// internal/app/policy/accesspolicy/accesspolicy.go
package accesspolicy

import (
	"strings"

	"github.com/dalemusser/centerhub/internal/app/system/classname"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Action is something an actor asks to do to a center, class or user.
type Action int

const (
	CreateCenter Action = iota + 1
	ManageCenter        // rename, image, pin
	DeleteCenter
	RotateCode
	ManageClass // add, remove, toggle, image
	ManageUser  // generic edits of a user's profile
	ChangeRole
	BanUser
	MoveUser    // move between classes of the same center
	KickUser    // remove a user from their center
	JoinCenter  // enter a center by access code
	LeaveCenter // leave the current center
)

var actionNames = map[Action]string{
	CreateCenter: "create_center",
	ManageCenter: "manage_center",
	DeleteCenter: "delete_center",
	RotateCode:   "rotate_code",
	ManageClass:  "manage_class",
	ManageUser:   "manage_user",
	ChangeRole:   "change_role",
	BanUser:      "ban_user",
	MoveUser:     "move_user",
	KickUser:     "kick_user",
	JoinCenter:   "join_center",
	LeaveCenter:  "leave_center",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// Target describes what an action applies to. CenterID is required for
// center and class actions; User is required for user actions; NewRole is
// the requested role for ChangeRole.
type Target struct {
	CenterID primitive.ObjectID
	User     *models.User
	NewRole  *models.Role
}

// Rank orders roles: GlobalAdmin > CenterAdmin > ClassAdmin > Student.
func Rank(r models.Role) int {
	switch r.Kind {
	case models.KindGlobalAdmin:
		return 3
	case models.KindCenterAdmin:
		return 2
	case models.KindClassAdmin:
		return 1
	case models.KindStudent:
		return 0
	}
	return 0
}

// Outranks reports whether a ranks strictly above b.
func Outranks(a, b models.Role) bool {
	return Rank(a) > Rank(b)
}

// Authorize reports whether actor may perform action on target.
// It has no side effects and returns false for any combination not
// explicitly allowed below. Banned actors are denied everything.
func Authorize(actor models.User, action Action, target Target) bool {
	if actor.Banned {
		return false
	}

	switch action {
	case JoinCenter, LeaveCenter:
		if target.User == nil {
			return false
		}
		return target.User.ID == actor.ID || actor.Role.Kind == models.KindGlobalAdmin
	}

	switch actor.Role.Kind {
	case models.KindGlobalAdmin:
		return authorizeGlobal(action, target)
	case models.KindCenterAdmin:
		return authorizeCenterAdmin(actor, action, target)
	case models.KindClassAdmin:
		return authorizeClassAdmin(actor, action, target)
	case models.KindStudent:
		return false
	}
	return false
}

func isUserAction(a Action) bool {
	switch a {
	case ManageUser, ChangeRole, BanUser, MoveUser, KickUser:
		return true
	}
	return false
}

func authorizeGlobal(action Action, target Target) bool {
	switch action {
	case CreateCenter, ManageCenter, DeleteCenter, RotateCode, ManageClass:
		return true
	}
	if isUserAction(action) {
		return target.User != nil
	}
	return false
}

func authorizeCenterAdmin(actor models.User, action Action, target Target) bool {
	if actor.OrganizationID == nil {
		return false
	}
	org := *actor.OrganizationID

	switch action {
	case ManageCenter, RotateCode, ManageClass:
		return target.CenterID == org
	case CreateCenter, DeleteCenter:
		return false
	}

	if !isUserAction(action) || target.User == nil {
		return false
	}
	u := target.User
	if !u.BelongsTo(org) || u.Role.Kind == models.KindGlobalAdmin {
		return false
	}
	if action == ChangeRole {
		return target.NewRole != nil && !Outranks(*target.NewRole, actor.Role)
	}
	return true
}

func authorizeClassAdmin(actor models.User, action Action, target Target) bool {
	if actor.OrganizationID == nil || target.User == nil {
		return false
	}
	switch action {
	case ManageUser, ChangeRole, BanUser, KickUser:
	default:
		return false
	}

	u := target.User
	if !u.BelongsTo(*actor.OrganizationID) || u.Role.IsAdmin() {
		return false
	}
	course, section := classname.MemberKey(models.ClassDefinition{Name: actor.Role.ClassName})
	if !strings.EqualFold(u.Course, course) || !strings.EqualFold(u.ClassName, section) {
		return false
	}

	if action == ChangeRole {
		if target.NewRole == nil {
			return false
		}
		nr := *target.NewRole
		return nr.Kind == models.KindStudent || nr.IsClassAdminOf(actor.Role.ClassName)
	}
	return true
}
