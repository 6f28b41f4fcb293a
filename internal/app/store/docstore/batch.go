package docstore

import (
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AnyVersion disables the optimistic version check of a write.
const AnyVersion int64 = -1

// UserPatch lists the user fields a write sets. Nil fields are untouched.
type UserPatch struct {
	Role              *models.Role
	OrganizationID    *primitive.ObjectID
	ClearOrganization bool
	Center            *string
	Course            *string
	ClassName         *string
	Banned            *bool
}

// Applied reports whether u already holds every value the patch sets.
// Reapplying an applied patch is a no-op.
func (p UserPatch) Applied(u models.User) bool {
	if p.Role != nil && !u.Role.Equal(*p.Role) {
		return false
	}
	if p.OrganizationID != nil && !u.BelongsTo(*p.OrganizationID) {
		return false
	}
	if p.ClearOrganization && u.OrganizationID != nil {
		return false
	}
	if p.Center != nil && u.Center != *p.Center {
		return false
	}
	if p.Course != nil && u.Course != *p.Course {
		return false
	}
	if p.ClassName != nil && u.ClassName != *p.ClassName {
		return false
	}
	if p.Banned != nil && u.Banned != *p.Banned {
		return false
	}
	return true
}

// Apply sets the patched fields on u.
func (p UserPatch) Apply(u *models.User) {
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.OrganizationID != nil {
		id := *p.OrganizationID
		u.OrganizationID = &id
	}
	if p.ClearOrganization {
		u.OrganizationID = nil
	}
	if p.Center != nil {
		u.Center = *p.Center
	}
	if p.Course != nil {
		u.Course = *p.Course
	}
	if p.ClassName != nil {
		u.ClassName = *p.ClassName
	}
	if p.Banned != nil {
		u.Banned = *p.Banned
	}
}

// UserWrite patches one user, conditional on ExpectVersion.
type UserWrite struct {
	UserID        primitive.ObjectID
	ExpectVersion int64
	Patch         UserPatch
}

// CenterWrite changes one center, conditional on ExpectVersion. Every
// center write bumps the version, so a write with no changes acts as a
// guard: it fails if the center moved since it was read, and makes any
// concurrent cascade planned against the old version fail in turn.
type CenterWrite struct {
	CenterID      primitive.ObjectID
	ExpectVersion int64
	Code          *string
	RemoveClassID *primitive.ObjectID
	Delete        bool
}

// IsGuard reports whether the write changes nothing but the version.
func (w CenterWrite) IsGuard() bool {
	return w.Code == nil && w.RemoveClassID == nil && !w.Delete
}

// Applied reports whether the center already reflects the write.
// exists is false when the center document is gone. Guards are never
// considered applied.
func (w CenterWrite) Applied(c models.Center, exists bool) bool {
	if w.IsGuard() {
		return false
	}
	if w.Delete {
		return !exists
	}
	if !exists {
		return false
	}
	if w.Code != nil && c.Code != *w.Code {
		return false
	}
	if w.RemoveClassID != nil {
		if _, ok := c.ClassByID(*w.RemoveClassID); ok {
			return false
		}
	}
	return true
}

// Batch is one atomic commit: user writes plus at most one center write.
type Batch struct {
	Users  []UserWrite
	Center *CenterWrite
}

// Len is the number of document writes in the batch.
func (b Batch) Len() int {
	n := len(b.Users)
	if b.Center != nil {
		n++
	}
	return n
}

// Chunk splits user writes into batches of at most max writes each and
// puts the center write (if any) in the last batch, so the center only
// changes once every user write before it has committed.
func Chunk(writes []UserWrite, center *CenterWrite, max int) []Batch {
	if max < 2 {
		max = 2
	}
	var out []Batch
	for len(writes) > 0 {
		n := max
		if n > len(writes) {
			n = len(writes)
		}
		out = append(out, Batch{Users: writes[:n:n]})
		writes = writes[n:]
	}
	if center != nil {
		if len(out) > 0 && out[len(out)-1].Len() < max {
			out[len(out)-1].Center = center
		} else {
			out = append(out, Batch{Center: center})
		}
	}
	return out
}

// StrPtr is a convenience for building patches.
func StrPtr(s string) *string { return &s }

// BoolPtr is a convenience for building patches.
func BoolPtr(b bool) *bool { return &b }

// RolePtr is a convenience for building patches.
func RolePtr(r models.Role) *models.Role { return &r }
