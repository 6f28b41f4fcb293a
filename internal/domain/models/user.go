// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership sentinels stored in users.course / users.class_name / users.center.
const (
	// SentinelDefault marks a member of a center who is not placed in any class.
	SentinelDefault = "default"
	// SentinelPersonal marks a user who belongs to no center at all.
	SentinelPersonal = "personal"
	// CourseManagement is the course value used by members of custom groups.
	CourseManagement = "management"
)

// User is a member of at most one center.
//
// NOTE:
//   - Center is a denormalized copy of the owning center's access code.
//   - Role is scoped to OrganizationID (and, for class admins, to a class
//     of that center).
type User struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name           string              `bson:"name" json:"name"`
	Email          string              `bson:"email" json:"email"`
	Role           Role                `bson:"role" json:"role"`
	OrganizationID *primitive.ObjectID `bson:"organization_id,omitempty" json:"organization_id,omitempty"`
	Center         string              `bson:"center" json:"center"`
	Course         string              `bson:"course" json:"course"`
	ClassName      string              `bson:"class_name" json:"class_name"`
	Banned         bool                `bson:"is_banned" json:"is_banned"`
	Trophies       int                 `bson:"trophies" json:"trophies"`
	Streak         int                 `bson:"streak" json:"streak"`
	Version        int64               `bson:"version" json:"version"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// BelongsTo reports whether the user is a member of the given center.
func (u User) BelongsTo(centerID primitive.ObjectID) bool {
	return u.OrganizationID != nil && *u.OrganizationID == centerID
}

// FillSentinels sets empty membership fields to their sentinels: "personal"
// for users outside any center, "default" for members without a class.
func (u *User) FillSentinels() {
	sentinel := SentinelDefault
	if u.OrganizationID == nil {
		sentinel = SentinelPersonal
		if u.Center == "" {
			u.Center = SentinelPersonal
		}
	}
	if u.Course == "" {
		u.Course = sentinel
	}
	if u.ClassName == "" {
		u.ClassName = sentinel
	}
}
