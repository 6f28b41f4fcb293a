// internal/domain/models/center.go
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Center is the top-level tenant. Its access code is copied onto every
// member user (users.center), so any change to Code must go through the
// cascade coordinator.
//
// NOTE:
//   - Classes are embedded and ordered. Each element carries a stable ID so
//     single-class updates can target it with the positional operator
//     instead of rewriting the whole array.
//   - Version is bumped on every write and used for optimistic checks.
type Center struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Name      string             `bson:"name" json:"name"`
	NameCI    string             `bson:"name_ci" json:"name_ci"`
	Code      string             `bson:"code" json:"code"`
	Classes   []ClassDefinition  `bson:"classes" json:"classes"`
	Pinned    bool               `bson:"is_pinned" json:"is_pinned"`
	ImageURL  string             `bson:"image_url,omitempty" json:"image_url,omitempty"`
	Version   int64              `bson:"version" json:"version"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// ClassByID returns the embedded class with the given ID.
func (c Center) ClassByID(id primitive.ObjectID) (ClassDefinition, bool) {
	for _, cd := range c.Classes {
		if cd.ID == id {
			return cd, true
		}
	}
	return ClassDefinition{}, false
}

// ClassByName returns the embedded class whose name matches, ignoring case.
func (c Center) ClassByName(name string) (ClassDefinition, bool) {
	for _, cd := range c.Classes {
		if strings.EqualFold(cd.Name, name) {
			return cd, true
		}
	}
	return ClassDefinition{}, false
}

// ClassByMemberKey returns the class users reference with (course, className).
func (c Center) ClassByMemberKey(course, className string) (ClassDefinition, bool) {
	for _, cd := range c.Classes {
		if strings.EqualFold(cd.Course, course) && strings.EqualFold(cd.Section, className) {
			return cd, true
		}
	}
	return ClassDefinition{}, false
}
