// internal/domain/models/classdefinition.go
package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Class kinds.
const (
	ClassStandard = "standard" // academic course + section letter, e.g. 4eso-B
	ClassCustom   = "custom"   // free-form named group
)

// ClassDefinition is a class embedded in Center.Classes.
//
// Course/Section are what member users store in users.course and
// users.class_name. For a standard class "4eso-B" that is ("4eso", "B");
// for a custom group it is (CourseManagement, Name).
type ClassDefinition struct {
	ID          primitive.ObjectID `bson:"id" json:"id"`
	Name        string             `bson:"name" json:"name"`
	NameCI      string             `bson:"name_ci" json:"-"`
	Kind        string             `bson:"kind" json:"kind"`
	Course      string             `bson:"course" json:"course"`
	Section     string             `bson:"section" json:"section"`
	ChatEnabled bool               `bson:"chat_enabled" json:"chat_enabled"`
	Pinned      bool               `bson:"is_pinned" json:"is_pinned"`
	ImageURL    string             `bson:"image_url,omitempty" json:"image_url,omitempty"`
	ScheduleRef string             `bson:"schedule_ref,omitempty" json:"schedule_ref,omitempty"`
}
