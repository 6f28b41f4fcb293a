// internal/domain/models/cascade.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Cascade kinds.
const (
	CascadeCodeChange   = "code_change"
	CascadeClassDelete  = "class_delete"
	CascadeCenterDelete = "center_delete"
)

// Cascade statuses.
const (
	CascadeRunning = "running"
	CascadeDone    = "done"
	CascadeFailed  = "failed"
	// CascadeAborted marks a cascade that is never resumed: it failed
	// before committing any batch, its center vanished, or it ran out of
	// attempts.
	CascadeAborted = "aborted"
)

// Cascade is the persisted cursor of a multi-batch operation. It is written
// before the first batch and updated after every committed batch, so an
// interrupted cascade can be found and resumed.
type Cascade struct {
	ID       string             `bson:"_id" json:"id"`
	Kind     string             `bson:"kind" json:"kind"`
	CenterID primitive.ObjectID `bson:"center_id" json:"center_id"`

	// Parameters, by kind.
	NewCode   string             `bson:"new_code,omitempty" json:"new_code,omitempty"`
	ClassID   primitive.ObjectID `bson:"class_id,omitempty" json:"class_id,omitempty"`
	ClassName string             `bson:"class_name,omitempty" json:"class_name,omitempty"`

	Status           string `bson:"status" json:"status"`
	BatchesCommitted int    `bson:"batches_committed" json:"batches_committed"`
	BatchesTotal     int    `bson:"batches_total" json:"batches_total"`
	Attempts         int    `bson:"attempts" json:"attempts"`
	LastError        string `bson:"last_error,omitempty" json:"last_error,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
