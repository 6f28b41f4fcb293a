// Package docstore defines the persistence contracts of the membership
// engine and the typed batch model used to commit cascades.
//
// Two implementations exist: the MongoDB stores under internal/app/store
// and the in-memory store in internal/app/store/memstore. Both report a
// missing document with mongo.ErrNoDocuments.
package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/centerhub/internal/app/system/paging"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrDuplicateClass is returned by Centers.AddClass when the center already
// has a class with the same case-insensitive name.
var ErrDuplicateClass = errors.New("a class with this name already exists in the center")

// CenterInfo holds the directly editable center fields. Nil fields are left unchanged.
type CenterInfo struct {
	Name     *string
	ImageURL *string
	Pinned   *bool
}

// ClassInfo holds the directly editable class fields. Nil fields are left unchanged.
type ClassInfo struct {
	ChatEnabled *bool
	Pinned      *bool
	ImageURL    *string
}

// Membership is the set of fields SetMembership writes together.
// A nil OrganizationID unsets users.organization_id.
type Membership struct {
	OrganizationID *primitive.ObjectID
	Center         string
	Course         string
	ClassName      string
}

// Centers persists center documents and their embedded classes.
type Centers interface {
	Create(ctx context.Context, c models.Center) (models.Center, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Center, error)
	GetByCode(ctx context.Context, code string) (models.Center, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context) ([]models.Center, error)
	// ListPage returns up to k.Limit() centers ordered by name_ci in k's
	// direction, starting past k's cursor.
	ListPage(ctx context.Context, k paging.Keyset) ([]models.Center, error)
	UpdateInfo(ctx context.Context, id primitive.ObjectID, info CenterInfo) error
	AddClass(ctx context.Context, centerID primitive.ObjectID, cd models.ClassDefinition) error
	UpdateClass(ctx context.Context, centerID, classID primitive.ObjectID, info ClassInfo) error
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
}

// Users persists user membership and role fields.
type Users interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	FindByOrganization(ctx context.Context, centerID primitive.ObjectID) ([]models.User, error)
	FindByClass(ctx context.Context, centerID primitive.ObjectID, course, className string) ([]models.User, error)
	FindByAccessCode(ctx context.Context, code string) ([]models.User, error)
	// FindClassAdmins returns users of the center whose role is ClassAdmin(className).
	FindClassAdmins(ctx context.Context, centerID primitive.ObjectID, className string) ([]models.User, error)
	// FindCodeMismatch returns users of the center whose center field is not code.
	FindCodeMismatch(ctx context.Context, centerID primitive.ObjectID, code string) ([]models.User, error)
	SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) error
	SetMembership(ctx context.Context, id primitive.ObjectID, m Membership) error
	SetBanned(ctx context.Context, id primitive.ObjectID, banned bool) error
}

// Cascades persists cascade cursors.
type Cascades interface {
	Create(ctx context.Context, c models.Cascade) error
	Get(ctx context.Context, id string) (models.Cascade, error)
	// Start marks the cascade running and increments its attempt counter.
	Start(ctx context.Context, id string) error
	Progress(ctx context.Context, id string, committed, total int) error
	Finish(ctx context.Context, id, status, lastError string) error
	// ListStale returns running or failed cascades not updated since before.
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Cascade, error)
	// Supersede marks every running or failed cascade of kind for the
	// center as aborted and returns how many it changed.
	Supersede(ctx context.Context, centerID primitive.ObjectID, kind, reason string) (int, error)
}

// BatchWriter commits a Batch atomically: every write applies or none does.
// A write whose version check fails, and whose document does not already
// hold the target values, aborts the batch with apperr.ErrConflict.
type BatchWriter interface {
	Commit(ctx context.Context, b Batch) error
}

// Store bundles the contracts the engine is built on.
type Store struct {
	Centers  Centers
	Users    Users
	Cascades Cascades
	Writer   BatchWriter
}
