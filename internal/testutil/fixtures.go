package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/centerhub/internal/app/system/classname"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data in MongoDB.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateCenter inserts a center with the given classes, canonicalized.
func (f *Fixtures) CreateCenter(ctx context.Context, name, code string, classes ...models.ClassDefinition) models.Center {
	f.t.Helper()

	c := NewCenter(name, code, classes...)
	if _, err := f.db.Collection("centers").InsertOne(ctx, c); err != nil {
		f.t.Fatalf("failed to create center: %v", err)
	}
	return c
}

// CreateUser inserts a user. A nil center yields a personal user.
func (f *Fixtures) CreateUser(ctx context.Context, name string, role models.Role, center *models.Center, course, className string) models.User {
	f.t.Helper()

	u := NewUser(name, role, center, course, className)
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create user: %v", err)
	}
	return u
}

// NewCenter builds a center document without persisting it.
func NewCenter(name, code string, classes ...models.ClassDefinition) models.Center {
	now := time.Now().UTC()
	defs := make([]models.ClassDefinition, 0, len(classes))
	for _, cd := range classes {
		if cd.ID.IsZero() {
			cd.ID = primitive.NewObjectID()
		}
		defs = append(defs, classname.Define(cd))
	}
	return models.Center{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameCI:    text.Fold(name),
		Code:      code,
		Classes:   defs,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewUser builds a user document without persisting it.
func NewUser(name string, role models.Role, center *models.Center, course, className string) models.User {
	now := time.Now().UTC()
	u := models.User{
		ID:        primitive.NewObjectID(),
		Name:      name,
		Email:     text.Fold(name) + "@test.local",
		Role:      role,
		Course:    course,
		ClassName: className,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if center != nil {
		id := center.ID
		u.OrganizationID = &id
		u.Center = center.Code
	}
	u.FillSentinels()
	return u
}

// StandardClass is shorthand for a standard class definition like "4ESO-B".
func StandardClass(name string) models.ClassDefinition {
	return models.ClassDefinition{Name: name, Kind: models.ClassStandard}
}

// CustomClass is shorthand for a custom group definition.
func CustomClass(name string) models.ClassDefinition {
	return models.ClassDefinition{Name: name, Kind: models.ClassCustom}
}
