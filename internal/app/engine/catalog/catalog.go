// Package catalog manages the class list embedded in a center.
//
// Adding and editing a class touches only the center document. Removing a
// class always goes through the cascade coordinator, since member users
// reference the class by (course, class_name).
package catalog

import (
	"context"
	"errors"

	"github.com/dalemusser/centerhub/internal/app/policy/accesspolicy"
	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/classname"
	"github.com/dalemusser/centerhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ClassRemover runs the class deletion cascade. Implemented by coordinator.Coordinator.
type ClassRemover interface {
	DeleteClassCascade(ctx context.Context, centerID, classID primitive.ObjectID) error
}

type Catalog struct {
	centers docstore.Centers
	remover ClassRemover
	log     *zap.Logger
}

func New(centers docstore.Centers, remover ClassRemover, log *zap.Logger) *Catalog {
	return &Catalog{centers: centers, remover: remover, log: log}
}

func authorize(actor models.User, centerID primitive.ObjectID) error {
	if !accesspolicy.Authorize(actor, accesspolicy.ManageClass, accesspolicy.Target{CenterID: centerID}) {
		return apperr.Denied(accesspolicy.ManageClass.String())
	}
	return nil
}

func (c *Catalog) center(ctx context.Context, id primitive.ObjectID) (models.Center, error) {
	center, err := c.centers.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Center{}, apperr.NotFound("center", id.Hex())
	}
	return center, err
}

// AddStandardClass adds the class COURSE-LETTER, e.g. ("4eso", "b") -> "4eso-B".
func (c *Catalog) AddStandardClass(ctx context.Context, actor models.User, centerID primitive.ObjectID, course, letter string) (models.ClassDefinition, error) {
	name := classname.Standard(course, letter)
	if !classname.IsStandard(name) {
		return models.ClassDefinition{}, apperr.Invalid("name", apperr.ReasonMalformed)
	}
	return c.add(ctx, actor, centerID, name)
}

// AddCustomClass adds a free-form group. A name that happens to match the
// standard pattern is stored as that standard class.
func (c *Catalog) AddCustomClass(ctx context.Context, actor models.User, centerID primitive.ObjectID, name string) (models.ClassDefinition, error) {
	clean := htmlsanitize.PlainText(name)
	if clean == "" {
		return models.ClassDefinition{}, apperr.Invalid("name", apperr.ReasonRequired)
	}
	return c.add(ctx, actor, centerID, clean)
}

// AddClass adds a class by name, standard or custom.
func (c *Catalog) AddClass(ctx context.Context, actor models.User, centerID primitive.ObjectID, name string) (models.ClassDefinition, error) {
	if course, letter, ok := classname.ParseStandard(name); ok {
		return c.AddStandardClass(ctx, actor, centerID, course, letter)
	}
	return c.AddCustomClass(ctx, actor, centerID, name)
}

func (c *Catalog) add(ctx context.Context, actor models.User, centerID primitive.ObjectID, name string) (models.ClassDefinition, error) {
	if err := authorize(actor, centerID); err != nil {
		return models.ClassDefinition{}, err
	}
	cd := classname.Define(models.ClassDefinition{ID: primitive.NewObjectID(), Name: name})

	err := c.centers.AddClass(ctx, centerID, cd)
	switch {
	case errors.Is(err, docstore.ErrDuplicateClass):
		return models.ClassDefinition{}, apperr.Invalid("name", apperr.ReasonDuplicate)
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.ClassDefinition{}, apperr.NotFound("center", centerID.Hex())
	case err != nil:
		return models.ClassDefinition{}, err
	}

	c.log.Info("class added",
		zap.String("center_id", centerID.Hex()),
		zap.String("class", cd.Name),
		zap.String("kind", cd.Kind))
	return cd, nil
}

// class loads the center and the class, after authorizing the actor.
func (c *Catalog) class(ctx context.Context, actor models.User, centerID, classID primitive.ObjectID) (models.ClassDefinition, error) {
	if err := authorize(actor, centerID); err != nil {
		return models.ClassDefinition{}, err
	}
	center, err := c.center(ctx, centerID)
	if err != nil {
		return models.ClassDefinition{}, err
	}
	cd, ok := center.ClassByID(classID)
	if !ok {
		return models.ClassDefinition{}, apperr.NotFound("class", classID.Hex())
	}
	return cd, nil
}

func (c *Catalog) update(ctx context.Context, centerID, classID primitive.ObjectID, info docstore.ClassInfo) error {
	err := c.centers.UpdateClass(ctx, centerID, classID, info)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound("class", classID.Hex())
	}
	return err
}

// SetClassImage sets or, with an empty url, clears the class image.
func (c *Catalog) SetClassImage(ctx context.Context, actor models.User, centerID, classID primitive.ObjectID, url string) error {
	if _, err := c.class(ctx, actor, centerID, classID); err != nil {
		return err
	}
	url = htmlsanitize.PlainText(url)
	return c.update(ctx, centerID, classID, docstore.ClassInfo{ImageURL: &url})
}

// TogglePinned flips the class pinned flag and returns the new value.
func (c *Catalog) TogglePinned(ctx context.Context, actor models.User, centerID, classID primitive.ObjectID) (bool, error) {
	cd, err := c.class(ctx, actor, centerID, classID)
	if err != nil {
		return false, err
	}
	pinned := !cd.Pinned
	return pinned, c.update(ctx, centerID, classID, docstore.ClassInfo{Pinned: &pinned})
}

// ToggleChatEnabled flips the class chat flag and returns the new value.
func (c *Catalog) ToggleChatEnabled(ctx context.Context, actor models.User, centerID, classID primitive.ObjectID) (bool, error) {
	cd, err := c.class(ctx, actor, centerID, classID)
	if err != nil {
		return false, err
	}
	enabled := !cd.ChatEnabled
	return enabled, c.update(ctx, centerID, classID, docstore.ClassInfo{ChatEnabled: &enabled})
}

// RemoveClass deletes the class and detaches its members.
func (c *Catalog) RemoveClass(ctx context.Context, actor models.User, centerID, classID primitive.ObjectID) error {
	if err := authorize(actor, centerID); err != nil {
		return err
	}
	return c.remover.DeleteClassCascade(ctx, centerID, classID)
}

// List returns the classes of a center in their stored order.
func (c *Catalog) List(ctx context.Context, centerID primitive.ObjectID) ([]models.ClassDefinition, error) {
	center, err := c.center(ctx, centerID)
	if err != nil {
		return nil, err
	}
	return center.Classes, nil
}
