// Package directory answers membership queries and applies single-document
// user field updates.
//
// The setters here write exactly one user and never fan out. Writes that
// have to keep several documents consistent belong to the coordinator.
package directory

import (
	"context"
	"errors"

	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/app/system/accesscode"
	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Directory struct {
	users docstore.Users
	log   *zap.Logger
}

func New(users docstore.Users, log *zap.Logger) *Directory {
	return &Directory{users: users, log: log}
}

func userNotFound(err error, id primitive.ObjectID) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound("user", id.Hex())
	}
	return err
}

func (d *Directory) Get(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	u, err := d.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, userNotFound(err, id)
	}
	return u, nil
}

// FindByOrganization returns every member of the center.
func (d *Directory) FindByOrganization(ctx context.Context, centerID primitive.ObjectID) ([]models.User, error) {
	return d.users.FindByOrganization(ctx, centerID)
}

// FindByClass returns the members of the center placed in (course, className).
func (d *Directory) FindByClass(ctx context.Context, centerID primitive.ObjectID, course, className string) ([]models.User, error) {
	if course == "" || className == "" {
		return nil, apperr.Invalid("class", apperr.ReasonRequired)
	}
	return d.users.FindByClass(ctx, centerID, course, className)
}

// FindByAccessCode returns the users whose denormalized center code is code.
func (d *Directory) FindByAccessCode(ctx context.Context, code string) ([]models.User, error) {
	code = accesscode.Normalize(code)
	if !accesscode.Valid(code) {
		return nil, apperr.Invalid("code", apperr.ReasonMalformed)
	}
	return d.users.FindByAccessCode(ctx, code)
}

func (d *Directory) SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) error {
	if err := d.users.SetRole(ctx, id, role); err != nil {
		return userNotFound(err, id)
	}
	d.log.Debug("user role set", zap.String("user_id", id.Hex()), zap.String("role", role.String()))
	return nil
}

// SetMembership writes organization, center code, course and class together.
// Empty course and class fields are stored as their sentinels.
func (d *Directory) SetMembership(ctx context.Context, id primitive.ObjectID, m docstore.Membership) error {
	u := models.User{OrganizationID: m.OrganizationID, Center: m.Center, Course: m.Course, ClassName: m.ClassName}
	u.FillSentinels()
	m.Center, m.Course, m.ClassName = u.Center, u.Course, u.ClassName
	if m.OrganizationID != nil && !accesscode.Valid(m.Center) {
		return apperr.Invalid("center", apperr.ReasonMalformed)
	}
	if err := d.users.SetMembership(ctx, id, m); err != nil {
		return userNotFound(err, id)
	}
	d.log.Debug("user membership set", zap.String("user_id", id.Hex()))
	return nil
}

func (d *Directory) SetBanned(ctx context.Context, id primitive.ObjectID, banned bool) error {
	if err := d.users.SetBanned(ctx, id, banned); err != nil {
		return userNotFound(err, id)
	}
	d.log.Debug("user ban set", zap.String("user_id", id.Hex()), zap.Bool("banned", banned))
	return nil
}
