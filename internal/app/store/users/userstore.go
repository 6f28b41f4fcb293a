package userstore

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

var _ docstore.Users = (*Store)(nil)

// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
var ErrDuplicateEmail = errors.New("a user with this email already exists")

// Create inserts a user. Users outside any center get the "personal"
// sentinels; members of a center without a class get "default".
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.FillSentinels()
	now := time.Now().UTC()
	u.Version = 0
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// GetByEmail loads a user by (case-insensitive) email.
func (s *Store) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.c.FindOne(ctx, bson.M{"email": email}).Decode(&u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.User, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FindByOrganization(ctx context.Context, centerID primitive.ObjectID) ([]models.User, error) {
	return s.find(ctx, bson.M{"organization_id": centerID})
}

func (s *Store) FindByClass(ctx context.Context, centerID primitive.ObjectID, course, className string) ([]models.User, error) {
	return s.find(ctx, bson.M{
		"organization_id": centerID,
		"course":          course,
		"class_name":      className,
	})
}

func (s *Store) FindByAccessCode(ctx context.Context, code string) ([]models.User, error) {
	return s.find(ctx, bson.M{"center": code})
}

// FindClassAdmins matches role "admin-<className>" ignoring case.
func (s *Store) FindClassAdmins(ctx context.Context, centerID primitive.ObjectID, className string) ([]models.User, error) {
	role := models.ClassAdmin(className).String()
	return s.find(ctx, bson.M{
		"organization_id": centerID,
		"role":            primitive.Regex{Pattern: "^" + regexp.QuoteMeta(role) + "$", Options: "i"},
	})
}

func (s *Store) FindCodeMismatch(ctx context.Context, centerID primitive.ObjectID, code string) ([]models.User, error) {
	return s.find(ctx, bson.M{
		"organization_id": centerID,
		"center":          bson.M{"$ne": code},
	})
}

func (s *Store) update(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	update["$inc"] = bson.M{"version": 1}
	res, err := s.c.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// SetRole writes the role string only.
func (s *Store) SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) error {
	return s.update(ctx, id, bson.M{"$set": bson.M{
		"role":       role,
		"updated_at": time.Now().UTC(),
	}})
}

// SetMembership writes organization, center code, course and class together.
func (s *Store) SetMembership(ctx context.Context, id primitive.ObjectID, m docstore.Membership) error {
	set := bson.M{
		"center":     m.Center,
		"course":     m.Course,
		"class_name": m.ClassName,
		"updated_at": time.Now().UTC(),
	}
	update := bson.M{"$set": set}
	if m.OrganizationID != nil {
		set["organization_id"] = *m.OrganizationID
	} else {
		update["$unset"] = bson.M{"organization_id": ""}
	}
	return s.update(ctx, id, update)
}

func (s *Store) SetBanned(ctx context.Context, id primitive.ObjectID, banned bool) error {
	return s.update(ctx, id, bson.M{"$set": bson.M{
		"is_banned":  banned,
		"updated_at": time.Now().UTC(),
	}})
}
