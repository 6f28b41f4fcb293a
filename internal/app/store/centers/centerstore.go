// internal/app/store/centers/centerstore.go
package centerstore

import (
	"context"
	"time"

	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/app/system/paging"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("centers")}
}

var _ docstore.Centers = (*Store)(nil)

func (s *Store) Create(ctx context.Context, c models.Center) (models.Center, error) {
	now := time.Now().UTC()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	c.NameCI = text.Fold(c.Name)
	if c.Classes == nil {
		c.Classes = []models.ClassDefinition{}
	}
	c.Version = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		return models.Center{}, err
	}
	return c, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Center, error) {
	var c models.Center
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return models.Center{}, err
	}
	return c, nil
}

// GetByCode loads the center holding an access code. Codes are not
// guaranteed unique; on a collision the oldest center wins.
func (s *Store) GetByCode(ctx context.Context, code string) (models.Center, error) {
	var c models.Center
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})
	if err := s.c.FindOne(ctx, bson.M{"code": code}, opts).Decode(&c); err != nil {
		return models.Center{}, err
	}
	return c, nil
}

// CodeExists reports whether any center currently holds code.
func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{"code": code}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns all centers, pinned first, then by folded name.
func (s *Store) List(ctx context.Context) ([]models.Center, error) {
	opts := options.Find().SetSort(bson.D{{Key: "is_pinned", Value: -1}, {Key: "name_ci", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Center
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPage returns one keyset window of centers ordered by folded name.
func (s *Store) ListPage(ctx context.Context, k paging.Keyset) ([]models.Center, error) {
	filter := bson.M{}
	if win := k.Filter("name_ci"); win != nil {
		filter = win
	}
	cur, err := s.c.Find(ctx, filter, k.FindOptions("name_ci"))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Center
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateInfo sets the directly editable fields. None of them is copied onto
// users, so no cascade is needed.
func (s *Store) UpdateInfo(ctx context.Context, id primitive.ObjectID, info docstore.CenterInfo) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if info.Name != nil {
		set["name"] = *info.Name
		set["name_ci"] = text.Fold(*info.Name)
	}
	if info.ImageURL != nil {
		set["image_url"] = *info.ImageURL
	}
	if info.Pinned != nil {
		set["is_pinned"] = *info.Pinned
	}
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set, "$inc": bson.M{"version": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// AddClass appends cd to the center's class list unless a class with the
// same folded name exists. The check and the push are one conditional
// update, so two concurrent adds of the same name cannot both succeed.
func (s *Store) AddClass(ctx context.Context, centerID primitive.ObjectID, cd models.ClassDefinition) error {
	filter := bson.M{
		"_id":             centerID,
		"classes.name_ci": bson.M{"$ne": cd.NameCI},
	}
	update := bson.M{
		"$push": bson.M{"classes": cd},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
		"$inc":  bson.M{"version": 1},
	}
	res, err := s.c.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	// Either the center is gone or the name is taken.
	if err := s.c.FindOne(ctx, bson.M{"_id": centerID}).Err(); err != nil {
		return err
	}
	return docstore.ErrDuplicateClass
}

// UpdateClass edits one embedded class, addressed by its stable id.
func (s *Store) UpdateClass(ctx context.Context, centerID, classID primitive.ObjectID, info docstore.ClassInfo) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if info.ChatEnabled != nil {
		set["classes.$.chat_enabled"] = *info.ChatEnabled
	}
	if info.Pinned != nil {
		set["classes.$.is_pinned"] = *info.Pinned
	}
	if info.ImageURL != nil {
		set["classes.$.image_url"] = *info.ImageURL
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": centerID, "classes.id": classID},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Delete removes a center document only. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
