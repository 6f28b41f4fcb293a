package cascadestore

import (
	"context"
	"time"

	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("cascades")}
}

var _ docstore.Cascades = (*Store)(nil)

func (s *Store) Create(ctx context.Context, c models.Cascade) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := s.c.InsertOne(ctx, c)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (models.Cascade, error) {
	var c models.Cascade
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return models.Cascade{}, err
	}
	return c, nil
}

func (s *Store) update(ctx context.Context, id string, update bson.M) error {
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
		update["$set"] = set
	}
	set["updated_at"] = time.Now().UTC()

	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *Store) Start(ctx context.Context, id string) error {
	return s.update(ctx, id, bson.M{
		"$set": bson.M{"status": models.CascadeRunning},
		"$inc": bson.M{"attempts": 1},
	})
}

func (s *Store) Progress(ctx context.Context, id string, committed, total int) error {
	return s.update(ctx, id, bson.M{"$set": bson.M{
		"batches_committed": committed,
		"batches_total":     total,
	}})
}

func (s *Store) Finish(ctx context.Context, id, status, lastError string) error {
	return s.update(ctx, id, bson.M{"$set": bson.M{
		"status":     status,
		"last_error": lastError,
	}})
}

// Supersede aborts the unfinished cascades of kind for the center.
func (s *Store) Supersede(ctx context.Context, centerID primitive.ObjectID, kind, reason string) (int, error) {
	res, err := s.c.UpdateMany(ctx, bson.M{
		"center_id": centerID,
		"kind":      kind,
		"status":    bson.M{"$in": []string{models.CascadeRunning, models.CascadeFailed}},
	}, bson.M{"$set": bson.M{
		"status":     models.CascadeAborted,
		"last_error": reason,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

// ListStale returns running or failed cascades last touched before the
// cutoff, oldest first.
func (s *Store) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Cascade, error) {
	filter := bson.M{
		"status":     bson.M{"$in": []string{models.CascadeRunning, models.CascadeFailed}},
		"updated_at": bson.M{"$lt": before},
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Cascade
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
