// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each collection's index set is reconciled
idempotently. Errors are aggregated so every problem is visible and startup
can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string
	for _, coll := range []string{"centers", "users", "cascades"} {
		if err := ensureIndexSet(ctx, db.Collection(coll), Desired[coll]); err != nil {
			problems = append(problems, coll+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Desired lists the indexes EnsureAll maintains, by collection.
var Desired = map[string][]mongo.IndexModel{
	"centers": {
		// Join by access code. Codes may collide, so not unique; ties
		// resolve to the oldest center via _id.
		{
			Keys:    bson.D{{Key: "code", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_centers_code__id"),
		},
		// Listing: pinned first, then folded name.
		{
			Keys:    bson.D{{Key: "is_pinned", Value: -1}, {Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_centers_pinned_nameci__id"),
		},
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetName("idx_centers_nameci"),
		},
	},
	"users": {
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
		},
		// Center sweeps and member lists.
		{
			Keys:    bson.D{{Key: "organization_id", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_users_org__id"),
		},
		// Class sweeps.
		{
			Keys: bson.D{
				{Key: "organization_id", Value: 1},
				{Key: "course", Value: 1},
				{Key: "class_name", Value: 1},
			},
			Options: options.Index().SetName("idx_users_org_course_class"),
		},
		// Lookups by the denormalized access code.
		{
			Keys:    bson.D{{Key: "center", Value: 1}},
			Options: options.Index().SetName("idx_users_center"),
		},
	},
	"cascades": {
		// Resumer scan: unfinished cascades, oldest first.
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("idx_cascades_status_updated"),
		},
		{
			Keys:    bson.D{{Key: "center_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_cascades_center_created"),
		},
	},
}

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(b *bool) bool { return b != nil && *b }

// isDuplicateKeyErr is a best-effort E11000 detector that works across vendors.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

func listIndexes(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	existing := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing, cur.Err()
}

// ensureIndexSet reconciles the desired indexes of one collection. An index
// with the same keys is reused when its options and name match and is
// dropped and recreated otherwise.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, desired []mongo.IndexModel) error {
	existing, err := listIndexes(ctx, coll)
	if err != nil {
		// A collection that does not exist yet lists as an error on some
		// servers; creating the indexes creates it.
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range desired {
		name := *m.Options.Name
		unique := isUnique(m.Options.Unique)
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := zap.L().With(
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", unique))

		if ex, ok := existing[sig]; ok {
			if isUnique(ex.Unique) == unique && ex.Name == name {
				log.Debug("reusing existing index")
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				log.Warn("drop existing index failed", zap.String("existing", ex.Name), zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if unique && isDuplicateKeyErr(err) {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			log.Warn("index ensure failed", zap.Error(err))
			continue
		}
		log.Info("index ensured", zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
