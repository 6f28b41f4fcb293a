// Package batchstore commits docstore batches to MongoDB inside a
// multi-document transaction.
package batchstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/txn"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Writer struct {
	db      *mongo.Database
	users   *mongo.Collection
	centers *mongo.Collection
	log     *zap.Logger
}

func New(db *mongo.Database, log *zap.Logger) *Writer {
	return &Writer{
		db:      db,
		users:   db.Collection("users"),
		centers: db.Collection("centers"),
		log:     log,
	}
}

var _ docstore.BatchWriter = (*Writer)(nil)

// Commit applies every write of b in one transaction. Each write is filtered
// on its expected version; when nothing matches, the document is re-read to
// tell an already-applied write (skipped) from a real conflict.
func (w *Writer) Commit(ctx context.Context, b docstore.Batch) error {
	return txn.Run(ctx, w.db, w.log, func(ctx context.Context) error {
		now := time.Now().UTC()
		seen := make(map[primitive.ObjectID]bool, len(b.Users))
		for _, uw := range b.Users {
			// A second write to the same user sees the first one's version.
			if seen[uw.UserID] {
				uw.ExpectVersion = docstore.AnyVersion
			}
			seen[uw.UserID] = true
			if err := w.writeUser(ctx, uw, now); err != nil {
				return fmt.Errorf("user %s: %w", uw.UserID.Hex(), err)
			}
		}
		if b.Center != nil {
			if err := w.writeCenter(ctx, *b.Center, now); err != nil {
				return fmt.Errorf("center %s: %w", b.Center.CenterID.Hex(), err)
			}
		}
		return nil
	})
}

func userUpdate(p docstore.UserPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if p.Role != nil {
		set["role"] = *p.Role
	}
	if p.OrganizationID != nil {
		set["organization_id"] = *p.OrganizationID
	}
	if p.Center != nil {
		set["center"] = *p.Center
	}
	if p.Course != nil {
		set["course"] = *p.Course
	}
	if p.ClassName != nil {
		set["class_name"] = *p.ClassName
	}
	if p.Banned != nil {
		set["is_banned"] = *p.Banned
	}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}
	if p.ClearOrganization {
		update["$unset"] = bson.M{"organization_id": ""}
	}
	return update
}

func (w *Writer) writeUser(ctx context.Context, uw docstore.UserWrite, now time.Time) error {
	var current models.User
	err := w.users.FindOne(ctx, bson.M{"_id": uw.UserID}).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Deleted users no longer hold stale copies.
		return nil
	}
	if err != nil {
		return err
	}
	if uw.Patch.Applied(current) {
		return nil
	}

	filter := bson.M{"_id": uw.UserID}
	if uw.ExpectVersion != docstore.AnyVersion {
		filter["version"] = uw.ExpectVersion
	}
	res, err := w.users.UpdateOne(ctx, filter, userUpdate(uw.Patch, now))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.ErrConflict
	}
	return nil
}

func (w *Writer) writeCenter(ctx context.Context, cw docstore.CenterWrite, now time.Time) error {
	var current models.Center
	exists := true
	err := w.centers.FindOne(ctx, bson.M{"_id": cw.CenterID}).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		exists = false
	} else if err != nil {
		return err
	}
	if cw.Applied(current, exists) {
		return nil
	}
	if !exists {
		return mongo.ErrNoDocuments
	}

	filter := bson.M{"_id": cw.CenterID}
	if cw.ExpectVersion != docstore.AnyVersion {
		filter["version"] = cw.ExpectVersion
	}

	if cw.Delete {
		res, err := w.centers.DeleteOne(ctx, filter)
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return apperr.ErrConflict
		}
		return nil
	}

	set := bson.M{"updated_at": now}
	if cw.Code != nil {
		set["code"] = *cw.Code
	}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}
	if cw.RemoveClassID != nil {
		update["$pull"] = bson.M{"classes": bson.M{"id": *cw.RemoveClassID}}
	}
	res, err := w.centers.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.ErrConflict
	}
	return nil
}
