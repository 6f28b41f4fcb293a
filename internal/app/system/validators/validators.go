// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Collections lists the collections EnsureAll creates, with their schema.
var Collections = []string{"centers", "users", "cascades"}

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	schemas := map[string]bson.M{
		"centers":  centersSchema(),
		"users":    usersSchema(),
		"cascades": cascadesSchema(),
	}

	var problems []string
	for _, coll := range Collections {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			continue
		}
		if err := setValidator(ctx, db, coll, schemas[coll]); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				continue
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers ---------------------- */

func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection idempotently makes sure name exists. created is true
// only when this call created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	if exists, err := collectionExists(ctx, db, name); err == nil && exists {
		zap.L().Debug("collection exists", zap.String("collection", name))
		return false, nil
	}
	if err := db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExistsErr(err) {
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

// setValidator uses moderate validation so existing documents that predate
// a schema change can still be updated.
func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func commandErr(err error, code int32, fragments ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == code {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

func isNamespaceExistsErr(err error) bool {
	return commandErr(err, 48, "already exists", "namespace exists")
}

func isNoSuchCommand(err error) bool {
	return commandErr(err, 59, "no such command")
}

func isNotImplemented(err error) bool {
	return commandErr(err, 115, "not implemented", "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

var (
	nonBlank   = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}
	counter    = bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0}
	accessCode = `^\d{3}-\d{3}$`
)

func centersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci", "code", "classes", "version"},
			"properties": bson.M{
				"name":      nonBlank,
				"name_ci":   nonBlank,
				"code":      bson.M{"bsonType": "string", "pattern": accessCode},
				"is_pinned": bson.M{"bsonType": "bool"},
				"version":   counter,
				"classes": bson.M{
					"bsonType": "array",
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"id", "name", "name_ci"},
						"properties": bson.M{
							"id":           bson.M{"bsonType": "objectId"},
							"name":         nonBlank,
							"name_ci":      nonBlank,
							"kind":         bson.M{"enum": bson.A{models.ClassStandard, models.ClassCustom}},
							"chat_enabled": bson.M{"bsonType": "bool"},
							"is_pinned":    bson.M{"bsonType": "bool"},
						},
					},
				},
			},
		},
	}
}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "email", "role", "center", "course", "class_name"},
			"properties": bson.M{
				"name":            nonBlank,
				"email":           bson.M{"bsonType": "string"},
				"role":            bson.M{"bsonType": "string", "pattern": "^(admin|center-admin|student|admin-.+)$"},
				"organization_id": bson.M{"bsonType": "objectId"},
				"center":          bson.M{"bsonType": "string", "pattern": `^(\d{3}-\d{3}|` + models.SentinelPersonal + `)$`},
				"course":          nonBlank,
				"class_name":      nonBlank,
				"is_banned":       bson.M{"bsonType": "bool"},
				"version":         counter,
			},
		},
	}
}

func cascadesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"kind", "center_id", "status", "attempts", "created_at"},
			"properties": bson.M{
				"kind": bson.M{"enum": bson.A{
					models.CascadeCodeChange, models.CascadeClassDelete, models.CascadeCenterDelete,
				}},
				"center_id": bson.M{"bsonType": "objectId"},
				"status": bson.M{"enum": bson.A{
					models.CascadeRunning, models.CascadeDone, models.CascadeFailed, models.CascadeAborted,
				}},
				"batches_committed": counter,
				"batches_total":     counter,
				"attempts":          counter,
				"new_code":          bson.M{"bsonType": "string", "pattern": accessCode},
				"created_at":        bson.M{"bsonType": "date"},
			},
		},
	}
}
