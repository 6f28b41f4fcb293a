// Package registry manages centers: creation, direct edits, the access
// code lifecycle and deletion.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/centerhub/internal/app/policy/accesspolicy"
	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/app/system/accesscode"
	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/centerhub/internal/app/system/paging"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const DefaultCodeRetries = 5

// Cascader runs the center-wide cascades. Implemented by coordinator.Coordinator.
type Cascader interface {
	PropagateCodeChange(ctx context.Context, centerID primitive.ObjectID, newCode string) error
	DeleteCenterCascade(ctx context.Context, centerID primitive.ObjectID) error
}

type Config struct {
	// CodeRetries bounds the search for an unused access code. When every
	// attempt collides the last code is used anyway.
	CodeRetries int
	// DetachMembers kicks every member before a center is deleted. When
	// false only the center document is removed.
	DetachMembers bool
}

type Registry struct {
	centers docstore.Centers
	cascade Cascader
	cfg     Config
	gen     accesscode.Generator
	log     *zap.Logger
}

func New(centers docstore.Centers, cascade Cascader, cfg Config, log *zap.Logger) *Registry {
	if cfg.CodeRetries <= 0 {
		cfg.CodeRetries = DefaultCodeRetries
	}
	return &Registry{
		centers: centers,
		cascade: cascade,
		cfg:     cfg,
		gen:     accesscode.Generate,
		log:     log,
	}
}

// WithGenerator replaces the access code generator. Used by tests.
func (r *Registry) WithGenerator(g accesscode.Generator) *Registry {
	r.gen = g
	return r
}

func notFound(err error, id primitive.ObjectID) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound("center", id.Hex())
	}
	return err
}

func cleanName(name string) (string, error) {
	clean := htmlsanitize.PlainText(name)
	if clean == "" {
		return "", apperr.Invalid("name", apperr.ReasonRequired)
	}
	return clean, nil
}

// newCode draws codes until one is unused by any center, giving up after
// CodeRetries draws. avoid is never returned while retries remain.
func (r *Registry) newCode(ctx context.Context, avoid string) (string, error) {
	var code string
	for i := 0; i < r.cfg.CodeRetries; i++ {
		code = r.gen()
		if code == avoid {
			continue
		}
		exists, err := r.centers.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check access code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	r.log.Warn("no unused access code found; accepting a duplicate",
		zap.String("code", code),
		zap.Int("attempts", r.cfg.CodeRetries))
	return code, nil
}

// CreateCenter creates an empty, unpinned center with a fresh access code.
func (r *Registry) CreateCenter(ctx context.Context, actor models.User, name string) (models.Center, error) {
	if !accesspolicy.Authorize(actor, accesspolicy.CreateCenter, accesspolicy.Target{}) {
		return models.Center{}, apperr.Denied(accesspolicy.CreateCenter.String())
	}
	clean, err := cleanName(name)
	if err != nil {
		return models.Center{}, err
	}
	code, err := r.newCode(ctx, "")
	if err != nil {
		return models.Center{}, err
	}
	center, err := r.centers.Create(ctx, models.Center{Name: clean, Code: code})
	if err != nil {
		return models.Center{}, err
	}
	r.log.Info("center created",
		zap.String("center_id", center.ID.Hex()),
		zap.String("actor_id", actor.ID.Hex()))
	return center, nil
}

func (r *Registry) authorizeManage(actor models.User, id primitive.ObjectID) error {
	if !accesspolicy.Authorize(actor, accesspolicy.ManageCenter, accesspolicy.Target{CenterID: id}) {
		return apperr.Denied(accesspolicy.ManageCenter.String())
	}
	return nil
}

func (r *Registry) RenameCenter(ctx context.Context, actor models.User, id primitive.ObjectID, name string) error {
	if err := r.authorizeManage(actor, id); err != nil {
		return err
	}
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	return notFound(r.centers.UpdateInfo(ctx, id, docstore.CenterInfo{Name: &clean}), id)
}

// SetImageURL sets or, with an empty url, clears the center image.
func (r *Registry) SetImageURL(ctx context.Context, actor models.User, id primitive.ObjectID, url string) error {
	if err := r.authorizeManage(actor, id); err != nil {
		return err
	}
	url = strings.TrimSpace(url)
	return notFound(r.centers.UpdateInfo(ctx, id, docstore.CenterInfo{ImageURL: &url}), id)
}

// TogglePinned flips the pinned flag and returns the new value.
func (r *Registry) TogglePinned(ctx context.Context, actor models.User, id primitive.ObjectID) (bool, error) {
	if err := r.authorizeManage(actor, id); err != nil {
		return false, err
	}
	center, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	pinned := !center.Pinned
	if err := r.centers.UpdateInfo(ctx, id, docstore.CenterInfo{Pinned: &pinned}); err != nil {
		return false, notFound(err, id)
	}
	return pinned, nil
}

// RotateAccessCode draws a new code and propagates it to every member. The
// center only stores the code once its members hold it. On a partial
// cascade the new code is returned along with the error.
func (r *Registry) RotateAccessCode(ctx context.Context, actor models.User, id primitive.ObjectID) (string, error) {
	if !accesspolicy.Authorize(actor, accesspolicy.RotateCode, accesspolicy.Target{CenterID: id}) {
		return "", apperr.Denied(accesspolicy.RotateCode.String())
	}
	center, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	code, err := r.newCode(ctx, center.Code)
	if err != nil {
		return "", err
	}
	if err := r.cascade.PropagateCodeChange(ctx, id, code); err != nil {
		if errors.Is(err, apperr.ErrPartialCascade) {
			return code, err
		}
		return "", err
	}
	r.log.Info("access code rotated",
		zap.String("center_id", id.Hex()),
		zap.String("actor_id", actor.ID.Hex()))
	return code, nil
}

// DeleteCenter removes the center, detaching its members first unless
// configured otherwise.
func (r *Registry) DeleteCenter(ctx context.Context, actor models.User, id primitive.ObjectID) error {
	if !accesspolicy.Authorize(actor, accesspolicy.DeleteCenter, accesspolicy.Target{CenterID: id}) {
		return apperr.Denied(accesspolicy.DeleteCenter.String())
	}
	if r.cfg.DetachMembers {
		return r.cascade.DeleteCenterCascade(ctx, id)
	}
	n, err := r.centers.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("center", id.Hex())
	}
	r.log.Warn("center deleted without detaching members", zap.String("center_id", id.Hex()))
	return nil
}

func (r *Registry) Get(ctx context.Context, id primitive.ObjectID) (models.Center, error) {
	center, err := r.centers.GetByID(ctx, id)
	if err != nil {
		return models.Center{}, notFound(err, id)
	}
	return center, nil
}

func (r *Registry) GetByCode(ctx context.Context, code string) (models.Center, error) {
	code = accesscode.Normalize(code)
	if !accesscode.Valid(code) {
		return models.Center{}, apperr.Invalid("code", apperr.ReasonMalformed)
	}
	center, err := r.centers.GetByCode(ctx, code)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Center{}, apperr.NotFound("center", code)
	}
	return center, err
}

// List returns every center, pinned first.
func (r *Registry) List(ctx context.Context) ([]models.Center, error) {
	return r.centers.List(ctx)
}

// ListPage returns one page of centers in name order. before and after are
// cursors from a previous page; both empty asks for the first page.
func (r *Registry) ListPage(ctx context.Context, before, after string, size int) (paging.Page[models.Center], error) {
	k := paging.Parse(before, after, size)
	rows, err := r.centers.ListPage(ctx, k)
	if err != nil {
		return paging.Page[models.Center]{}, err
	}
	return paging.Build(k, rows,
		func(c models.Center) string { return c.NameCI },
		func(c models.Center) primitive.ObjectID { return c.ID },
	), nil
}
