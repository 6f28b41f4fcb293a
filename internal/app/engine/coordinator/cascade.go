package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/app/system/accesscode"
	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/classname"
	"github.com/dalemusser/centerhub/internal/app/system/metrics"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// planFunc reads the current state and returns the batches still needed
// to finish a cascade. Users already holding their target values are not
// returned by the queries, so re-planning after a partial run only covers
// what is left.
type planFunc func(ctx context.Context) ([]docstore.Batch, error)

// errSuperseded stops a cascade whose record was aborted by a newer one.
var errSuperseded = fmt.Errorf("%w: superseded by a newer cascade", apperr.ErrConflict)

// PropagateCodeChange writes newCode onto every user of the center, then
// onto the center itself in the last batch.
func (c *Coordinator) PropagateCodeChange(ctx context.Context, centerID primitive.ObjectID, newCode string) error {
	code := accesscode.Normalize(newCode)
	if !accesscode.Valid(code) {
		return apperr.Invalid("code", apperr.ReasonMalformed)
	}
	if _, err := c.loadCenter(ctx, centerID); err != nil {
		return err
	}
	return c.start(ctx, models.Cascade{
		Kind:     models.CascadeCodeChange,
		CenterID: centerID,
		NewCode:  code,
	})
}

// DeleteClassCascade moves every member of the class back to the default
// class, demotes its class admins, and removes the class last. Calling it
// for a class that is already gone returns a NotFoundError and writes nothing.
func (c *Coordinator) DeleteClassCascade(ctx context.Context, centerID, classID primitive.ObjectID) error {
	center, err := c.loadCenter(ctx, centerID)
	if err != nil {
		return err
	}
	cd, ok := center.ClassByID(classID)
	if !ok {
		return apperr.NotFound("class", classID.Hex())
	}
	return c.start(ctx, models.Cascade{
		Kind:      models.CascadeClassDelete,
		CenterID:  centerID,
		ClassID:   cd.ID,
		ClassName: cd.Name,
	})
}

// DeleteCenterCascade kicks every member out of the center, then deletes
// the center document.
func (c *Coordinator) DeleteCenterCascade(ctx context.Context, centerID primitive.ObjectID) error {
	if _, err := c.loadCenter(ctx, centerID); err != nil {
		return err
	}
	return c.start(ctx, models.Cascade{
		Kind:     models.CascadeCenterDelete,
		CenterID: centerID,
	})
}

// Resume re-runs an unfinished cascade from the current state. Finished
// and abandoned cascades are left alone.
func (c *Coordinator) Resume(ctx context.Context, cascadeID string) error {
	rec, err := c.Cascade(ctx, cascadeID)
	if err != nil {
		return err
	}
	switch rec.Status {
	case models.CascadeDone, models.CascadeAborted:
		return nil
	}

	log := c.cascadeLogger(rec)
	if rec.Attempts >= c.cfg.MaxAttempts {
		msg := fmt.Sprintf("given up after %d attempts: %s", rec.Attempts, rec.LastError)
		if err := c.cascades.Finish(context.WithoutCancel(ctx), rec.ID, models.CascadeAborted, msg); err != nil {
			return fmt.Errorf("finish cascade: %w", err)
		}
		log.Error("cascade abandoned", zap.Int("attempts", rec.Attempts), zap.String("last_error", rec.LastError))
		c.report(ctx, fmt.Errorf("cascade %s abandoned: %s", rec.ID, msg), map[string]string{
			"cascade_id": rec.ID,
			"kind":       rec.Kind,
		})
		return nil
	}

	metrics.ResumedCascades.Inc()
	log.Info("resuming cascade",
		zap.String("status", rec.Status),
		zap.Int("batches_committed", rec.BatchesCommitted))
	return c.execute(ctx, rec)
}

// Cascade returns the persisted cursor of a cascade.
func (c *Coordinator) Cascade(ctx context.Context, id string) (models.Cascade, error) {
	rec, err := c.cascades.Get(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Cascade{}, apperr.NotFound("cascade", id)
	}
	return rec, err
}

func (c *Coordinator) start(ctx context.Context, rec models.Cascade) error {
	rec.ID = c.newID()
	rec.Status = models.CascadeRunning
	if rec.Kind == models.CascadeCodeChange {
		// Only the latest rotation of a center may write its code.
		n, err := c.cascades.Supersede(ctx, rec.CenterID, rec.Kind, "superseded by cascade "+rec.ID)
		if err != nil {
			return fmt.Errorf("supersede cascades: %w", err)
		}
		if n > 0 {
			c.cascadeLogger(rec).Info("aborted older code changes", zap.Int("count", n))
		}
	}
	if err := c.cascades.Create(ctx, rec); err != nil {
		return fmt.Errorf("create cascade: %w", err)
	}
	return c.execute(ctx, rec)
}

func (c *Coordinator) planner(rec models.Cascade) planFunc {
	switch rec.Kind {
	case models.CascadeCodeChange:
		return func(ctx context.Context) ([]docstore.Batch, error) {
			return c.planCodeChange(ctx, rec.CenterID, rec.NewCode)
		}
	case models.CascadeClassDelete:
		return func(ctx context.Context) ([]docstore.Batch, error) {
			return c.planClassDelete(ctx, rec.CenterID, rec.ClassID, rec.ClassName)
		}
	case models.CascadeCenterDelete:
		return func(ctx context.Context) ([]docstore.Batch, error) {
			return c.planCenterDelete(ctx, rec.CenterID)
		}
	}
	return nil
}

func (c *Coordinator) cascadeLogger(rec models.Cascade) *zap.Logger {
	return c.log.With(
		zap.String("cascade_id", rec.ID),
		zap.String("kind", rec.Kind),
		zap.String("center_id", rec.CenterID.Hex()))
}

// execute plans and commits the cascade, re-planning on version conflicts.
// The cursor is updated after every batch.
func (c *Coordinator) execute(ctx context.Context, rec models.Cascade) error {
	plan := c.planner(rec)
	if plan == nil {
		return apperr.Invalid("kind", apperr.ReasonMalformed)
	}
	log := c.cascadeLogger(rec)
	started := time.Now()

	if err := c.cascades.Start(ctx, rec.ID); err != nil {
		return fmt.Errorf("start cascade: %w", err)
	}

	committed := rec.BatchesCommitted
	total := committed
	var runErr error
	for attempt := 0; ; attempt++ {
		batches, err := plan(ctx)
		if err != nil {
			runErr = err
			break
		}
		total = committed + len(batches)
		c.progress(ctx, log, rec.ID, committed, total)

		err = c.commitAll(ctx, log, rec.ID, batches, &committed, total)
		if err == nil {
			break
		}
		if errors.Is(err, apperr.ErrConflict) && !errors.Is(err, errSuperseded) && attempt < c.cfg.ConflictRetries {
			metrics.Conflicts.WithLabelValues(rec.Kind).Inc()
			log.Info("version conflict; re-planning cascade", zap.Int("attempt", attempt+1))
			continue
		}
		runErr = err
		break
	}

	return c.finish(ctx, log, rec, committed, total, runErr, time.Since(started))
}

func (c *Coordinator) commitAll(ctx context.Context, log *zap.Logger, id string, batches []docstore.Batch, committed *int, total int) error {
	for _, b := range batches {
		if err := c.live(ctx, id); err != nil {
			return err
		}
		if err := c.commit(ctx, b); err != nil {
			return err
		}
		*committed++
		c.progress(ctx, log, id, *committed, total)
	}
	return nil
}

// live fails with errSuperseded once the cascade record has been aborted.
func (c *Coordinator) live(ctx context.Context, id string) error {
	rec, err := c.cascades.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("read cascade: %w", err)
	}
	if rec.Status == models.CascadeAborted {
		return errSuperseded
	}
	return nil
}

func (c *Coordinator) progress(ctx context.Context, log *zap.Logger, id string, committed, total int) {
	if err := c.cascades.Progress(context.WithoutCancel(ctx), id, committed, total); err != nil {
		log.Warn("record cascade progress", zap.Error(err))
	}
}

// finish records the outcome. A cascade that committed nothing, or whose
// center vanished, is aborted and never resumed; one that stopped part way
// stays failed for the resumer and is reported as a PartialCascadeError.
func (c *Coordinator) finish(ctx context.Context, log *zap.Logger, rec models.Cascade, committed, total int, runErr error, elapsed time.Duration) error {
	status := models.CascadeDone
	lastErr := ""
	if runErr != nil {
		lastErr = runErr.Error()
		status = models.CascadeFailed
		if committed == 0 || errors.Is(runErr, apperr.ErrNotFound) || errors.Is(runErr, errSuperseded) {
			status = models.CascadeAborted
		}
	}

	if err := c.cascades.Finish(context.WithoutCancel(ctx), rec.ID, status, lastErr); err != nil {
		log.Warn("record cascade outcome", zap.Error(err))
	}
	metrics.ObserveCascade(rec.Kind, status, elapsed)

	switch status {
	case models.CascadeDone:
		log.Info("cascade done",
			zap.Int("batches", committed),
			zap.Duration("elapsed", elapsed))
		return nil
	case models.CascadeAborted:
		log.Warn("cascade aborted", zap.Int("batches_committed", committed), zap.Error(runErr))
		return runErr
	}

	perr := &apperr.PartialCascadeError{
		CascadeID: rec.ID,
		Kind:      rec.Kind,
		Committed: committed,
		Total:     total,
		Err:       runErr,
	}
	log.Error("partial cascade",
		zap.Int("batches_committed", committed),
		zap.Int("batches_total", total),
		zap.Error(runErr))
	c.report(ctx, perr, map[string]string{
		"cascade_id": rec.ID,
		"kind":       rec.Kind,
	})
	return perr
}

/* -------------------------------------------------------------------------- */
/* Planners                                                                   */
/* -------------------------------------------------------------------------- */

func (c *Coordinator) planCodeChange(ctx context.Context, centerID primitive.ObjectID, code string) ([]docstore.Batch, error) {
	center, err := c.loadCenter(ctx, centerID)
	if err != nil {
		return nil, err
	}
	stale, err := c.users.FindCodeMismatch(ctx, centerID, code)
	if err != nil {
		return nil, fmt.Errorf("find users with stale code: %w", err)
	}

	writes := make([]docstore.UserWrite, 0, len(stale))
	for _, u := range stale {
		writes = append(writes, docstore.UserWrite{
			UserID:        u.ID,
			ExpectVersion: u.Version,
			Patch:         docstore.UserPatch{Center: &code},
		})
	}
	cw := &docstore.CenterWrite{CenterID: center.ID, ExpectVersion: center.Version, Code: &code}
	return docstore.Chunk(writes, cw, c.cfg.MaxBatchWrites), nil
}

// planClassDelete sweeps the class members and admins. When the class is
// already gone (a resumed run) only leftover users are swept, unless a new
// class with the same name took its place.
func (c *Coordinator) planClassDelete(ctx context.Context, centerID, classID primitive.ObjectID, name string) ([]docstore.Batch, error) {
	center, err := c.loadCenter(ctx, centerID)
	if err != nil {
		return nil, err
	}

	cd, present := center.ClassByID(classID)
	if !present {
		cd = classname.Define(models.ClassDefinition{ID: classID, Name: name})
		course, section := classname.MemberKey(cd)
		if _, reused := findClass(center, course, section); reused {
			return nil, nil
		}
	}
	course, section := classname.MemberKey(cd)

	members, err := c.users.FindByClass(ctx, centerID, course, section)
	if err != nil {
		return nil, fmt.Errorf("find class members: %w", err)
	}
	admins, err := c.users.FindClassAdmins(ctx, centerID, cd.Name)
	if err != nil {
		return nil, fmt.Errorf("find class admins: %w", err)
	}

	student := models.Student()
	def := models.SentinelDefault
	index := make(map[primitive.ObjectID]int, len(members)+len(admins))
	var writes []docstore.UserWrite
	for _, u := range members {
		p := docstore.UserPatch{Course: &def, ClassName: &def}
		if u.Role.IsClassAdminOf(cd.Name) {
			p.Role = &student
		}
		index[u.ID] = len(writes)
		writes = append(writes, docstore.UserWrite{UserID: u.ID, ExpectVersion: u.Version, Patch: p})
	}
	for _, u := range admins {
		if i, ok := index[u.ID]; ok {
			writes[i].Patch.Role = &student
			continue
		}
		index[u.ID] = len(writes)
		writes = append(writes, docstore.UserWrite{
			UserID:        u.ID,
			ExpectVersion: u.Version,
			Patch:         docstore.UserPatch{Role: &student},
		})
	}

	var cw *docstore.CenterWrite
	if present {
		id := cd.ID
		cw = &docstore.CenterWrite{CenterID: center.ID, ExpectVersion: center.Version, RemoveClassID: &id}
	}
	return docstore.Chunk(writes, cw, c.cfg.MaxBatchWrites), nil
}

// planCenterDelete kicks the remaining members. The center delete is only
// planned while the document still exists.
func (c *Coordinator) planCenterDelete(ctx context.Context, centerID primitive.ObjectID) ([]docstore.Batch, error) {
	var cw *docstore.CenterWrite
	center, err := c.centers.GetByID(ctx, centerID)
	switch {
	case err == nil:
		cw = &docstore.CenterWrite{CenterID: center.ID, ExpectVersion: center.Version, Delete: true}
	case !errors.Is(err, mongo.ErrNoDocuments):
		return nil, err
	}

	members, err := c.users.FindByOrganization(ctx, centerID)
	if err != nil {
		return nil, fmt.Errorf("find center members: %w", err)
	}
	writes := make([]docstore.UserWrite, 0, len(members))
	for _, u := range members {
		writes = append(writes, docstore.UserWrite{UserID: u.ID, ExpectVersion: u.Version, Patch: kickPatch()})
	}
	return docstore.Chunk(writes, cw, c.cfg.MaxBatchWrites), nil
}
