// Package coordinator implements the cascading operations that keep the
// denormalized membership facts consistent: a center's access code copied
// onto its users, class membership and class-admin roles, and center
// membership itself.
//
// Every operation reads a snapshot, computes typed patches and commits them
// in atomic batches. Writes are conditional on the versions read, so a
// concurrent change aborts the batch and the operation re-plans from a fresh
// snapshot. Multi-batch operations persist a cascade cursor first, so an
// interrupted run can be resumed.
package coordinator

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/classname"
	"github.com/dalemusser/centerhub/internal/app/system/metrics"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	DefaultMaxBatchWrites  = 500
	DefaultConflictRetries = 3
	DefaultMaxAttempts     = 5
)

// Config tunes batching and retries. Zero values select the defaults.
type Config struct {
	MaxBatchWrites  int // document writes per atomic batch
	ConflictRetries int // re-plans after a version conflict
	MaxAttempts     int // executions of one cascade before it is given up
}

// Reporter receives errors that need operator attention.
type Reporter func(ctx context.Context, err error, tags map[string]string)

type Option func(*Coordinator)

// WithReporter sets where partial cascades are reported.
func WithReporter(r Reporter) Option {
	return func(c *Coordinator) { c.report = r }
}

// WithIDGenerator replaces the cascade id generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

type Coordinator struct {
	centers  docstore.Centers
	users    docstore.Users
	cascades docstore.Cascades
	writer   docstore.BatchWriter

	cfg    Config
	log    *zap.Logger
	newID  func() string
	report Reporter
}

func New(st docstore.Store, cfg Config, log *zap.Logger, opts ...Option) *Coordinator {
	if cfg.MaxBatchWrites <= 0 {
		cfg.MaxBatchWrites = DefaultMaxBatchWrites
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = DefaultConflictRetries
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	c := &Coordinator{
		centers:  st.Centers,
		users:    st.Users,
		cascades: st.Cascades,
		writer:   st.Writer,
		cfg:      cfg,
		log:      log,
		newID:    uuid.NewString,
		report:   func(context.Context, error, map[string]string) {},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) loadCenter(ctx context.Context, id primitive.ObjectID) (models.Center, error) {
	center, err := c.centers.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Center{}, apperr.NotFound("center", id.Hex())
	}
	return center, err
}

func (c *Coordinator) loadUser(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	u, err := c.users.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, apperr.NotFound("user", id.Hex())
	}
	return u, err
}

// commit writes one batch. A center that vanished under a center write is
// reported as not found.
func (c *Coordinator) commit(ctx context.Context, b docstore.Batch) error {
	err := c.writer.Commit(ctx, b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		id := ""
		if b.Center != nil {
			id = b.Center.CenterID.Hex()
		}
		return apperr.NotFound("center", id)
	}
	if err != nil {
		return err
	}
	metrics.ObserveBatch(b.Len())
	return nil
}

// retry runs fn until it does not fail with a version conflict, at most
// ConflictRetries extra times. fn must re-read everything it writes.
func (c *Coordinator) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if !errors.Is(err, apperr.ErrConflict) || attempt >= c.cfg.ConflictRetries {
			return err
		}
		metrics.Conflicts.WithLabelValues(op).Inc()
		c.log.Debug("version conflict; retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1))
	}
}

// guard is a center write that only checks and bumps the version.
func guard(center models.Center) *docstore.CenterWrite {
	return &docstore.CenterWrite{CenterID: center.ID, ExpectVersion: center.Version}
}

func kickPatch() docstore.UserPatch {
	student := models.Student()
	personal := models.SentinelPersonal
	return docstore.UserPatch{
		Role:              &student,
		ClearOrganization: true,
		Center:            &personal,
		Course:            &personal,
		ClassName:         &personal,
	}
}

// findClass resolves a class of center from the pair users store. An empty
// course matches className against full class names instead.
func findClass(center models.Center, course, className string) (models.ClassDefinition, bool) {
	course = strings.TrimSpace(course)
	className = strings.TrimSpace(className)
	if course == "" {
		return center.ClassByName(className)
	}
	for _, cd := range center.Classes {
		mc, mn := classname.MemberKey(cd)
		if strings.EqualFold(mc, course) && strings.EqualFold(mn, className) {
			return cd, true
		}
	}
	return models.ClassDefinition{}, false
}
