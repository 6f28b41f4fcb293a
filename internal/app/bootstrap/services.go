// internal/app/bootstrap/services.go
package bootstrap

import (
	"github.com/dalemusser/centerhub/internal/app/engine/catalog"
	"github.com/dalemusser/centerhub/internal/app/engine/coordinator"
	"github.com/dalemusser/centerhub/internal/app/engine/directory"
	"github.com/dalemusser/centerhub/internal/app/engine/registry"
	batchstore "github.com/dalemusser/centerhub/internal/app/store/batches"
	cascadestore "github.com/dalemusser/centerhub/internal/app/store/cascades"
	centerstore "github.com/dalemusser/centerhub/internal/app/store/centers"
	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	userstore "github.com/dalemusser/centerhub/internal/app/store/users"
	"github.com/dalemusser/centerhub/internal/app/system/ratelimit"
	"github.com/dalemusser/centerhub/internal/app/system/workers"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// services are the engine components shared by the HTTP handlers and the
// background worker.
type services struct {
	store       docstore.Store
	coordinator *coordinator.Coordinator
	registry    *registry.Registry
	catalog     *catalog.Catalog
	directory   *directory.Directory
	resumer     *workers.CascadeResume
	joins       *ratelimit.JoinLimiter
	trustProxy  bool
	flushSentry func()
}

// svc is set by Startup and read by BuildHandler and Shutdown.
var svc *services

// mongoStore wires the MongoDB stores into the docstore contracts.
func mongoStore(db *mongo.Database, logger *zap.Logger) docstore.Store {
	return docstore.Store{
		Centers:  centerstore.New(db),
		Users:    userstore.New(db),
		Cascades: cascadestore.New(db),
		Writer:   batchstore.New(db, logger),
	}
}

func newServices(st docstore.Store, appCfg AppConfig, logger *zap.Logger, opts ...coordinator.Option) *services {
	co := coordinator.New(st, coordinator.Config{
		MaxBatchWrites:  appCfg.MaxBatchWrites,
		ConflictRetries: appCfg.ConflictRetries,
		MaxAttempts:     appCfg.MaxAttempts,
	}, logger.Named("coordinator"), opts...)

	return &services{
		store:       st,
		coordinator: co,
		registry: registry.New(st.Centers, co, registry.Config{
			CodeRetries:   appCfg.CodeRetries,
			DetachMembers: appCfg.DetachOnDelete,
		}, logger.Named("registry")),
		catalog:     catalog.New(st.Centers, co, logger.Named("catalog")),
		directory:   directory.New(st.Users, logger.Named("directory")),
		resumer:     workers.NewCascadeResume(st.Cascades, co, logger.Named("cascade-resume"), appCfg.ResumeInterval, appCfg.ResumeAfter),
		joins:       ratelimit.NewJoinLimiter(appCfg.JoinAttemptsPerIP, appCfg.JoinAttemptsPerUser, appCfg.JoinWindow),
		trustProxy:  appCfg.TrustProxyHeaders,
		flushSentry: func() {},
	}
}
