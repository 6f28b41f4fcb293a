// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	cascadesfeature "github.com/dalemusser/centerhub/internal/app/features/cascades"
	centersfeature "github.com/dalemusser/centerhub/internal/app/features/centers"
	classesfeature "github.com/dalemusser/centerhub/internal/app/features/classes"
	healthfeature "github.com/dalemusser/centerhub/internal/app/features/health"
	membersfeature "github.com/dalemusser/centerhub/internal/app/features/members"
	userstore "github.com/dalemusser/centerhub/internal/app/store/users"
	"github.com/dalemusser/centerhub/internal/app/system/auth"
	"github.com/dalemusser/centerhub/internal/app/system/metrics"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if svc == nil {
		return nil, errors.New("bootstrap: Startup did not run")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	return newRouter(svc, sessionMgr, userstore.NewFetcher(deps.MongoDatabase), deps.MongoClient, logger), nil
}

// newRouter mounts every feature. The actor is reloaded from the store on
// each request so role changes and bans take effect immediately.
func newRouter(s *services, sm *auth.SessionManager, fetcher auth.UserFetcher, db healthfeature.Pinger, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}

	// Health and metrics for load balancers and scrapers.
	r.Mount("/health", healthfeature.Routes(healthfeature.NewHandler(db, logger)))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(ar chi.Router) {
		ar.Use(sm.LoadActor(fetcher))

		ch := centersfeature.NewHandler(s.registry, logger)
		ch.Lookups = s.joins
		ar.Mount("/centers", centersfeature.Routes(ch, sm))
		ar.Mount("/classes", classesfeature.Routes(classesfeature.NewHandler(s.catalog, logger), sm))
		mh := membersfeature.NewHandler(s.coordinator, s.directory, logger)
		mh.Joins = s.joins
		ar.Mount("/members", membersfeature.Routes(mh, sm))
		ar.Mount("/cascades", cascadesfeature.Routes(cascadesfeature.NewHandler(s.coordinator, logger), sm))
	})

	return r
}
