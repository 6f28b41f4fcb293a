// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/centerhub/internal/app/engine/coordinator"
	userstore "github.com/dalemusser/centerhub/internal/app/store/users"
	"github.com/dalemusser/centerhub/internal/app/system/observability"
	"github.com/dalemusser/centerhub/internal/app/system/timeouts"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It builds
// the engine, promotes the configured global admin and starts the cascade
// resumer.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		c := timeouts.Current()
		logger.Info("timeouts overridden from environment",
			zap.Int("overrides", n),
			zap.Duration("short", c.Short),
			zap.Duration("long", c.Long),
			zap.Duration("cascade", c.Cascade))
	}

	flush, err := observability.InitSentry(appCfg.SentryDSN, coreCfg.Env, "")
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	var opts []coordinator.Option
	if appCfg.SentryDSN != "" {
		opts = append(opts, coordinator.WithReporter(observability.CaptureErr))
		logger.Info("sentry reporting enabled")
	}

	s := newServices(mongoStore(deps.MongoDatabase, logger), appCfg, logger, opts...)
	s.flushSentry = flush

	if appCfg.GlobalAdminEmail != "" {
		if err := ensureGlobalAdmin(ctx, userstore.New(deps.MongoDatabase), appCfg.GlobalAdminEmail, logger); err != nil {
			flush()
			return err
		}
	}

	s.resumer.Start()
	svc = s
	return nil
}

// ensureGlobalAdmin promotes the user with email to global admin, creating
// the user outside any center when it does not exist.
func ensureGlobalAdmin(ctx context.Context, users *userstore.Store, email string, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	u, err := users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		name, _, _ := strings.Cut(email, "@")
		created, err := users.Create(ctx, models.User{Name: name, Email: email, Role: models.GlobalAdmin()})
		if err != nil {
			return fmt.Errorf("create global admin: %w", err)
		}
		logger.Info("created global admin", zap.String("email", created.Email), zap.String("user_id", created.ID.Hex()))
		return nil
	case err != nil:
		return fmt.Errorf("look up global admin: %w", err)
	}

	if u.Role.Kind == models.KindGlobalAdmin {
		return nil
	}
	if err := users.SetRole(ctx, u.ID, models.GlobalAdmin()); err != nil {
		return fmt.Errorf("promote global admin: %w", err)
	}
	logger.Info("promoted user to global admin",
		zap.String("email", u.Email),
		zap.String("previous_role", u.Role.String()))
	return nil
}
