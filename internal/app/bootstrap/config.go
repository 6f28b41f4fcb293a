// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/centerhub/internal/app/engine/coordinator"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for CenterHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: CENTERHUB_MONGO_URI, CENTERHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "centerhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "centerhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime"},

	// Consistency engine
	{Name: "max_batch_writes", Default: coordinator.DefaultMaxBatchWrites, Desc: "Document writes per atomic batch"},
	{Name: "conflict_retries", Default: coordinator.DefaultConflictRetries, Desc: "Re-plans after a concurrent modification"},
	{Name: "cascade_max_attempts", Default: coordinator.DefaultMaxAttempts, Desc: "Executions of one cascade before it is abandoned"},
	{Name: "code_retries", Default: 5, Desc: "Attempts to find an unused access code"},
	{Name: "detach_members_on_center_delete", Default: true, Desc: "Kick every member before a center is deleted"},

	// Cascade resumer
	{Name: "cascade_resume_interval", Default: "1m", Desc: "How often to look for interrupted cascades"},
	{Name: "cascade_resume_after", Default: "2m", Desc: "Idle time after which a running or failed cascade is resumed"},

	// Join-by-code throttling
	{Name: "join_attempts_per_ip", Default: 30, Desc: "Join-by-code attempts per client address per window"},
	{Name: "join_attempts_per_user", Default: 10, Desc: "Join-by-code attempts per user per window"},
	{Name: "join_window", Default: "5m", Desc: "Window for join-by-code throttling"},
	{Name: "trust_proxy_headers", Default: false, Desc: "Take the client address from X-Forwarded-For/X-Real-IP (only behind a trusted proxy)"},

	// Error reporting
	{Name: "sentry_dsn", Default: "", Desc: "Sentry DSN (blank disables reporting)"},

	// Global admin bootstrap
	{Name: "globaladmin_email", Default: "", Desc: "Email of the global admin user (promotes/creates on startup)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, CENTERHUB_* for app) and flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "CENTERHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 30*24*time.Hour),

		MaxBatchWrites:  appValues.Int("max_batch_writes"),
		ConflictRetries: appValues.Int("conflict_retries"),
		MaxAttempts:     appValues.Int("cascade_max_attempts"),
		CodeRetries:     appValues.Int("code_retries"),
		DetachOnDelete:  appValues.Bool("detach_members_on_center_delete"),

		ResumeInterval: appValues.Duration("cascade_resume_interval", time.Minute),
		ResumeAfter:    appValues.Duration("cascade_resume_after", 2*time.Minute),

		JoinAttemptsPerIP:   appValues.Int("join_attempts_per_ip"),
		JoinAttemptsPerUser: appValues.Int("join_attempts_per_user"),
		JoinWindow:          appValues.Duration("join_window", 5*time.Minute),
		TrustProxyHeaders:   appValues.Bool("trust_proxy_headers"),

		SentryDSN:        appValues.String("sentry_dsn"),
		GlobalAdminEmail: appValues.String("globaladmin_email"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MaxBatchWrites < 2 {
		// A center write plus at least one user write must fit in a batch.
		return fmt.Errorf("max_batch_writes must be at least 2, got %d", appCfg.MaxBatchWrites)
	}
	if appCfg.ResumeInterval <= 0 || appCfg.ResumeAfter <= 0 {
		return fmt.Errorf("cascade_resume_interval and cascade_resume_after must be positive")
	}
	if appCfg.JoinAttemptsPerIP < 1 || appCfg.JoinAttemptsPerUser < 1 || appCfg.JoinWindow <= 0 {
		return fmt.Errorf("join_attempts_per_ip, join_attempts_per_user and join_window must be positive")
	}
	if coreCfg.Env == "prod" && len(appCfg.SessionKey) < 32 {
		return fmt.Errorf("session_key must be at least 32 characters in prod")
	}
	return nil
}
