// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables (CENTERHUB_*), configuration
// files, or command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig
// covers the framework-level settings: ports, TLS, logging, CORS and body
// limits.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: centerhub-session)
	SessionDomain string // Cookie domain (blank means current host)
	SessionMaxAge time.Duration

	// Consistency engine
	MaxBatchWrites  int  // document writes per atomic batch
	ConflictRetries int  // re-plans after a version conflict
	MaxAttempts     int  // executions of one cascade before it is abandoned
	CodeRetries     int  // attempts to find an unused access code
	DetachOnDelete  bool // kick members before deleting a center

	// Cascade resumer
	ResumeInterval time.Duration // how often to look for stale cascades
	ResumeAfter    time.Duration // how long a cascade must be idle to count as stale

	// Join-by-code throttling
	JoinAttemptsPerIP   int
	JoinAttemptsPerUser int
	JoinWindow          time.Duration

	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool

	// Error reporting (blank disables Sentry)
	SentryDSN string

	// GlobalAdminEmail is promoted (or created) as global admin on startup.
	GlobalAdminEmail string
}
