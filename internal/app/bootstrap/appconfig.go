// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//
// The struct is passed to most lifecycle hooks, so any configuration needed
// during startup, request handling, or shutdown lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Credentials
	JWTSecret  string        // HS256 signing secret, at least 32 characters
	JWTTTL     time.Duration // lifetime of issued tokens
	BcryptCost int
	AdminEmail string // existing account promoted to admin at startup (blank skips)
	AdminGroup string // group the admin account is placed in when it has none

	// Login throttling
	LoginIPLimit    int // attempts per client address per minute
	LoginEmailLimit int // attempts per account every five minutes

	// Session cookie configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: direcciones-session)
	SessionDomain string // Cookie domain (blank means current host)

	// Cross-instance snapshot relay (blank RedisURL disables it)
	RedisURL     string
	RedisChannel string

	// Subscription fan-out
	SubscriberBuffer int // snapshots buffered per subscriber before the oldest is dropped

	// Maintenance jobs
	HistoryRetention     time.Duration
	HistoryPruneInterval time.Duration
	ReconcileInterval    time.Duration

	// Audit logging: all, db, log or off
	AuditLogAuth    string
	AuditLogChanges string
}
