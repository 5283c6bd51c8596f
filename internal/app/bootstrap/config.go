// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auditlog"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/normalize"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/notify"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/ratelimit"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/tasks"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	devJWTSecret  = "dev-only-jwt-secret-change-me-0123456789"
	devSessionKey = "dev-only-change-me-please-0123456789ABCDEF"
	minSecretLen  = 32
)

// appConfigKeys defines the configuration keys for direcciones.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: DIRECCIONES_MONGO_URI, DIRECCIONES_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "direcciones", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Credentials
	{Name: "jwt_secret", Default: devJWTSecret, Desc: "JWT signing secret, 32+ chars (must be strong in production)"},
	{Name: "jwt_ttl", Default: "24h", Desc: "Lifetime of issued tokens (e.g., 24h, 90m)"},
	{Name: "bcrypt_cost", Default: bcrypt.DefaultCost, Desc: "bcrypt cost for password hashes"},
	{Name: "admin_email", Default: "", Desc: "Email of an existing account to promote to admin at startup"},
	{Name: "admin_group", Default: "1", Desc: "Group the admin account is moved into when it is still in the default group"},

	{Name: "login_ip_limit", Default: ratelimit.DefaultIPLimit, Desc: "Login attempts allowed per client address per minute"},
	{Name: "login_email_limit", Default: ratelimit.DefaultEmailLimit, Desc: "Login attempts allowed per account every five minutes"},

	// Session cookie
	{Name: "session_key", Default: devSessionKey, Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "direcciones-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	// Snapshot relay
	{Name: "redis_url", Default: "", Desc: "Redis URL for the cross-instance snapshot relay (blank disables it)"},
	{Name: "redis_channel", Default: notify.DefaultChannel, Desc: "Redis pub/sub channel for snapshots"},
	{Name: "subscriber_buffer", Default: notify.DefaultBuffer, Desc: "Snapshots buffered per subscriber"},

	// Maintenance jobs
	{Name: "history_retention", Default: "8760h", Desc: "How long card assignment history is kept"},
	{Name: "history_prune_interval", Default: "24h", Desc: "How often old assignment history is pruned"},
	{Name: "reconcile_interval", Default: "1h", Desc: "How often dangling address references are removed"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: auditlog.ModeAll, Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log", Default: auditlog.ModeAll, Desc: "Card, address and user change logging: 'all', 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, DIRECCIONES_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "DIRECCIONES", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		JWTSecret:  appValues.String("jwt_secret"),
		JWTTTL:     appValues.Duration("jwt_ttl", 24*time.Hour),
		BcryptCost: appValues.Int("bcrypt_cost"),
		AdminEmail: appValues.String("admin_email"),
		AdminGroup: appValues.String("admin_group"),

		LoginIPLimit:    appValues.Int("login_ip_limit"),
		LoginEmailLimit: appValues.Int("login_email_limit"),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),

		RedisURL:         appValues.String("redis_url"),
		RedisChannel:     appValues.String("redis_channel"),
		SubscriberBuffer: appValues.Int("subscriber_buffer"),

		HistoryRetention:     appValues.Duration("history_retention", tasks.DefaultHistoryRetention),
		HistoryPruneInterval: appValues.Duration("history_prune_interval", tasks.DefaultHistoryPruneInterval),
		ReconcileInterval:    appValues.Duration("reconcile_interval", tasks.DefaultReconcileInterval),

		AuditLogAuth:    appValues.String("audit_log_auth"),
		AuditLogChanges: appValues.String("audit_log"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// It checks the MongoDB URI format and the credential settings before
// anything connects. In production the development secrets are refused.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MongoDatabase == "" {
		return fmt.Errorf("mongo_database is required")
	}

	if len(appCfg.JWTSecret) < minSecretLen {
		return fmt.Errorf("jwt_secret must be at least %d characters", minSecretLen)
	}
	if appCfg.JWTTTL <= 0 {
		return fmt.Errorf("jwt_ttl must be positive")
	}
	if appCfg.SessionKey == "" {
		return fmt.Errorf("session_key is required")
	}
	if appCfg.BcryptCost < bcrypt.MinCost || appCfg.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if coreCfg != nil && coreCfg.Env == "prod" {
		if appCfg.JWTSecret == devJWTSecret {
			return fmt.Errorf("jwt_secret must be set in production")
		}
		if appCfg.SessionKey == devSessionKey || len(appCfg.SessionKey) < minSecretLen {
			return fmt.Errorf("session_key must be a strong secret in production")
		}
	}

	if appCfg.AdminEmail != "" && normalize.Group(appCfg.AdminGroup) == models.DefaultGroup {
		return fmt.Errorf("admin_group must name a real group (not %q) when admin_email is set", models.DefaultGroup)
	}

	if appCfg.RedisURL != "" {
		if _, err := redis.ParseURL(appCfg.RedisURL); err != nil {
			return fmt.Errorf("invalid redis_url: %w", err)
		}
	}
	if appCfg.HistoryRetention <= 0 {
		return fmt.Errorf("history_retention must be positive")
	}

	for key, mode := range map[string]string{"audit_log_auth": appCfg.AuditLogAuth, "audit_log": appCfg.AuditLogChanges} {
		switch mode {
		case auditlog.ModeAll, auditlog.ModeDB, auditlog.ModeLog, auditlog.ModeOff:
		default:
			return fmt.Errorf("%s must be one of all, db, log, off (got %q)", key, mode)
		}
	}

	return nil
}
