// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dalemusser/licensehub/internal/app/readiness"
	"github.com/dalemusser/licensehub/internal/app/resolvers"
	"github.com/dalemusser/licensehub/internal/app/system/auditlog"
	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/identity"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

const (
	defaultSessionKey = "dev-only-change-me-please-0123456789ABCDEF"

	backendMongo  = "mongo"
	backendMemory = "memory"
	backendRedis  = "redis"
)

// appConfigKeys defines the configuration keys for licensehub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, cache_backend, etc.
//   - Environment variables: LICENSEHUB_MONGO_URI, LICENSEHUB_CACHE_BACKEND, etc.
//   - Command-line flags: --mongo_uri, --cache_backend, etc.
var appConfigKeys = []config.AppKey{
	{Name: "store_backend", Default: backendMongo, Desc: "Document store: 'mongo' or 'memory'"},
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "licensehub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Cache
	{Name: "cache_backend", Default: backendMemory, Desc: "Cache: 'memory' (per process) or 'redis' (shared)"},
	{Name: "redis_url", Default: "", Desc: "Redis URL for cache_backend=redis"},
	{Name: "cache_ttl", Default: "5m", Desc: "TTL for cached users, team members and licenses"},
	{Name: "org_context_ttl", Default: "10m", Desc: "TTL for cached organization contexts"},

	// Identity and sessions
	{Name: "identity_ready_timeout", Default: "5s", Desc: "How long reads wait for the identity provider"},
	{Name: "session_key", Default: defaultSessionKey, Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "licensehub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie lifetime"},

	// Remote API
	{Name: "web_only_mode", Default: false, Desc: "Always read and write the store directly"},
	{Name: "api_base_url", Default: "", Desc: "Remote licensehub API base URL (blank disables the remote path)"},
	{Name: "api_token", Default: "", Desc: "Service bearer token for the remote API"},
	{Name: "api_write_limit", Default: 120, Desc: "API writes allowed per identity per minute (0 disables)"},

	// Behaviour
	{Name: "org_overrides", Default: "", Desc: "Pinned organizations: 'email=orgId,...'"},
	{Name: "conditional_assign", Default: false, Desc: "Reject assigning a license held by another user"},
	{Name: "avatar_base_url", Default: readiness.DefaultAvatarBaseURL, Desc: "Initials avatar service for new profiles"},
	{Name: "audit_log", Default: auditlog.ModeAll, Desc: "Audit event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig merges .env files, config files,
// LICENSEHUB_* environment variables and flags with precedence
// flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "LICENSEHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		StoreBackend:     appValues.String("store_backend"),
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		CacheBackend:  appValues.String("cache_backend"),
		RedisURL:      appValues.String("redis_url"),
		CacheTTL:      appValues.Duration("cache_ttl", cache.DefaultTTL),
		OrgContextTTL: appValues.Duration("org_context_ttl", cache.OrgContextTTL),

		IdentityReadyTimeout: appValues.Duration("identity_ready_timeout", identity.DefaultReadyTimeout),
		SessionKey:           appValues.String("session_key"),
		SessionName:          appValues.String("session_name"),
		SessionDomain:        appValues.String("session_domain"),
		SessionMaxAge:        appValues.Duration("session_max_age", 24*time.Hour),

		WebOnlyMode: appValues.Bool("web_only_mode"),
		APIBaseURL:  appValues.String("api_base_url"),
		APIToken:    appValues.String("api_token"),

		APIWriteLimit: appValues.Int("api_write_limit"),

		OrgOverrides:      appValues.String("org_overrides"),
		ConditionalAssign: appValues.Bool("conditional_assign"),
		AvatarBaseURL:     appValues.String("avatar_base_url"),
		AuditLog:          appValues.String("audit_log"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StoreBackend {
	case backendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if appCfg.MongoDatabase == "" {
			return fmt.Errorf("mongo_database is required")
		}
	case backendMemory:
		logger.Warn("store_backend=memory: data is not persisted")
	default:
		return fmt.Errorf("store_backend must be %q or %q, got %q", backendMongo, backendMemory, appCfg.StoreBackend)
	}

	switch appCfg.CacheBackend {
	case backendMemory:
	case backendRedis:
		if appCfg.RedisURL == "" {
			return fmt.Errorf("cache_backend=redis requires redis_url")
		}
	default:
		return fmt.Errorf("cache_backend must be %q or %q, got %q", backendMemory, backendRedis, appCfg.CacheBackend)
	}

	switch appCfg.AuditLog {
	case auditlog.ModeAll, auditlog.ModeDB, auditlog.ModeLog, auditlog.ModeOff:
	default:
		return fmt.Errorf("audit_log must be all, db, log or off, got %q", appCfg.AuditLog)
	}

	if _, err := resolvers.ParseOrgOverrides(appCfg.OrgOverrides); err != nil {
		return err
	}

	if appCfg.APIBaseURL != "" && !appCfg.WebOnlyMode {
		u, err := url.Parse(appCfg.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("api_base_url must be an http(s) URL, got %q", appCfg.APIBaseURL)
		}
		if appCfg.APIToken == "" {
			logger.Warn("api_base_url set without api_token; remote calls will be rejected")
		}
	}

	if appCfg.APIWriteLimit < 0 {
		return fmt.Errorf("api_write_limit must be >= 0, got %d", appCfg.APIWriteLimit)
	}

	if coreCfg != nil && coreCfg.Env == "prod" && appCfg.SessionKey == defaultSessionKey {
		return fmt.Errorf("session_key must be set in production")
	}
	return nil
}
