// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration: WAFFLE's CoreConfig covers
// ports, TLS, logging, CORS and request limits.
type AppConfig struct {
	// Document store
	StoreBackend     string // "mongo" or "memory"
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Cache
	CacheBackend  string        // "memory" or "redis"
	RedisURL      string        // redis://host:6379/0 (cache_backend=redis only)
	CacheTTL      time.Duration // users, team members, licenses, project datasets
	OrgContextTTL time.Duration // organization contexts

	// Identity and sessions
	IdentityReadyTimeout time.Duration
	SessionKey           string // Secret key for signing session cookies (must be strong in production)
	SessionName          string // Cookie name for sessions (default: licensehub-session)
	SessionDomain        string // Cookie domain (blank means current host)
	SessionMaxAge        time.Duration

	// Remote API
	WebOnlyMode bool   // Always use the direct store path
	APIBaseURL  string // Remote licensehub API; blank disables the remote path
	APIToken    string // Service bearer token, sent by the client and accepted by the API

	APIWriteLimit int // API writes per identity per minute; 0 disables

	// Behaviour
	OrgOverrides      string // "email=orgId,..." pins accounts to an organization
	ConditionalAssign bool   // Reject assigning a license held by someone else
	AvatarBaseURL     string // Initials avatar service for new userProfiles rows
	AuditLog          string // "all" (db+log), "db", "log" or "off"
}
