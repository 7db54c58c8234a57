// Package portal assembles the data-access layer: one document store, one
// cache, and the resolvers, coordinator and readiness auditor that share
// them.
package portal

import (
	"fmt"
	"time"

	"github.com/dalemusser/licensehub/internal/app/coordinator"
	"github.com/dalemusser/licensehub/internal/app/readiness"
	"github.com/dalemusser/licensehub/internal/app/resolvers"
	"github.com/dalemusser/licensehub/internal/app/system/auditlog"
	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/identity"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"go.uber.org/zap"
)

// Config carries the settings the layer needs.
type Config struct {
	Remote   remote.Options
	APIToken string

	CacheTTL             time.Duration
	OrgContextTTL        time.Duration
	IdentityReadyTimeout time.Duration
	// Identity is used when a request context carries no provider.
	Identity identity.Provider

	// OrgOverrides is "email=orgId,..." (see resolvers.ParseOrgOverrides).
	OrgOverrides      string
	ConditionalAssign bool
	AvatarBaseURL     string
	AuditMode         string
}

// Portal is the assembled layer. Every field is safe for concurrent use.
type Portal struct {
	Store       *docstore.Adapter
	Cache       cache.Cache
	Audit       *auditlog.Logger
	Remote      *remote.Strategy
	Resolvers   *resolvers.Resolvers
	Coordinator *coordinator.Coordinator
	Readiness   *readiness.Auditor
}

// New wires the layer over backend and c.
func New(backend docstore.Backend, c cache.Cache, cfg Config, logger *zap.Logger) (*Portal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	strategy := remote.Direct()
	if cfg.Remote.PreferRemote() {
		client, err := remote.NewClient(cfg.Remote, cfg.APIToken, logger)
		if err != nil {
			return nil, fmt.Errorf("remote client: %w", err)
		}
		strategy = remote.NewStrategy(cfg.Remote, client, logger)
		logger.Info("remote api enabled", zap.String("api_base_url", cfg.Remote.APIBaseURL))
	}

	overrides, err := resolvers.ParseOrgOverrides(cfg.OrgOverrides)
	if err != nil {
		return nil, fmt.Errorf("org overrides: %w", err)
	}

	db := docstore.NewAdapter(backend, logger)
	audit := auditlog.New(db, logger, auditlog.Config{Mode: cfg.AuditMode})
	ready := readiness.New(db, audit, readiness.Config{
		AvatarBaseURL: cfg.AvatarBaseURL,
		Remote:        strategy,
	}, logger)

	return &Portal{
		Store:  db,
		Cache:  c,
		Audit:  audit,
		Remote: strategy,
		Resolvers: resolvers.New(db, c, resolvers.Config{
			Identity:      cfg.Identity,
			ReadyTimeout:  cfg.IdentityReadyTimeout,
			TTL:           cfg.CacheTTL,
			OrgContextTTL: cfg.OrgContextTTL,
			Overrides:     overrides,
			Remote:        strategy,
		}, logger),
		Coordinator: coordinator.New(db, c, audit, ready, coordinator.Config{
			ConditionalAssign: cfg.ConditionalAssign,
			Remote:            strategy,
		}, logger),
		Readiness: ready,
	}, nil
}
