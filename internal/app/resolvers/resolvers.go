// Package resolvers answers the portal's read questions: who is signed in,
// which organization they belong to, who is on the team and which licenses
// the organization holds. Each answer is merged from several denormalized
// collections, normalized to one canonical shape and cached.
//
// Read entry points never fail because one collection could not be read;
// they log and return the best partial result. The exception is
// OrganizationContext, which fails when the user's organization is missing.
package resolvers

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/identity"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/app/system/timeouts"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoCurrentUser is returned when nobody is signed in, the identity
	// provider did not become ready in time, or the signed-in identity has no
	// user record.
	ErrNoCurrentUser = errors.New("no current user")
	// ErrOrganizationNotFound is returned when the current user's organization
	// cannot be loaded.
	ErrOrganizationNotFound = errors.New("organization not found")
)

// errNoRecord is returned by loaders that found nothing, so nothing is cached.
var errNoRecord = errors.New("no record")

// Config tunes the resolvers. Zero values fall back to the defaults.
type Config struct {
	// Identity is used when the request context carries no provider.
	Identity identity.Provider
	// ReadyTimeout bounds the wait for the identity provider.
	ReadyTimeout time.Duration
	// TTL applies to users, team members and licenses.
	TTL time.Duration
	// OrgContextTTL applies to organization contexts.
	OrgContextTTL time.Duration
	// Overrides pins specific accounts to an organization.
	Overrides OrgOverrides
	// Remote selects the try-remote-else-direct path. Nil means direct.
	Remote *remote.Strategy
}

// Resolvers is safe for concurrent use.
type Resolvers struct {
	db    *docstore.Adapter
	cache cache.Cache
	cfg   Config
	log   *zap.Logger
	group singleflight.Group
}

// New builds resolvers over db and c.
func New(db *docstore.Adapter, c cache.Cache, cfg Config, logger *zap.Logger) *Resolvers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = identity.DefaultReadyTimeout
	}
	if cfg.TTL <= 0 {
		cfg.TTL = cache.DefaultTTL
	}
	if cfg.OrgContextTTL <= 0 {
		cfg.OrgContextTTL = cache.OrgContextTTL
	}
	if cfg.Remote == nil {
		cfg.Remote = remote.Direct()
	}
	return &Resolvers{db: db, cache: c, cfg: cfg, log: logger}
}

// load serves key from the cache or runs fn once for all concurrent callers
// that missed, caching a successful result for ttl. The shared call outlives
// any one caller's cancellation but is bounded by timeouts.Medium; each
// caller stops waiting when its own ctx ends.
func load[T any](ctx context.Context, r *Resolvers, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ch := r.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Medium())
		defer cancel()
		return cache.Fetch(lctx, r.cache, key, ttl, fn)
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// union concatenates query results, skipping documents already seen by id.
func union(sets ...[]docstore.Doc) []docstore.Doc {
	seen := make(map[string]bool)
	var out []docstore.Doc
	for _, set := range sets {
		for _, d := range set {
			id := d.ID()
			if id != "" && seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, d)
		}
	}
	return out
}
