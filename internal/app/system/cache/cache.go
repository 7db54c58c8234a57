// Package cache is the TTL cache in front of licensehub's resolvers.
//
// Values are stored JSON-encoded, so a Get always decodes into a fresh value
// and callers can never mutate a cached entry. An entry is expired once
// now >= stored + ttl, which makes a non-positive ttl an immediate miss.
package cache

import (
	"context"
	"time"
)

const (
	// DefaultTTL applies to Set.
	DefaultTTL = 5 * time.Minute
	// OrgContextTTL applies to organization contexts.
	OrgContextTTL = 10 * time.Minute
)

// Key prefixes. Mutations invalidate by these prefixes.
const (
	PrefixCurrentUser     = "current-user-"
	PrefixOrgContext      = "org-context-"
	PrefixTeamMembers     = "org-team-members-"
	PrefixLicenses        = "org-licenses-"
	PrefixProjectDatasets = "project-datasets-"
)

// CurrentUserKey is the cache key for a user's resolved profile.
func CurrentUserKey(uid string) string { return PrefixCurrentUser + uid }

func OrgContextKey(orgID string) string { return PrefixOrgContext + orgID }

func TeamMembersKey(orgID string) string { return PrefixTeamMembers + orgID }

func LicensesKey(orgID string) string { return PrefixLicenses + orgID }

func ProjectDatasetsKey(projectID string) string { return PrefixProjectDatasets + projectID }

// Cache is a keyed TTL cache.
type Cache interface {
	// Get decodes the entry for key into dst and reports whether it was a
	// live hit. Expired entries are removed.
	Get(ctx context.Context, key string, dst any) bool
	// Set stores v with DefaultTTL.
	Set(ctx context.Context, key string, v any)
	// SetTTL stores v with ttl.
	SetTTL(ctx context.Context, key string, v any, ttl time.Duration)
	// InvalidateByPrefix removes every key containing substr and returns how
	// many were removed.
	InvalidateByPrefix(ctx context.Context, substr string) int
	// Clear removes everything.
	Clear(ctx context.Context)
}

// Fetch returns the cached value for key, or calls load and caches its result
// with ttl. Load errors are returned and nothing is cached.
func Fetch[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var v T
	if c.Get(ctx, key, &v) {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.SetTTL(ctx, key, v, ttl)
	return v, nil
}

// InvalidateAll runs InvalidateByPrefix for each prefix and returns the total.
func InvalidateAll(ctx context.Context, c Cache, prefixes ...string) int {
	n := 0
	for _, p := range prefixes {
		n += c.InvalidateByPrefix(ctx, p)
	}
	return n
}
