// Package coordinator performs the portal's multi-collection mutations.
//
// The same facts live in several collections: a license assignment is held
// on the license, on the user and on the user's teamMembers and orgMembers
// mirrors; a dataset's project lives on the dataset and in project_datasets
// link rows. Every operation here writes all of those places in one atomic
// batch, invalidates the cache prefixes the change affects and records an
// audit event. Errors always propagate to the caller.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/licensehub/internal/app/readiness"
	"github.com/dalemusser/licensehub/internal/app/system/auditlog"
	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/identity"
	"github.com/dalemusser/licensehub/internal/app/system/metrics"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"go.uber.org/zap"
)

var (
	ErrLicenseNotFound = errors.New("license not found")
	ErrUserNotFound    = errors.New("user not found")
	// ErrLicenseAlreadyAssigned is returned when a license is held by another
	// user, either when read or at commit time.
	ErrLicenseAlreadyAssigned = errors.New("license is already assigned to another user")
	ErrMemberNotFound         = errors.New("member not found")
	ErrDatasetNotFound        = errors.New("dataset not found")
	ErrProjectNotFound        = errors.New("project not found")
	// ErrProjectAdminExists is returned when a project already has an ADMIN.
	ErrProjectAdminExists = errors.New("project already has an admin")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrDuplicateEmail     = errors.New("a user with this email already exists")
	ErrInvalidRole        = errors.New("invalid role")
	// ErrOrganizationMismatch is returned when a license would go to a user
	// outside the license's organization.
	ErrOrganizationMismatch = errors.New("user is not a member of the license's organization")
)

// personPrefixes are invalidated by every mutation.
var personPrefixes = []string{
	cache.PrefixLicenses,
	cache.PrefixTeamMembers,
	cache.PrefixOrgContext,
	cache.PrefixCurrentUser,
}

// Config tunes the coordinator.
type Config struct {
	// ConditionalAssign makes AssignLicense fail with
	// ErrLicenseAlreadyAssigned when the license changed hands between the
	// read and the commit. When false the last writer wins.
	ConditionalAssign bool
	// Remote selects the try-remote-else-direct path. Nil means direct.
	Remote *remote.Strategy
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	db        *docstore.Adapter
	cache     cache.Cache
	audit     *auditlog.Logger
	readiness *readiness.Auditor
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

// New creates a Coordinator. audit may be nil.
func New(db *docstore.Adapter, c cache.Cache, audit *auditlog.Logger, ready *readiness.Auditor, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Remote == nil {
		cfg.Remote = remote.Direct()
	}
	if ready == nil {
		ready = readiness.New(db, audit, readiness.Config{}, logger)
	}
	return &Coordinator{
		db:        db,
		cache:     c,
		audit:     audit,
		readiness: ready,
		cfg:       cfg,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// invalidate drops every cached entry under prefixes. It runs after the
// write committed and before the operation returns.
func (c *Coordinator) invalidate(ctx context.Context, prefixes ...string) {
	n := cache.InvalidateAll(ctx, c.cache, prefixes...)
	c.log.Debug("cache invalidated", zap.Strings("prefixes", prefixes), zap.Int("keys", n))
}

// finish records the operation outcome and invalidates the cache whatever
// path (remote or direct) performed the write. Failed operations leave the
// cache alone.
func (c *Coordinator) finish(ctx context.Context, op string, err error, prefixes ...string) {
	metrics.CoordinatorOps.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err != nil {
		c.log.Warn("coordinator operation failed", zap.String("op", op), zap.Error(err))
		return
	}
	c.invalidate(ctx, append(append([]string{}, personPrefixes...), prefixes...)...)
}

// actor returns the uid of whoever is making the change, when known.
func actor(ctx context.Context) string {
	p, ok := identity.FromContext(ctx)
	if !ok {
		return ""
	}
	select {
	case <-p.Ready():
	default:
		return ""
	}
	id, _ := p.Current()
	return id.UID
}

// fetch loads a document, mapping a missing document to notFound.
func (c *Coordinator) fetch(ctx context.Context, collection, id string, notFound error) (docstore.Doc, error) {
	d, err := c.db.Fetch(ctx, collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", notFound, id)
		}
		return nil, err
	}
	return d, nil
}

// sentinels are matched against remote error messages so callers can use
// errors.Is whichever path served the call.
var sentinels = []error{
	ErrLicenseNotFound,
	ErrUserNotFound,
	ErrLicenseAlreadyAssigned,
	ErrMemberNotFound,
	ErrDatasetNotFound,
	ErrProjectNotFound,
	ErrProjectAdminExists,
	ErrInvalidEmail,
	ErrDuplicateEmail,
	ErrInvalidRole,
	ErrOrganizationMismatch,
}

// remoteErr maps an API error response back to the sentinel it carries.
func remoteErr(err error) error {
	var se *remote.StatusError
	if !errors.As(err, &se) {
		return err
	}
	for _, s := range sentinels {
		if strings.Contains(se.Message, s.Error()) {
			return fmt.Errorf("%w: %w", s, err)
		}
	}
	return err
}

// lookup returns the document, nil when it does not exist, or the store
// error.
func (c *Coordinator) lookup(ctx context.Context, collection, id string) (docstore.Doc, error) {
	if id == "" {
		return nil, nil
	}
	d, err := c.db.Fetch(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	return d, err
}
