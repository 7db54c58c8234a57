package resolvers

import (
	"context"
	"errors"

	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/identity"
	"github.com/dalemusser/licensehub/internal/app/system/normalize"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"go.uber.org/zap"
)

// Identity waits, bounded by the configured timeout, for the identity
// provider in ctx (or the configured default) and returns who is signed in.
func (r *Resolvers) Identity(ctx context.Context) (identity.Identity, bool) {
	p, ok := identity.FromContext(ctx)
	if !ok {
		p = r.cfg.Identity
	}
	return identity.WaitReady(ctx, p, r.cfg.ReadyTimeout)
}

// CurrentUser returns the signed-in user's record, or nil when nobody is
// signed in, the identity provider is not ready in time, or no record
// matches.
//
// The record is looked up by id in users, then by email in users, then by
// email in orgMembers. The first match wins.
func (r *Resolvers) CurrentUser(ctx context.Context) *models.User {
	id, ok := r.Identity(ctx)
	if !ok {
		return nil
	}

	u, err := load(ctx, r, cache.CurrentUserKey(id.UID), r.cfg.TTL, func(ctx context.Context) (*models.User, error) {
		return remote.Do(ctx, r.cfg.Remote, "current_user",
			func(ctx context.Context, c *remote.Client) (*models.User, error) {
				var u models.User
				if err := c.Get(ctx, "/api/me", &u); err != nil {
					return nil, err
				}
				return &u, nil
			},
			func(ctx context.Context) (*models.User, error) {
				return r.lookupUser(ctx, id)
			})
	})
	if err != nil {
		if !errors.Is(err, errNoRecord) {
			r.log.Warn("resolve current user failed",
				zap.String("uid", id.UID),
				zap.Error(err))
		}
		return nil
	}
	cp := *u
	u = &cp
	if r.cfg.Overrides.Apply(u) {
		r.log.Debug("organization override applied",
			zap.String("uid", u.ID),
			zap.String("organization_id", u.OrganizationID))
	}
	return u
}

func (r *Resolvers) lookupUser(ctx context.Context, id identity.Identity) (*models.User, error) {
	if d := r.db.GetByID(ctx, models.CollUsers, id.UID); d != nil {
		return userFromDoc(d, models.CollUsers), nil
	}

	email := normalize.Email(id.Email)
	if email == "" {
		return nil, errNoRecord
	}
	for _, coll := range []string{models.CollUsers, models.CollOrgMembers} {
		docs := r.db.QueryWith(ctx, coll, docstore.Query{
			Where: []docstore.Condition{docstore.Eq("email", email)},
			Limit: 1,
		})
		if len(docs) > 0 {
			return userFromDoc(docs[0], coll), nil
		}
	}
	return nil, errNoRecord
}
