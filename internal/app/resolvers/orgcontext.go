package resolvers

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
)

// OrganizationContext returns the current user together with their
// organization, its ACTIVE subscription (the most recently created, if any)
// and its members.
//
// Unlike the other resolvers this one fails: ErrNoCurrentUser when nobody
// resolvable is signed in and ErrOrganizationNotFound when the user's
// organization does not exist. Store errors while loading the organization
// are returned too.
func (r *Resolvers) OrganizationContext(ctx context.Context) (*models.OrganizationContext, error) {
	user := r.CurrentUser(ctx)
	if user == nil {
		return nil, ErrNoCurrentUser
	}
	if user.OrganizationID == "" {
		return nil, fmt.Errorf("user %s has no organization: %w", user.ID, ErrOrganizationNotFound)
	}

	oc, err := load(ctx, r, cache.OrgContextKey(user.OrganizationID), r.cfg.OrgContextTTL, func(ctx context.Context) (*models.OrganizationContext, error) {
		return remote.Do(ctx, r.cfg.Remote, "organization_context",
			func(ctx context.Context, c *remote.Client) (*models.OrganizationContext, error) {
				var oc models.OrganizationContext
				if err := c.Get(ctx, "/api/me/organization", &oc); err != nil {
					return nil, err
				}
				if oc.Organization == nil || oc.Organization.ID != user.OrganizationID {
					return nil, fmt.Errorf("remote organization context does not match %s", user.OrganizationID)
				}
				return &oc, nil
			},
			func(ctx context.Context) (*models.OrganizationContext, error) {
				return r.loadOrgContext(ctx, user)
			})
	})
	if err != nil {
		return nil, err
	}

	// The cached value is shared by everyone in the organization.
	out := *oc
	out.User = user
	org := *oc.Organization
	switch {
	case org.OwnerID != "":
		org.IsOwner = org.OwnerID == user.ID
	case oc.User == nil || oc.User.ID != user.ID:
		org.IsOwner = false
	}
	out.Organization = &org
	return &out, nil
}

func (r *Resolvers) loadOrgContext(ctx context.Context, user *models.User) (*models.OrganizationContext, error) {
	d, err := r.db.Fetch(ctx, models.CollOrganizations, user.OrganizationID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("organization %s: %w", user.OrganizationID, ErrOrganizationNotFound)
		}
		return nil, fmt.Errorf("load organization %s: %w", user.OrganizationID, err)
	}

	oc := &models.OrganizationContext{
		User:         user,
		Organization: organizationFromDoc(d, user.ID),
		Members:      r.TeamMembers(ctx, user.OrganizationID),
	}

	subs := r.db.QueryWith(ctx, models.CollSubscriptions, docstore.Query{
		Where: []docstore.Condition{
			docstore.Eq("organizationId", user.OrganizationID),
			docstore.Eq("status", models.SubscriptionActive),
		},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   1,
	})
	if len(subs) > 0 {
		oc.Subscription = subscriptionFromDoc(subs[0])
	}
	return oc, nil
}
