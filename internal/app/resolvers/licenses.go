package resolvers

import (
	"context"
	"net/url"
	"sort"

	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"go.uber.org/zap"
)

// Licenses returns the organization's licenses, newest first, in canonical
// shape. Failures yield whatever could be read.
func (r *Resolvers) Licenses(ctx context.Context, orgID string) []models.License {
	if orgID == "" {
		return []models.License{}
	}
	ls, err := load(ctx, r, cache.LicensesKey(orgID), r.cfg.TTL, func(ctx context.Context) ([]models.License, error) {
		return remote.Do(ctx, r.cfg.Remote, "org_licenses",
			func(ctx context.Context, c *remote.Client) ([]models.License, error) {
				var out []models.License
				err := c.Get(ctx, "/api/organizations/"+url.PathEscape(orgID)+"/licenses", &out)
				return out, err
			},
			func(ctx context.Context) ([]models.License, error) {
				return r.loadLicenses(ctx, orgID), nil
			})
	})
	if err != nil {
		r.log.Warn("resolve licenses failed",
			zap.String("organization_id", orgID),
			zap.Error(err))
		return []models.License{}
	}
	return ls
}

func (r *Resolvers) loadLicenses(ctx context.Context, orgID string) []models.License {
	byCreated := func(field string) docstore.Query {
		return docstore.Query{
			Where:   []docstore.Condition{docstore.Eq(field, orgID)},
			OrderBy: "createdAt",
			Desc:    true,
		}
	}
	var sets [][]docstore.Doc
	for _, f := range licenseOrgPaths {
		sets = append(sets, r.db.QueryWith(ctx, models.CollLicenses, byCreated(f)))
	}

	out := []models.License{}
	for _, d := range union(sets...) {
		l := NormalizeLicense(d)
		if l.OrganizationID != orgID {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
