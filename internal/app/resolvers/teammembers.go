package resolvers

import (
	"context"
	"net/url"
	"sort"

	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/normalize"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"go.uber.org/zap"
)

// TeamMembers returns the organization's members sorted by display name.
//
// users is the primary source. teamMembers rows overlay role, department and
// license fields on the user with the same email, and rows with no matching
// user are still listed. A member without a license assignment in either
// source gets one from the ACTIVE license assigned to them, if any.
// Removed, suspended, deactivated and revoked records are left out; a
// teamMembers row in that state hides the person.
func (r *Resolvers) TeamMembers(ctx context.Context, orgID string) []models.TeamMember {
	if orgID == "" {
		return []models.TeamMember{}
	}
	ms, err := load(ctx, r, cache.TeamMembersKey(orgID), r.cfg.TTL, func(ctx context.Context) ([]models.TeamMember, error) {
		return remote.Do(ctx, r.cfg.Remote, "org_team_members",
			func(ctx context.Context, c *remote.Client) ([]models.TeamMember, error) {
				var out []models.TeamMember
				err := c.Get(ctx, "/api/organizations/"+url.PathEscape(orgID)+"/members", &out)
				return out, err
			},
			func(ctx context.Context) ([]models.TeamMember, error) {
				return r.loadTeamMembers(ctx, orgID), nil
			})
	})
	if err != nil {
		r.log.Warn("resolve team members failed",
			zap.String("organization_id", orgID),
			zap.Error(err))
		return []models.TeamMember{}
	}
	return ms
}

type mergedMember struct {
	m      models.TeamMember
	hidden bool
}

func memberKey(email, id string) string {
	if email != "" {
		return email
	}
	return "id:" + id
}

func (r *Resolvers) loadTeamMembers(ctx context.Context, orgID string) []models.TeamMember {
	users := union(
		r.db.Query(ctx, models.CollUsers, docstore.Eq("organizationId", orgID)),
		r.db.Query(ctx, models.CollUsers, docstore.Eq("orgId", orgID)),
	)
	mirrors := union(
		r.db.Query(ctx, models.CollTeamMembers, docstore.Eq("organizationId", orgID)),
		r.db.Query(ctx, models.CollTeamMembers, docstore.Eq("orgId", orgID)),
	)

	byKey := make(map[string]*mergedMember)
	var order []string

	for _, d := range users {
		u := userFromDoc(d, models.CollUsers)
		k := memberKey(u.Email, u.ID)
		if _, dup := byKey[k]; dup {
			continue
		}
		byKey[k] = &mergedMember{
			hidden: Excluded(d),
			m: models.TeamMember{
				ID:                u.ID,
				UserID:            u.ID,
				Email:             u.Email,
				Name:              u.Name,
				FirstName:         u.FirstName,
				LastName:          u.LastName,
				Role:              u.Role,
				Department:        u.Department,
				Status:            u.Status,
				OrganizationID:    orgID,
				LicenseAssignment: u.LicenseAssignment,
				CreatedAt:         u.CreatedAt,
			},
		}
		order = append(order, k)
	}

	for _, d := range mirrors {
		email := normalize.Email(d.Str("email"))
		uid := d.Str("userId")
		k := memberKey(email, d.FirstStr("userId", "id"))
		if mm, ok := byKey[k]; ok {
			overlay(&mm.m, d)
			if Excluded(d) {
				mm.hidden = true
			}
			continue
		}
		m := models.TeamMember{
			ID:                d.ID(),
			UserID:            uid,
			TeamMemberID:      d.ID(),
			Email:             email,
			Name:              normalize.Name(d.FirstStr("name", "displayName")),
			FirstName:         normalize.Name(d.Str("firstName")),
			LastName:          normalize.Name(d.Str("lastName")),
			Role:              normalize.Role(d.Str("role")),
			Department:        d.Str("department"),
			Status:            normalize.Status(d.Str("status")),
			OrganizationID:    orgID,
			LicenseAssignment: assignment(d),
			CreatedAt:         d.TimeOrZero("createdAt"),
		}
		if uid != "" {
			m.ID = uid
		}
		byKey[k] = &mergedMember{m: m, hidden: Excluded(d)}
		order = append(order, k)
	}

	held := make(map[string]models.License)
	for _, l := range r.loadLicenses(ctx, orgID) {
		if l.Status == models.LicenseActive && l.Assigned() {
			held[l.AssignedTo.UserID] = l
		}
	}

	out := []models.TeamMember{}
	for _, k := range order {
		mm := byKey[k]
		if mm.hidden {
			continue
		}
		m := mm.m
		if m.LicenseAssignment == nil {
			if l, ok := heldBy(held, m.UserID, m.ID); ok {
				m.LicenseAssignment = &models.LicenseAssignment{
					LicenseID:  l.ID,
					LicenseKey: l.Key,
					Tier:       l.Tier,
					AssignedAt: l.AssignedTo.AssignedAt,
				}
			}
		}
		m.DisplayName = normalize.DisplayName(m.Name, m.FirstName, m.LastName, m.Email)
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool { return sortKey(out[i]) < sortKey(out[j]) })
	return out
}

// overlay copies the fields teamMembers is authoritative for onto m.
func overlay(m *models.TeamMember, d docstore.Doc) {
	m.TeamMemberID = d.ID()
	if role := normalize.Role(d.Str("role")); role != "" {
		m.Role = role
	}
	if dept := d.Str("department"); dept != "" {
		m.Department = dept
	}
	if a := assignment(d); a != nil {
		m.LicenseAssignment = a
	}
	if m.UserID == "" {
		m.UserID = d.Str("userId")
	}
}

func heldBy(held map[string]models.License, ids ...string) (models.License, bool) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if l, ok := held[id]; ok {
			return l, true
		}
	}
	return models.License{}, false
}
