package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dalemusser/licensehub/internal/app/resolvers"
	"github.com/dalemusser/licensehub/internal/app/system/auditlog"
	"github.com/dalemusser/licensehub/internal/app/system/authz"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/inputval"
	"github.com/dalemusser/licensehub/internal/app/system/normalize"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"github.com/google/uuid"
)

// RemovalResult is the outcome of RemoveTeamMember.
type RemovalResult struct {
	UserID           string       `json:"userId,omitempty"`
	ReleasedLicenses []string     `json:"releasedLicenses"`
	Deleted          []DeletedRow `json:"deleted"`
}

// DeletedRow names one hard-deleted document.
type DeletedRow struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// RemoveTeamMember removes a person from an organization. memberID is a
// users id or a teamMembers row id. A person with no users, teamMembers or
// orgMembers row in organizationID is ErrMemberNotFound.
//
// It runs two batches. The first releases every license of organizationID
// the person holds (status PENDING, no assignee, releasedFrom recording who
// was released, when and by whom). The second hard-deletes the person's
// teamMembers and orgMembers rows for organizationID, which have to be found
// by query first, and the users row when it belongs to organizationID. If the second batch fails the licenses stay
// released.
func (c *Coordinator) RemoveTeamMember(ctx context.Context, memberID, organizationID string) (*RemovalResult, error) {
	res, err := remote.Mutate(ctx, c.cfg.Remote, "remove_team_member",
		func(ctx context.Context, cl *remote.Client) (*RemovalResult, error) {
			var out RemovalResult
			path := "/api/organizations/" + url.PathEscape(organizationID) + "/members/" + url.PathEscape(memberID)
			if err := cl.Do(ctx, http.MethodDelete, path, nil, &out); err != nil {
				return nil, remoteErr(err)
			}
			return &out, nil
		},
		func(ctx context.Context) (*RemovalResult, error) {
			res, err := c.removeTeamMember(ctx, memberID, organizationID)
			if err != nil {
				c.audit.Failed(ctx, auditlog.EventTeamMemberRemoved, actor(ctx), err, map[string]string{
					"member_id":       memberID,
					"organization_id": organizationID,
				})
			}
			return res, err
		})
	c.finish(ctx, "remove_team_member", err)
	return res, err
}

func (c *Coordinator) removeTeamMember(ctx context.Context, memberID, orgID string) (*RemovalResult, error) {
	user, err := c.lookup(ctx, models.CollUsers, memberID)
	if err != nil {
		return nil, err
	}
	var row docstore.Doc
	userID := memberID
	if user == nil {
		if row, err = c.lookup(ctx, models.CollTeamMembers, memberID); err != nil {
			return nil, err
		}
		if row == nil {
			return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
		}
		userID = row.Str("userId")
		if user, err = c.lookup(ctx, models.CollUsers, userID); err != nil {
			return nil, err
		}
	}

	// Rows to delete, all inside orgID.
	var doomed []DeletedRow
	if row != nil && authz.OrgOf(row) == orgID {
		doomed = append(doomed, DeletedRow{Collection: models.CollTeamMembers, ID: row.ID()})
	}
	if userID != "" {
		for _, coll := range []string{models.CollTeamMembers, models.CollOrgMembers} {
			docs, err := c.db.Find(ctx, coll, docstore.Query{Where: []docstore.Condition{
				docstore.Eq("userId", userID),
				docstore.Eq("organizationId", orgID),
			}})
			if err != nil {
				return nil, fmt.Errorf("find %s rows of %s: %w", coll, userID, err)
			}
			for _, d := range docs {
				doomed = append(doomed, DeletedRow{Collection: coll, ID: d.ID()})
			}
		}
	}
	ownUser := user != nil && authz.OrgOf(user) == orgID
	if ownUser {
		doomed = append(doomed, DeletedRow{Collection: models.CollUsers, ID: userID})
	}
	if len(doomed) == 0 {
		return nil, fmt.Errorf("%w: %s in organization %s", ErrMemberNotFound, memberID, orgID)
	}

	var email string
	if user != nil {
		email = normalize.Email(user.Str("email"))
	} else {
		email = normalize.Email(row.Str("email"))
	}

	res := &RemovalResult{UserID: userID, ReleasedLicenses: []string{}, Deleted: []DeletedRow{}}

	// Batch 1: release the organization's licenses.
	if userID != "" {
		held, err := c.heldLicenses(ctx, userID, user)
		if err != nil {
			return nil, err
		}
		release := c.db.Batch()
		now := c.now()
		who := actor(ctx)
		for _, lic := range held {
			if resolvers.NormalizeLicense(lic).OrganizationID != orgID {
				continue
			}
			release.Update(models.CollLicenses, lic.ID(), clearLegacyAssignee(lic, docstore.Doc{
				"status":     models.LicensePending,
				"assignedTo": nil,
				"releasedFrom": docstore.Doc{
					"userId":     userID,
					"email":      email,
					"releasedAt": now,
					"releasedBy": who,
				},
			}))
			res.ReleasedLicenses = append(res.ReleasedLicenses, lic.ID())
		}
		if err := release.Commit(ctx); err != nil {
			return nil, fmt.Errorf("release licenses of %s: %w", userID, err)
		}
	}

	// Batch 2: delete the person's rows.
	del := c.db.Batch()
	seen := map[DeletedRow]bool{}
	for _, r := range doomed {
		if r.ID == "" || seen[r] {
			continue
		}
		seen[r] = true
		del.Delete(r.Collection, r.ID)
		res.Deleted = append(res.Deleted, r)
	}
	if err := del.Commit(ctx); err != nil {
		return nil, fmt.Errorf("delete rows of member %s (licenses already released): %w", memberID, err)
	}

	c.audit.TeamMemberRemoved(ctx, actor(ctx), userID, orgID, len(res.ReleasedLicenses), len(res.Deleted))
	return res, nil
}

// heldLicenses finds every license assigned to userID in any stored shape.
func (c *Coordinator) heldLicenses(ctx context.Context, userID string, user docstore.Doc) ([]docstore.Doc, error) {
	var candidates []docstore.Doc
	for _, f := range []string{"assignedTo.userId", "assignedTo", "assignedToUserId"} {
		docs, err := c.db.Find(ctx, models.CollLicenses, docstore.Query{Where: []docstore.Condition{docstore.Eq(f, userID)}})
		if err != nil {
			return nil, fmt.Errorf("find licenses of %s: %w", userID, err)
		}
		candidates = append(candidates, docs...)
	}
	if a := resolvers.AssignmentOf(user); a != nil {
		d, err := c.lookup(ctx, models.CollLicenses, a.LicenseID)
		if err != nil {
			return nil, err
		}
		if d != nil {
			candidates = append(candidates, d)
		}
	}

	var out []docstore.Doc
	seen := map[string]bool{}
	for _, d := range candidates {
		if seen[d.ID()] {
			continue
		}
		seen[d.ID()] = true
		if holder, _ := resolvers.LicenseHolder(d); holder == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

// Invitation describes a new organization member.
type Invitation struct {
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

// InviteMember creates a PENDING member of orgID: a users row and its
// teamMembers and orgMembers mirrors, in one batch. Role defaults to MEMBER.
func (c *Coordinator) InviteMember(ctx context.Context, orgID string, inv Invitation) (*models.TeamMember, error) {
	m, err := remote.Mutate(ctx, c.cfg.Remote, "invite_member",
		func(ctx context.Context, cl *remote.Client) (*models.TeamMember, error) {
			var out models.TeamMember
			if err := cl.Do(ctx, http.MethodPost, "/api/organizations/"+url.PathEscape(orgID)+"/members", inv, &out); err != nil {
				return nil, remoteErr(err)
			}
			return &out, nil
		},
		func(ctx context.Context) (*models.TeamMember, error) {
			m, err := c.inviteMember(ctx, orgID, inv)
			if err != nil {
				c.audit.Failed(ctx, auditlog.EventMemberInvited, actor(ctx), err, map[string]string{
					"organization_id": orgID,
					"email":           normalize.Email(inv.Email),
				})
			}
			return m, err
		})
	c.finish(ctx, "invite_member", err)
	return m, err
}

func (c *Coordinator) inviteMember(ctx context.Context, orgID string, inv Invitation) (*models.TeamMember, error) {
	email := normalize.Email(inv.Email)
	if !inputval.IsValidEmail(email) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, inv.Email)
	}
	role := normalize.Role(inv.Role)
	if role == "" {
		role = "MEMBER"
	}
	if !inputval.IsValidOrgRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, inv.Role)
	}
	if _, err := c.fetch(ctx, models.CollOrganizations, orgID, resolvers.ErrOrganizationNotFound); err != nil {
		return nil, err
	}

	for _, q := range []struct {
		coll  string
		conds []docstore.Condition
	}{
		{models.CollUsers, []docstore.Condition{docstore.Eq("email", email)}},
		{models.CollTeamMembers, []docstore.Condition{docstore.Eq("email", email), docstore.Eq("organizationId", orgID)}},
	} {
		docs, err := c.db.Find(ctx, q.coll, docstore.Query{Where: q.conds, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("check existing %s: %w", q.coll, err)
		}
		if len(docs) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
		}
	}

	name := normalize.Name(inv.Name)
	userID, tmID, omID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	person := func() docstore.Doc {
		return docstore.Doc{
			"email":          email,
			"name":           name,
			"organizationId": orgID,
			"role":           role,
			"status":         models.UserPending,
		}
	}

	u := person()
	u["department"] = inv.Department
	tm := person()
	tm["userId"] = userID
	tm["department"] = inv.Department
	om := person()
	om["userId"] = userID
	om["seatReserved"] = true

	err := c.db.Batch().
		Set(models.CollUsers, userID, u).
		Set(models.CollTeamMembers, tmID, tm).
		Set(models.CollOrgMembers, omID, om).
		Commit(ctx)
	if err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
		}
		return nil, fmt.Errorf("invite %s: %w", email, err)
	}

	c.audit.MemberInvited(ctx, actor(ctx), userID, orgID, role)
	return &models.TeamMember{
		ID:             userID,
		UserID:         userID,
		TeamMemberID:   tmID,
		Email:          email,
		Name:           name,
		DisplayName:    normalize.DisplayName(name, "", "", email),
		Role:           role,
		Department:     inv.Department,
		Status:         models.UserPending,
		OrganizationID: orgID,
		CreatedAt:      c.now(),
	}, nil
}
